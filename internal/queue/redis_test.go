package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("outbox-test"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testJob("user-1", 1)))
	require.NoError(t, q.Enqueue(ctx, testJob("user-1", 2)))

	assert.True(t, mr.Exists("queue:outbox-test"))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, length)

	jobs, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.NotEmpty(t, jobs[0].ID)
	assert.Equal(t, int64(1), jobs[0].Record.Revision)
	assert.Equal(t, int64(2), jobs[1].Record.Revision)
	assert.Equal(t, "sk-test", jobs[1].Record.APIKey)
}

func TestRedisQueue_PersistsAcrossInstances(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	first, err := NewRedisQueue(client, DefaultConfig("outbox-test"))
	require.NoError(t, err)
	require.NoError(t, first.Enqueue(ctx, testJob("user-1", 9)))

	second, err := NewRedisQueue(client, DefaultConfig("outbox-test"))
	require.NoError(t, err)
	jobs, err := second.DequeueWithTimeout(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(9), jobs[0].Record.Revision)
}

func TestRedisQueue_SkipsMalformedJobs(t *testing.T) {
	client, mr := setupTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("outbox-test"))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = mr.Push("queue:outbox-test", "not json")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, testJob("user-1", 3)))

	jobs, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(3), jobs[0].Record.Revision)
}

func TestRedisQueue_RequiresClient(t *testing.T) {
	_, err := NewRedisQueue(nil, nil)
	assert.Error(t, err)
}

func TestRedisDeadLetterQueue_AddListRemove(t *testing.T) {
	client, _ := setupTestRedis(t)
	dlq, err := NewRedisDeadLetterQueue(client, DefaultConfig("outbox-test"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dlq.Add(ctx, testJob("user-1", 1), ErrMaxRetriesExceeded))

	items, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ErrMaxRetriesExceeded.Error(), items[0].Error)
	assert.Equal(t, "user-1", items[0].Job.Record.UserID)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrItemNotFound)

	items, err = dlq.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}
