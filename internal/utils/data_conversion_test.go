package utils

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAsString(t *testing.T) {
	assert.Equal(t, "", AsString(nil))
	assert.Equal(t, "ACME", AsString("  ACME "))
	assert.Equal(t, "12.5", AsString(12.5))
	assert.Equal(t, "3", AsString(json.Number("3")))
	assert.Equal(t, "true", AsString(true))
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{12.5, 12.5, true},
		{7, 7, true},
		{json.Number("4.25"), 4.25, true},
		{"$1,234.50", 1234.50, true},
		{"12,50 EUR", 12.50, true},
		{"1.234,56", 1234.56, true},
		{"-3.10", -3.10, true},
		{"n/a", 0, false},
		{nil, 0, false},
		{[]any{1}, 0, false},
	}

	for _, tt := range tests {
		got, ok := AsFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %v", tt.in)
		}
	}
}

func TestAsDecimal(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"12,50 EUR", "12.5", true},
		{"$1,234.50", "1234.5", true},
		{json.Number("0.10"), "0.1", true},
		{7.25, "7.25", true},
		{3, "3", true},
		{"free", "", false},
		{nil, "", false},
	}

	for _, tt := range tests {
		got, ok := AsDecimal(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		if tt.ok {
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "input %v: got %s", tt.in, got)
		}
	}

	// 0.1 + 0.2 stays exact
	a, _ := AsDecimal("0.1")
	b, _ := AsDecimal("0.2")
	assert.Equal(t, "0.3", a.Add(b).String())
}

func TestPointerHelpers(t *testing.T) {
	d := decimal.NewFromInt(5)
	assert.True(t, DecimalPtr(d).Equal(d))
}
