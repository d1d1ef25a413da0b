package coordinator

import (
	"errors"
	"fmt"

	"ai_config/internal/models"
)

var (
	ErrNotStarted     = errors.New("coordinator not started")
	ErrAlreadyStarted = errors.New("coordinator already started")
	ErrClosed         = errors.New("coordinator closed")
	ErrUnknownModel   = errors.New("model not offered by provider")
	ErrRemoteNewer    = errors.New("remote holds a newer configuration")
)

// Phase is the load phase of a coordinator.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoadingLocal
	PhaseLoadingRemote
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoadingLocal:
		return "loading-local"
	case PhaseLoadingRemote:
		return "loading-remote"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// RemoteState tracks the remote load for the current identity.
type RemoteState int

const (
	// RemoteDisabled means no remote store is configured.
	RemoteDisabled RemoteState = iota
	// RemoteDeferred means the load waits for a signed-in user.
	RemoteDeferred
	RemoteInFlight
	// RemoteResolved means the first result arrived; later ones are ignored.
	RemoteResolved
)

func (r RemoteState) String() string {
	switch r {
	case RemoteDisabled:
		return "disabled"
	case RemoteDeferred:
		return "deferred"
	case RemoteInFlight:
		return "in-flight"
	case RemoteResolved:
		return "resolved"
	default:
		return fmt.Sprintf("RemoteState(%d)", int(r))
	}
}

// NoticeKind classifies soft persistence notifications.
type NoticeKind int

const (
	// NoticeSavedLocally: the remote save failed or was outranked by a newer
	// remote record; the local copy holds the change.
	NoticeSavedLocally NoticeKind = iota
	// NoticeRemoteLoadFailed: the remote could not be read; local values stay in effect.
	NoticeRemoteLoadFailed
	// NoticeLocalSaveFailed: the local cache could not be written.
	NoticeLocalSaveFailed
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeSavedLocally:
		return "saved-locally"
	case NoticeRemoteLoadFailed:
		return "remote-load-failed"
	case NoticeLocalSaveFailed:
		return "local-save-failed"
	default:
		return fmt.Sprintf("NoticeKind(%d)", int(k))
	}
}

// Notice reports a persistence problem that did not change the configuration.
// Queued is set on NoticeSavedLocally when the remote save will be retried.
type Notice struct {
	Kind   NoticeKind
	Err    error
	Queued bool
}

// Snapshot is a consistent, read-only view of the coordinator.
type Snapshot struct {
	Provider     models.ProviderID
	Config       models.ModelConfig
	Configured   bool
	ConfigLoaded bool
	Phase        Phase
	Remote       RemoteState
	Revision     int64

	version uint64
}
