package session

import (
	"context"
	"errors"
	"time"
)

// ErrBusy signals that the session already has an in-flight exchange. The
// caller is expected to retry after that exchange completes.
var ErrBusy = errors.New("session busy")

// LockTTL caps how long a busy marker can outlive a crashed exchange.
const LockTTL = 5 * time.Minute

// Locker enforces at-most-one in-flight exchange per session id.
type Locker interface {
	// Acquire marks the session busy, returning ErrBusy when it already is.
	Acquire(ctx context.Context, sessionId string) error

	// Release clears the busy marker. Safe to call when not held.
	Release(ctx context.Context, sessionId string)
}
