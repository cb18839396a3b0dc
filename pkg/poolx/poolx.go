package poolx

import (
	"context"
)

// =====================================
// Handle and HandleFactory Interfaces
// =====================================

// Handle - an open resource obtained from a HandleFactory, typically a live
// database connection. A handle is owned by exactly one of the pool's idle
// storage or a checked-out connection; it is never shared concurrently.
//
// Statement compilation and result decoding are out of scope: Execute returns
// an opaque cursor that the caller's driver layer knows how to read.
//
// A driver signals a fatal connectivity fault by returning an
// errorx.HandleInvalidError from Execute; the owning connection then marks
// itself invalid so the handle is disposed on release instead of being
// returned to the idle set.
type Handle interface {
	Execute(ctx context.Context, statement string, args ...any) (any, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// HandleFactory - capability that produces a new raw Handle on demand.
// Opaque to the pool; factory failures propagate unchanged to Acquire callers.
type HandleFactory interface {
	Create(ctx context.Context) (Handle, error)
}

// FactoryFunc - adapter to use a plain function as a HandleFactory.
type FactoryFunc func(ctx context.Context) (Handle, error)

// Create - invoke the function.
func (f FactoryFunc) Create(ctx context.Context) (Handle, error) {
	return f(ctx)
}

// =====================================
// Pool Interface
// =====================================

// Pool - bounded or unbounded manager of reusable Handles.
type Pool interface {
	// Acquire returns an idle Handle if one is present, creates a new one if
	// capacity allows, or blocks until a Handle is checked back in. It fails
	// with errorx.PoolTimeoutError when the configured timeout elapses at
	// capacity, and with ctx.Err() on cancellation. A failed Acquire leaves
	// pool state unchanged.
	Acquire(ctx context.Context) (Handle, error)
	// Release checks a Handle back in. Handles beyond the base idle capacity
	// are torn down instead of retained.
	Release(ctx context.Context, handle Handle)
	// Dispose unconditionally closes the Handle and gives its capacity slot
	// back; used for invalidated handles.
	Dispose(ctx context.Context, handle Handle)
	// Size returns the base capacity of the pool.
	Size() int
	// CheckedOut returns the number of handles currently checked out.
	CheckedOut() int
	// Status returns a point-in-time snapshot of the pool counters.
	Status() Status
	// Drain closes every idle Handle. Explicit teardown; the pool stays
	// usable afterwards.
	Drain(ctx context.Context)
}

// =====================================
// Pool Events
// =====================================

// Event - observable pool event, for an external logging or metrics collaborator.
type Event string

const (
	EventCheckOut         Event = "pool-checkout"
	EventCheckIn          Event = "pool-checkin"
	EventOverflowCreated  Event = "pool-overflow-created"
	EventOverflowDisposed Event = "pool-overflow-disposed"
)

// EventListener - hook invoked on pool events. Observable but not required
// for correctness; listeners must not call back into the pool.
type EventListener func(event Event, status Status)

// =====================================
// Pool Status
// =====================================

// Status - point-in-time snapshot of a pool's counters.
type Status struct {
	PoolID     string `json:"poolId"`
	Size       int    `json:"size"`
	CheckedIn  int    `json:"checkedIn"`
	CheckedOut int    `json:"checkedOut"`
	Overflow   int    `json:"overflow"`
}
