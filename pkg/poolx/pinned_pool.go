package poolx

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/marcodd23/go-pool-core/pkg/errorx"
	"github.com/marcodd23/go-pool-core/pkg/logx"
)

//###################################
//#         Owner Pins              #
//###################################

type pinContextKey struct{}

// WithPin - install a fresh owner pin in the context. A pin stands in for a
// logical thread of execution: goroutine identity is not observable, so the
// owner of a pinned handle is named explicitly and travels with the context.
func WithPin(ctx context.Context) context.Context {
	return context.WithValue(ctx, pinContextKey{}, uuid.NewString())
}

// PinFromContext - extract the owner pin, if any.
func PinFromContext(ctx context.Context) (string, bool) {
	pin, ok := ctx.Value(pinContextKey{}).(string)
	return pin, ok
}

//###################################
//#         Pinned Pool             #
//###################################

// PinnedPoolConfig - PinnedPool configuration.
type PinnedPoolConfig struct {
	// Echo enables checkout/checkin logging.
	Echo bool
	// Listener receives pool events, may be nil.
	Listener EventListener
}

// PinnedPool - Pool handing out at most one Handle per owner pin, reused for
// the owner's lifetime. Required when the underlying resource forbids
// cross-owner use. Release tears the handle down rather than pooling it:
// one handle, one owner, no reuse across owners.
// It implements poolx.Pool.
type PinnedPool struct {
	id       string
	factory  HandleFactory
	echo     bool
	listener EventListener

	mu     sync.Mutex
	bound  map[string]Handle
	owners map[Handle]string
}

// NewPinnedPool - PinnedPool constructor.
func NewPinnedPool(factory HandleFactory, cfg PinnedPoolConfig) *PinnedPool {
	return &PinnedPool{
		id:       uuid.NewString(),
		factory:  factory,
		echo:     cfg.Echo,
		listener: cfg.Listener,
		bound:    make(map[string]Handle),
		owners:   make(map[Handle]string),
	}
}

// ID - stable identity of this pool instance.
func (p *PinnedPool) ID() string {
	return p.id
}

// Acquire - return the calling owner's bound Handle, creating one on first
// use. The context must carry a pin (see WithPin); acquiring without one is a
// programming error.
func (p *PinnedPool) Acquire(ctx context.Context) (Handle, error) {
	pin, ok := PinFromContext(ctx)
	if !ok {
		return nil, errorx.NewGeneralError("pinned pool requires an owner pin in the context")
	}

	p.mu.Lock()
	if handle, ok := p.bound[pin]; ok {
		p.mu.Unlock()

		if p.echo {
			logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: bound handle reused for pin %s", p.id, pin))
		}

		return handle, nil
	}
	p.mu.Unlock()

	handle, err := p.factory.Create(ctx)
	if err != nil {
		return nil, errorx.NewFactoryErrorWrapper(err, "handle factory failed")
	}

	p.mu.Lock()
	// A concurrent Acquire with the same pin may have bound a handle in the
	// meantime; keep the first binding and tear the extra handle down.
	if existing, ok := p.bound[pin]; ok {
		p.mu.Unlock()
		p.closeHandle(ctx, handle)

		return existing, nil
	}

	p.bound[pin] = handle
	p.owners[handle] = pin
	p.mu.Unlock()

	p.emit(EventCheckOut)

	if p.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: new handle bound to pin %s", p.id, pin))
	}

	return handle, nil
}

// Release - tear the Handle down and clear the owner binding. Pinned handles
// are never retained for another owner.
func (p *PinnedPool) Release(ctx context.Context, handle Handle) {
	p.unbind(ctx, handle)

	if p.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: bound handle released and torn down", p.id))
	}
}

// Dispose - same teardown as Release; an invalidated pinned handle has no
// idle storage to be kept out of.
func (p *PinnedPool) Dispose(ctx context.Context, handle Handle) {
	p.unbind(ctx, handle)

	if p.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: bound handle disposed", p.id))
	}
}

// Size - number of currently bound handles.
func (p *PinnedPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.bound)
}

// CheckedOut - every bound handle counts as checked out.
func (p *PinnedPool) CheckedOut() int {
	return p.Size()
}

// Status - snapshot of the pool counters.
func (p *PinnedPool) Status() Status {
	bound := p.Size()

	return Status{
		PoolID:     p.id,
		Size:       bound,
		CheckedIn:  0,
		CheckedOut: bound,
		Overflow:   0,
	}
}

// Drain - tear down every bound handle and clear all owner bindings.
func (p *PinnedPool) Drain(ctx context.Context) {
	p.mu.Lock()
	handles := make([]Handle, 0, len(p.bound))

	for _, handle := range p.bound {
		handles = append(handles, handle)
	}

	p.bound = make(map[string]Handle)
	p.owners = make(map[Handle]string)
	p.mu.Unlock()

	for _, handle := range handles {
		p.closeHandle(ctx, handle)
	}
}

func (p *PinnedPool) unbind(ctx context.Context, handle Handle) {
	p.mu.Lock()
	if pin, ok := p.owners[handle]; ok {
		delete(p.bound, pin)
		delete(p.owners, handle)
	}
	p.mu.Unlock()

	p.closeHandle(ctx, handle)
	p.emit(EventCheckIn)
}

func (p *PinnedPool) closeHandle(ctx context.Context, handle Handle) {
	if err := handle.Close(ctx); err != nil {
		logx.GetLogger().LogWarning(ctx, fmt.Sprintf("Pool %s: error closing handle", p.id), err)
	}
}

func (p *PinnedPool) emit(event Event) {
	if p.listener != nil {
		p.listener(event, p.Status())
	}
}
