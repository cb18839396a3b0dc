package poolx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcodd23/go-pool-core/pkg/errorx"
	"github.com/marcodd23/go-pool-core/pkg/logx"
)

// Queue pool defaults, matching the engine configuration defaults.
const (
	DefaultPoolSize = 5
	DefaultTimeout  = 30 * time.Second
)

//###################################
//#         Queue Pool              #
//###################################

// QueuePoolConfig - QueuePool configuration.
type QueuePoolConfig struct {
	// PoolSize is the base capacity: the largest number of idle handles kept
	// around. Zero or negative means DefaultPoolSize.
	PoolSize int
	// MaxOverflow is the number of extra handles allowed beyond PoolSize
	// concurrently. Overflow handles are closed on release, never retained.
	// -1 means no upper bound on concurrent checkouts.
	MaxOverflow int
	// Timeout bounds a blocking Acquire. Zero or negative means DefaultTimeout.
	Timeout time.Duration
	// UseAffinity enables owner-keyed reuse: an Acquire whose context carries
	// a pin (see WithPin) returns the pin's already-checked-out handle, and
	// the handle checks back in only when every such acquire was released.
	UseAffinity bool
	// Echo enables checkout/checkin logging.
	Echo bool
	// Listener receives pool events, may be nil.
	Listener EventListener
}

// affinityEntry - a pin's claim on a checked-out handle, counted per acquire.
// disposed poisons the entry: the handle is torn down once the last claim is
// dropped and is never handed out again.
type affinityEntry struct {
	pin      string
	handle   Handle
	count    int
	disposed bool
}

// QueuePool - bounded Pool backed by a buffered channel of idle handles.
// At most PoolSize handles are retained idle and at most
// PoolSize + MaxOverflow are checked out concurrently.
// It implements poolx.Pool.
type QueuePool struct {
	id          string
	factory     HandleFactory
	idle        chan Handle
	notify      chan struct{}
	poolSize    int
	maxOverflow int
	timeout     time.Duration
	useAffinity bool
	echo        bool
	listener    EventListener

	mu         sync.Mutex
	checkedOut int
	live       int
	affinity   map[string]*affinityEntry
	affOwners  map[Handle]*affinityEntry
}

// NewQueuePool - QueuePool constructor.
func NewQueuePool(factory HandleFactory, cfg QueuePoolConfig) *QueuePool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &QueuePool{
		id:          uuid.NewString(),
		factory:     factory,
		idle:        make(chan Handle, cfg.PoolSize),
		notify:      make(chan struct{}, 1),
		poolSize:    cfg.PoolSize,
		maxOverflow: cfg.MaxOverflow,
		timeout:     cfg.Timeout,
		useAffinity: cfg.UseAffinity,
		echo:        cfg.Echo,
		listener:    cfg.Listener,
		affinity:    make(map[string]*affinityEntry),
		affOwners:   make(map[Handle]*affinityEntry),
	}
}

// ID - stable identity of this pool instance, used in logs and status pages.
func (p *QueuePool) ID() string {
	return p.id
}

// Acquire - check out a Handle. See the Pool interface for the contract.
// With UseAffinity, a context carrying a pin that already owns a checked-out
// handle gets that same handle back, counted.
func (p *QueuePool) Acquire(ctx context.Context) (Handle, error) {
	if handle, ok := p.affinityReuse(ctx); ok {
		return handle, nil
	}

	handle, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	p.affinityBind(ctx, handle)

	return handle, nil
}

func (p *QueuePool) acquire(ctx context.Context) (Handle, error) {
	// Fast path: an idle handle is ready.
	select {
	case handle := <-p.idle:
		p.noteCheckOut(ctx, handle)
		return handle, nil
	default:
	}

	if handle, created, err := p.create(ctx); created {
		return handle, err
	}

	// At capacity: block until a checkin, a freed capacity slot, the
	// timeout, or cancellation. No fairness among blocked acquirers.
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case handle := <-p.idle:
			p.noteCheckOut(ctx, handle)
			return handle, nil
		case <-p.notify:
			if handle, created, err := p.create(ctx); created {
				return handle, err
			}
		case <-timer.C:
			return nil, errorx.NewPoolTimeoutError(
				"queue pool limit of size %d overflow %d reached, acquire timed out after %s",
				p.poolSize, p.maxOverflow, p.timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release - check a Handle back in. If the idle storage is already holding
// PoolSize handles this is an overflow handle and it is torn down instead.
// The handle is rolled back before checkin so it never re-enters the idle
// storage with a pending implicit transaction.
func (p *QueuePool) Release(ctx context.Context, handle Handle) {
	remaining, poisoned, tracked := p.affinityDone(handle, false)
	if tracked && remaining {
		return
	}

	p.mu.Lock()
	p.checkedOut--
	p.mu.Unlock()

	if poisoned {
		p.discard(ctx, handle)
		p.wake()

		return
	}

	if err := handle.Rollback(ctx); err != nil {
		logx.GetLogger().LogWarning(ctx, fmt.Sprintf("Pool %s: reset failed on checkin, disposing handle", p.id), err)
		p.discard(ctx, handle)
		p.wake()

		return
	}

	select {
	case p.idle <- handle:
		p.emit(EventCheckIn)

		if p.echo {
			logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: handle checked in", p.id))
		}
	default:
		p.discard(ctx, handle)
		p.emit(EventOverflowDisposed)

		if p.echo {
			logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: overflow handle disposed on checkin", p.id))
		}
	}

	p.wake()
}

// Dispose - close a checked-out Handle and free its capacity slot;
// invalidated handles never re-enter the idle storage. When other affinity
// claims still hold the handle the teardown waits for the last of them.
func (p *QueuePool) Dispose(ctx context.Context, handle Handle) {
	if remaining, _, tracked := p.affinityDone(handle, true); tracked && remaining {
		return
	}

	p.mu.Lock()
	p.checkedOut--
	p.mu.Unlock()

	p.discard(ctx, handle)

	if p.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: handle disposed", p.id))
	}

	p.wake()
}

// Size - base capacity.
func (p *QueuePool) Size() int {
	return p.poolSize
}

// CheckedOut - number of handles currently checked out.
func (p *QueuePool) CheckedOut() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.checkedOut
}

// Status - snapshot of the pool counters.
func (p *QueuePool) Status() Status {
	p.mu.Lock()
	checkedOut := p.checkedOut
	live := p.live
	p.mu.Unlock()

	checkedIn := len(p.idle)

	overflow := live - p.poolSize
	if overflow < 0 {
		overflow = 0
	}

	return Status{
		PoolID:     p.id,
		Size:       p.poolSize,
		CheckedIn:  checkedIn,
		CheckedOut: checkedOut,
		Overflow:   overflow,
	}
}

// Drain - close every idle Handle. The pool stays usable; new handles are
// created on demand afterwards.
func (p *QueuePool) Drain(ctx context.Context) {
	for {
		select {
		case handle := <-p.idle:
			p.discard(ctx, handle)
		default:
			return
		}
	}
}

// create - take a capacity slot and build a new Handle. Returns
// created=false when the pool is at capacity. Capacity bounds the live
// handles, checked out plus idle, so a checkin racing a blocked acquirer's
// wakeup can never push the total past PoolSize+MaxOverflow. A factory
// failure frees the slot again and wakes one waiter before propagating.
func (p *QueuePool) create(ctx context.Context) (Handle, bool, error) {
	p.mu.Lock()

	if p.maxOverflow >= 0 && p.live >= p.poolSize+p.maxOverflow {
		p.mu.Unlock()
		return nil, false, nil
	}

	p.live++
	p.checkedOut++
	overflow := p.live > p.poolSize
	p.mu.Unlock()

	handle, err := p.factory.Create(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.checkedOut--
		p.mu.Unlock()
		p.wake()

		return nil, true, errorx.NewFactoryErrorWrapper(err, "handle factory failed")
	}

	if overflow {
		p.emit(EventOverflowCreated)
	}

	p.emit(EventCheckOut)

	if p.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: new handle created and checked out (overflow=%t)", p.id, overflow))
	}

	return handle, true, nil
}

// noteCheckOut - bookkeeping for a handle taken from the idle storage.
func (p *QueuePool) noteCheckOut(ctx context.Context, handle Handle) {
	p.mu.Lock()
	p.checkedOut++
	p.mu.Unlock()

	p.emit(EventCheckOut)

	if p.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: handle checked out from idle storage", p.id))
	}
}

// discard - close a handle and drop it from the live count.
func (p *QueuePool) discard(ctx context.Context, handle Handle) {
	p.mu.Lock()
	p.live--
	p.mu.Unlock()

	if err := handle.Close(ctx); err != nil {
		logx.GetLogger().LogWarning(ctx, fmt.Sprintf("Pool %s: error closing handle", p.id), err)
	}
}

// affinityReuse - return the pin's already-claimed handle, if any. A pin
// stands for one logical task, so claims on it are not raced.
func (p *QueuePool) affinityReuse(ctx context.Context) (Handle, bool) {
	if !p.useAffinity {
		return nil, false
	}

	pin, ok := PinFromContext(ctx)
	if !ok {
		return nil, false
	}

	p.mu.Lock()
	entry, ok := p.affinity[pin]
	if !ok || entry.disposed {
		p.mu.Unlock()
		return nil, false
	}

	entry.count++
	p.mu.Unlock()

	if p.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Pool %s: affine handle reused for pin %s", p.id, pin))
	}

	return entry.handle, true
}

// affinityBind - claim a freshly checked-out handle for the context's pin.
func (p *QueuePool) affinityBind(ctx context.Context, handle Handle) {
	if !p.useAffinity {
		return
	}

	pin, ok := PinFromContext(ctx)
	if !ok {
		return
	}

	entry := &affinityEntry{pin: pin, handle: handle, count: 1}

	p.mu.Lock()
	p.affinity[pin] = entry
	p.affOwners[handle] = entry
	p.mu.Unlock()
}

// affinityDone - drop one claim on the handle; disposed poisons the entry so
// the teardown happens when the last claim is dropped. remaining reports
// claims still outstanding, poisoned whether any claim ended in a dispose,
// tracked whether the handle was affinity-claimed at all.
func (p *QueuePool) affinityDone(handle Handle, disposed bool) (remaining, poisoned, tracked bool) {
	if !p.useAffinity {
		return false, false, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.affOwners[handle]
	if !ok {
		return false, false, false
	}

	if disposed {
		entry.disposed = true
	}

	entry.count--
	if entry.count > 0 {
		return true, entry.disposed, true
	}

	// The pin may already point at a replacement bound after this entry was
	// poisoned; only remove it when it is still ours.
	if p.affinity[entry.pin] == entry {
		delete(p.affinity, entry.pin)
	}

	delete(p.affOwners, handle)

	return false, entry.disposed, true
}

// wake - let one blocked acquirer re-check the capacity slots.
func (p *QueuePool) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *QueuePool) emit(event Event) {
	if p.listener != nil {
		p.listener(event, p.Status())
	}
}
