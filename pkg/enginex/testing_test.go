package enginex_test

import (
	"context"
	"sync"

	"github.com/marcodd23/go-pool-core/pkg/configx"
	"github.com/marcodd23/go-pool-core/pkg/enginex"
	"github.com/marcodd23/go-pool-core/pkg/poolx"
)

// fakeHandle - in-memory Handle recording statements and transaction calls.
type fakeHandle struct {
	mu         sync.Mutex
	executed   []string
	commits    int
	rollbacks  int
	closed     bool
	executeErr error
	commitErr  error
}

func (h *fakeHandle) Execute(ctx context.Context, statement string, args ...any) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.executeErr != nil {
		return nil, h.executeErr
	}

	h.executed = append(h.executed, statement)

	return nil, nil
}

func (h *fakeHandle) Commit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.commitErr != nil {
		return h.commitErr
	}

	h.commits++

	return nil
}

func (h *fakeHandle) Rollback(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollbacks++

	return nil
}

func (h *fakeHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true

	return nil
}

func (h *fakeHandle) commitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.commits
}

func (h *fakeHandle) rollbackCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rollbacks
}

func (h *fakeHandle) executedStatements() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.executed...)
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

// fakeFactory - HandleFactory counting the handles it created.
type fakeFactory struct {
	mu      sync.Mutex
	created int
	handles []*fakeHandle
}

func (f *fakeFactory) Create(ctx context.Context) (poolx.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created++
	handle := &fakeHandle{}
	f.handles = append(f.handles, handle)

	return handle, nil
}

func (f *fakeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.created
}

func (f *fakeFactory) lastHandle() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.handles) == 0 {
		return nil
	}

	return f.handles[len(f.handles)-1]
}

// newTestEngine - engine over a small queue pool of fakes.
func newTestEngine(factory *fakeFactory, strategy string) *enginex.Engine {
	overflow := 0

	cfg := configx.EngineConfig{
		PoolClass:      enginex.PoolClassQueue,
		PoolSize:       2,
		MaxOverflow:    &overflow,
		TimeoutSeconds: 1,
		Strategy:       strategy,
	}

	return enginex.NewEngine(enginex.BuildPool(factory, cfg, nil), cfg, nil)
}
