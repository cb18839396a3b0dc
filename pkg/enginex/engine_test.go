package enginex_test

import (
	"context"
	"testing"

	"github.com/marcodd23/go-pool-core/pkg/configx"
	"github.com/marcodd23/go-pool-core/pkg/enginex"
	"github.com/marcodd23/go-pool-core/pkg/errorx"
	"github.com/marcodd23/go-pool-core/pkg/poolx"
	"github.com/stretchr/testify/require"
)

func testDatabaseConfig() configx.DatabaseConfig {
	return configx.DatabaseConfig{
		Scheme:   "postgres",
		Host:     "db.internal",
		Port:     5432,
		DBName:   "main-db",
		User:     "app",
		Password: "secret",
	}
}

// TestEngine_RegistrySharesPool verifies that two engines built from
// equivalent connection parameters resolve to the same pool, with checkouts
// through one visible through the other.
func TestEngine_RegistrySharesPool(t *testing.T) {
	ctx := context.Background()
	registry := poolx.NewRegistry()
	factory := &fakeFactory{}

	first, err := enginex.SetupEngine(registry, factory, nil, testDatabaseConfig(), nil, nil)
	require.NoError(t, err)

	equivalent := testDatabaseConfig()
	equivalent.Host = "DB.INTERNAL"

	second, err := enginex.SetupEngine(registry, factory, nil, equivalent, nil, nil)
	require.NoError(t, err)
	require.Same(t, first.Pool(), second.Pool())
	require.Equal(t, first.PoolKey(), second.PoolKey())

	conn, err := first.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close(ctx)

	require.Equal(t, 1, second.Pool().CheckedOut())
}

// TestEngine_SetupAppliesDefaults verifies that an absent engine config gets
// the documented defaults.
func TestEngine_SetupAppliesDefaults(t *testing.T) {
	registry := poolx.NewRegistry()
	factory := &fakeFactory{}

	engine, err := enginex.SetupEngine(registry, factory, nil, testDatabaseConfig(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, enginex.StrategyPlain, engine.Strategy())
	require.Equal(t, configx.DefaultPoolSize, engine.Pool().Size())
}

// TestEngine_AffinitySharesHandleWithinContext verifies that with the default
// queue pool affinity a session context pins its checkouts to one handle:
// independent connects inside the scope ride the same handle, counted once,
// and the handle only checks back in when the last of them closes.
func TestEngine_AffinitySharesHandleWithinContext(t *testing.T) {
	registry := poolx.NewRegistry()
	factory := &fakeFactory{}

	engine, err := enginex.SetupEngine(registry, factory, nil, testDatabaseConfig(), nil, nil)
	require.NoError(t, err)

	ctx := engine.NewSessionContext(context.Background())

	first, err := engine.Connect(ctx)
	require.NoError(t, err)

	second, err := engine.Connect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, factory.createdCount())
	require.Equal(t, 1, engine.Pool().CheckedOut())

	require.NoError(t, second.Close(ctx))
	require.Equal(t, 1, engine.Pool().CheckedOut())

	require.NoError(t, first.Close(ctx))
	require.Equal(t, 0, engine.Pool().CheckedOut())

	// A later scope picks the idle handle up again under its own pin.
	otherCtx := engine.NewSessionContext(context.Background())
	conn, err := engine.Connect(otherCtx)
	require.NoError(t, err)
	defer conn.Close(otherCtx)
	require.Equal(t, 1, factory.createdCount())
}

// TestEngine_AffinityInvalidationBalancesPool verifies that invalidating one
// of two connections sharing an affine handle leaves the counters balanced:
// the handle is torn down once the last connection closes, never idles, and
// the checkout count returns to zero instead of going negative.
func TestEngine_AffinityInvalidationBalancesPool(t *testing.T) {
	registry := poolx.NewRegistry()
	factory := &fakeFactory{}

	engine, err := enginex.SetupEngine(registry, factory, nil, testDatabaseConfig(), nil, nil)
	require.NoError(t, err)

	ctx := engine.NewSessionContext(context.Background())

	first, err := engine.Connect(ctx)
	require.NoError(t, err)

	second, err := engine.Connect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, factory.createdCount())

	handle := factory.lastHandle()
	handle.executeErr = errorx.NewHandleInvalidError("server closed the connection")

	_, err = first.Execute(ctx, "SELECT 1")
	require.Error(t, err)
	require.True(t, first.IsInvalid())

	require.NoError(t, first.Close(ctx))
	require.Equal(t, 1, engine.Pool().CheckedOut())

	require.NoError(t, second.Close(ctx))
	require.Equal(t, 0, engine.Pool().CheckedOut())
	require.Equal(t, 0, engine.Pool().Status().CheckedIn)
	require.True(t, handle.isClosed())

	// The pool is still healthy: a new scope checks out a fresh handle.
	handle.executeErr = nil
	nextCtx := engine.NewSessionContext(context.Background())
	conn, err := engine.Connect(nextCtx)
	require.NoError(t, err)
	defer conn.Close(nextCtx)
	require.Equal(t, 2, factory.createdCount())
	require.Equal(t, 1, engine.Pool().CheckedOut())
}

// TestEngine_SessionNestedCommit verifies the contextual strategy: nested
// engine-level begins share one connection, only the outermost commit is
// physical, and the session binding clears once the scope ends.
func TestEngine_SessionNestedCommit(t *testing.T) {
	factory := &fakeFactory{}
	engine := newTestEngine(factory, enginex.StrategyContextual)

	ctx := engine.NewSessionContext(context.Background())

	require.NoError(t, engine.Begin(ctx))
	require.NoError(t, engine.Begin(ctx))
	require.Equal(t, 1, factory.createdCount())
	require.Equal(t, 1, engine.Pool().CheckedOut())

	_, err := engine.Execute(ctx, "INSERT INTO event_log (entity_name) VALUES ($1)", "order")
	require.NoError(t, err)

	handle := factory.lastHandle()
	// Inside the ambient transaction no autocommit happens.
	require.Equal(t, 0, handle.commitCount())

	require.NoError(t, engine.Commit(ctx))
	require.Equal(t, 0, handle.commitCount())

	require.NoError(t, engine.Commit(ctx))
	require.Equal(t, 1, handle.commitCount())
	require.Equal(t, 0, engine.Pool().CheckedOut())

	session, ok := enginex.SessionFromContext(ctx)
	require.True(t, ok)
	require.False(t, session.InTransaction())
}

// TestEngine_SessionRollbackAtAnyDepth verifies that an engine-level
// rollback closes out the whole nested scope immediately.
func TestEngine_SessionRollbackAtAnyDepth(t *testing.T) {
	factory := &fakeFactory{}
	engine := newTestEngine(factory, enginex.StrategyContextual)

	ctx := engine.NewSessionContext(context.Background())

	require.NoError(t, engine.Begin(ctx))
	require.NoError(t, engine.Begin(ctx))
	require.NoError(t, engine.Begin(ctx))

	handle := factory.lastHandle()

	require.NoError(t, engine.Rollback(ctx))
	// One rollback from the transaction, one from the checkin reset.
	require.Equal(t, 2, handle.rollbackCount())
	require.Equal(t, 0, engine.Pool().CheckedOut())

	err := engine.Rollback(ctx)
	require.True(t, errorx.IsTransactionState(err))
}

// TestEngine_ContextualConnectSharesConnection verifies that inside a
// session transaction ContextualConnect returns the bound connection with an
// incremented refcount, and closing it does not release the handle.
func TestEngine_ContextualConnectSharesConnection(t *testing.T) {
	factory := &fakeFactory{}
	engine := newTestEngine(factory, enginex.StrategyContextual)

	ctx := engine.NewSessionContext(context.Background())

	require.NoError(t, engine.Begin(ctx))

	session, _ := enginex.SessionFromContext(ctx)
	bound := session.Connection()

	view, err := engine.ContextualConnect(ctx)
	require.NoError(t, err)
	require.Same(t, bound, view)
	require.Equal(t, 1, factory.createdCount())

	require.NoError(t, view.Close(ctx))
	require.Equal(t, 1, engine.Pool().CheckedOut())

	require.NoError(t, engine.Commit(ctx))
	require.Equal(t, 0, engine.Pool().CheckedOut())
}

// TestEngine_ContextualConnectOutsideSession verifies that without an
// ambient transaction ContextualConnect degrades to a plain checkout.
func TestEngine_ContextualConnectOutsideSession(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	engine := newTestEngine(factory, enginex.StrategyContextual)

	conn, err := engine.ContextualConnect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, engine.Pool().CheckedOut())
	require.NoError(t, conn.Close(ctx))
	require.Equal(t, 0, engine.Pool().CheckedOut())
}

// TestEngine_PlainStrategyRejectsEngineTransactions verifies that
// engine-level begin/commit/rollback are only available in the contextual
// strategy.
func TestEngine_PlainStrategyRejectsEngineTransactions(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	engine := newTestEngine(factory, enginex.StrategyPlain)

	require.Error(t, engine.Begin(ctx))
	require.Error(t, engine.Commit(ctx))
	require.Error(t, engine.Rollback(ctx))
}

// TestEngine_ExecuteScopedCheckout verifies that connectionless execution
// outside a session checks a connection out for the single statement and
// releases it on every exit path.
func TestEngine_ExecuteScopedCheckout(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	engine := newTestEngine(factory, enginex.StrategyPlain)

	_, err := engine.Execute(ctx, "SELECT 1")
	require.NoError(t, err)
	require.Equal(t, 0, engine.Pool().CheckedOut())

	_, err = engine.Execute(ctx, "SELECT 2")
	require.NoError(t, err)
	require.Equal(t, 1, factory.createdCount())
}

// TestEngine_TransactionHelperCommitsAndRollsBack verifies the scoped
// transaction helper: commit on nil return, rollback on error, connection
// released either way.
func TestEngine_TransactionHelperCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	engine := newTestEngine(factory, enginex.StrategyPlain)

	err := engine.Transaction(ctx, func(ctx context.Context, conn *enginex.Connection) error {
		_, err := conn.Execute(ctx, "INSERT INTO event_log (entity_name) VALUES ($1)", "order")
		return err
	})
	require.NoError(t, err)

	handle := factory.lastHandle()
	require.Equal(t, 1, handle.commitCount())
	require.Equal(t, 0, engine.Pool().CheckedOut())

	rollbacksBefore := handle.rollbackCount()

	failure := errorx.NewGeneralError("boom")
	err = engine.Transaction(ctx, func(ctx context.Context, conn *enginex.Connection) error {
		return failure
	})
	require.ErrorIs(t, err, failure)
	// One rollback from the failed transaction, one from the checkin reset.
	require.Equal(t, rollbacksBefore+2, handle.rollbackCount())
	require.Equal(t, 0, engine.Pool().CheckedOut())
	require.Equal(t, 1, handle.commitCount())
}

// TestEngine_PinnedPoolSessionContext verifies that an engine over a pinned
// pool derives contexts carrying an owner pin, so checkouts from the same
// derived context reuse one handle while fresh contexts get their own.
func TestEngine_PinnedPoolSessionContext(t *testing.T) {
	factory := &fakeFactory{}

	cfg := configx.EngineConfig{
		PoolClass: enginex.PoolClassPinned,
		Strategy:  enginex.StrategyPlain,
	}
	engine := enginex.NewEngine(enginex.BuildPool(factory, cfg, nil), cfg, nil)

	ctx := engine.NewSessionContext(context.Background())

	_, ok := poolx.PinFromContext(ctx)
	require.True(t, ok)

	first, err := engine.Pool().Acquire(ctx)
	require.NoError(t, err)

	again, err := engine.Pool().Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, first, again)

	other, err := engine.Pool().Acquire(engine.NewSessionContext(context.Background()))
	require.NoError(t, err)
	require.NotSame(t, first, other)
}
