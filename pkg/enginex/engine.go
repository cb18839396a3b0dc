package enginex

import (
	"context"

	"github.com/marcodd23/go-pool-core/pkg/configx"
	"github.com/marcodd23/go-pool-core/pkg/errorx"
	"github.com/marcodd23/go-pool-core/pkg/poolx"
)

// Pool variants and execution strategies, selected at construction time and
// immutable thereafter.
const (
	PoolClassQueue  = "queue"
	PoolClassPinned = "pinned"

	StrategyPlain      = "plain"
	StrategyContextual = "contextual"
)

//###################################
//#           Engine                #
//###################################

// Engine - façade binding a Pool and a HandleFactory. In the plain strategy
// every checkout is explicit; in the contextual strategy the engine also
// exposes Begin/Commit/Rollback against an ambient Session carried in the
// context, and ContextualConnect joins that session's transaction.
type Engine struct {
	pool     poolx.Pool
	poolKey  string
	cfg      configx.EngineConfig
	listener TxEventListener
}

// NewEngine - Engine constructor for an already-built pool. The config must
// be normalized (see configx.NormalizeEngineConfig); listener may be nil.
func NewEngine(pool poolx.Pool, cfg configx.EngineConfig, listener TxEventListener) *Engine {
	return &Engine{
		pool:     pool,
		cfg:      cfg,
		listener: listener,
	}
}

// BuildPool - construct the configured pool variant for a handle factory.
// Selection is a configuration-time decision over a closed set of variants.
func BuildPool(factory poolx.HandleFactory, cfg configx.EngineConfig, listener poolx.EventListener) poolx.Pool {
	if cfg.PoolClass == PoolClassPinned {
		return poolx.NewPinnedPool(factory, poolx.PinnedPoolConfig{
			Echo:     cfg.Echo,
			Listener: listener,
		})
	}

	maxOverflow := configx.DefaultMaxOverflow
	if cfg.MaxOverflow != nil {
		maxOverflow = *cfg.MaxOverflow
	}

	return poolx.NewQueuePool(factory, poolx.QueuePoolConfig{
		PoolSize:    cfg.PoolSize,
		MaxOverflow: maxOverflow,
		Timeout:     cfg.Timeout(),
		UseAffinity: cfg.UseAffinity != nil && *cfg.UseAffinity,
		Echo:        cfg.Echo,
		Listener:    listener,
	})
}

// SetupEngine - build an Engine whose pool is shared through the registry:
// two engines constructed with equivalent connection parameters resolve to
// the same registry entry and therefore one pool.
func SetupEngine(
	registry *poolx.Registry,
	factory poolx.HandleFactory,
	engineCfg *configx.EngineConfig,
	dbConf configx.DatabaseConfig,
	poolListener poolx.EventListener,
	txListener TxEventListener,
) (*Engine, error) {
	cfg, err := configx.NormalizeEngineConfig(engineCfg)
	if err != nil {
		return nil, err
	}

	key := poolx.CanonicalKey(dbConf)

	pool, err := registry.GetOrCreate(key, func() (poolx.Pool, error) {
		return BuildPool(factory, cfg, poolListener), nil
	})
	if err != nil {
		return nil, err
	}

	engine := NewEngine(pool, cfg, txListener)
	engine.poolKey = key

	return engine, nil
}

// Pool - the engine's pool.
func (e *Engine) Pool() poolx.Pool {
	return e.pool
}

// PoolKey - canonical registry key of the engine's pool; empty when the
// engine was built directly on a pool.
func (e *Engine) PoolKey() string {
	return e.poolKey
}

// Strategy - the configured execution strategy.
func (e *Engine) Strategy() string {
	return e.cfg.Strategy
}

// NewSessionContext - derive a context carrying a fresh Session for the
// contextual strategy, plus an owner pin when the pool is pinned or keyed by
// affinity. With the plain strategy only the pin (if needed) is added.
func (e *Engine) NewSessionContext(ctx context.Context) context.Context {
	if e.cfg.PoolClass == PoolClassPinned || (e.cfg.UseAffinity != nil && *e.cfg.UseAffinity) {
		ctx = poolx.WithPin(ctx)
	}

	if e.cfg.Strategy == StrategyContextual {
		ctx = context.WithValue(ctx, sessionContextKey{}, &Session{engine: e})
	}

	return ctx
}

// Connect - plain checkout, independent of any ambient transaction.
func (e *Engine) Connect(ctx context.Context) (*Connection, error) {
	return e.checkout(ctx)
}

// ContextualConnect - return a Connection participating in the ambient
// session's transaction: the session's bound Connection with its refcount
// incremented, not a fresh checkout. Outside a session transaction (or with
// the plain strategy) it behaves like Connect.
func (e *Engine) ContextualConnect(ctx context.Context) (*Connection, error) {
	if session, ok := e.session(ctx); ok {
		if conn := session.Connection(); conn != nil {
			return conn.Share()
		}
	}

	return e.checkout(ctx)
}

// Execute - connectionless statement execution. Inside an ambient session
// transaction the statement runs on the session's Connection; otherwise a
// Connection is checked out for the single statement and released on every
// exit path. Data-mutating statements outside a transaction autocommit.
func (e *Engine) Execute(ctx context.Context, statement string, args ...any) (any, error) {
	if session, ok := e.session(ctx); ok {
		if conn := session.Connection(); conn != nil {
			return conn.Execute(ctx, statement, args...)
		}
	}

	conn, err := e.checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	return conn.Execute(ctx, statement, args...)
}

// Begin - open (or nest into) the ambient session transaction. Contextual
// strategy only; the context must carry a Session from NewSessionContext.
func (e *Engine) Begin(ctx context.Context) error {
	session, err := e.requireSession(ctx)
	if err != nil {
		return err
	}

	return session.begin(ctx)
}

// Commit - leave one level of the ambient session transaction; the outermost
// call performs the physical commit.
func (e *Engine) Commit(ctx context.Context) error {
	session, err := e.requireSession(ctx)
	if err != nil {
		return err
	}

	return session.commit(ctx)
}

// Rollback - roll the ambient session transaction back unconditionally, at
// any nesting level.
func (e *Engine) Rollback(ctx context.Context) error {
	session, err := e.requireSession(ctx)
	if err != nil {
		return err
	}

	return session.rollback(ctx)
}

// WithConnection - run fn with a checked-out Connection, guaranteeing the
// release on every exit path including panics.
func (e *Engine) WithConnection(ctx context.Context, fn func(ctx context.Context, conn *Connection) error) error {
	conn, err := e.ContextualConnect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	return fn(ctx, conn)
}

// Transaction - run fn inside a transaction scope: committed on a nil
// return, rolled back on error or panic.
func (e *Engine) Transaction(ctx context.Context, fn func(ctx context.Context, conn *Connection) error) error {
	return e.WithConnection(ctx, func(ctx context.Context, conn *Connection) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}

		defer func() {
			if tx.State() == TxActive {
				_ = tx.Rollback(ctx)
			}
		}()

		if err := fn(ctx, conn); err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errorx.IsTransactionState(rollbackErr) {
				return rollbackErr
			}

			return err
		}

		return tx.Commit(ctx)
	})
}

func (e *Engine) checkout(ctx context.Context) (*Connection, error) {
	handle, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return newConnection(e.pool, handle, e.cfg.Echo, e.listener), nil
}

func (e *Engine) session(ctx context.Context) (*Session, bool) {
	if e.cfg.Strategy != StrategyContextual {
		return nil, false
	}

	session, ok := SessionFromContext(ctx)
	if !ok || session.engine != e {
		return nil, false
	}

	return session, true
}

func (e *Engine) requireSession(ctx context.Context) (*Session, error) {
	if e.cfg.Strategy != StrategyContextual {
		return nil, errorx.NewGeneralError(
			"engine-level transactions require the %q strategy", StrategyContextual)
	}

	session, ok := SessionFromContext(ctx)
	if !ok || session.engine != e {
		return nil, errorx.NewGeneralError(
			"no session in context: derive one with Engine.NewSessionContext")
	}

	return session, nil
}
