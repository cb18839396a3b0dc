package enginex

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/marcodd23/go-pool-core/pkg/errorx"
	"github.com/marcodd23/go-pool-core/pkg/logx"
	"github.com/marcodd23/go-pool-core/pkg/poolx"
)

// Statements that mutate data get an implicit commit when executed outside an
// open transaction (autocommit).
var autocommitRegexp = regexp.MustCompile(`(?i)^\s*(INSERT|UPDATE|DELETE|CREATE|DROP|ALTER|TRUNCATE)\b`)

//###################################
//#         Connection              #
//###################################

// Connection - reference-counted wrapper around a checked-out Handle. The
// refcount starts at 1; contextual views produced by Share increment it and
// each Close decrements it. When the last reference is released the handle
// goes back to its pool, or is disposed if a prior failed operation marked
// the connection invalid.
//
// A Connection is not safe for concurrent use by multiple goroutines without
// external synchronization; the internal mutex only protects the refcount and
// transaction bookkeeping shared with contextual views.
type Connection struct {
	id     string
	pool   poolx.Pool
	handle poolx.Handle
	echo   bool
	events TxEventListener

	mu       sync.Mutex
	refcount int
	invalid  bool
	closed   bool
	txs      []*Transaction
}

func newConnection(pool poolx.Pool, handle poolx.Handle, echo bool, events TxEventListener) *Connection {
	return &Connection{
		id:       uuid.NewString(),
		pool:     pool,
		handle:   handle,
		echo:     echo,
		events:   events,
		refcount: 1,
	}
}

// ID - identity of this checkout, used in logs.
func (c *Connection) ID() string {
	return c.id
}

// Share - produce a derived view of this Connection for the same underlying
// handle, incrementing the refcount. The view is the Connection itself;
// closing it only decrements the shared count.
func (c *Connection) Share() (*Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errorx.NewGeneralError("connection %s is closed", c.id)
	}

	c.refcount++

	return c, nil
}

// Execute - delegate a statement to the underlying Handle. A data-mutating
// statement executed outside an open transaction is wrapped in an implicit
// begin/commit pair. A fatal handle error marks the connection invalid so its
// eventual release disposes the handle instead of pooling it.
func (c *Connection) Execute(ctx context.Context, statement string, args ...any) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errorx.NewGeneralError("connection %s is closed", c.id)
	}

	inTransaction := len(c.txs) > 0
	c.mu.Unlock()

	cursor, err := c.handle.Execute(ctx, statement, args...)
	if err != nil {
		if errorx.IsHandleInvalid(err) {
			c.Invalidate(ctx)
		}

		return nil, err
	}

	if !inTransaction && autocommitRegexp.MatchString(statement) {
		if err := c.handle.Commit(ctx); err != nil {
			if errorx.IsHandleInvalid(err) {
				c.Invalidate(ctx)
			}

			return nil, err
		}
	}

	return cursor, nil
}

// Begin - open a Transaction on this connection at the next nesting depth.
// Only the outermost transaction's commit has physical effect.
func (c *Connection) Begin(ctx context.Context) (*Transaction, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, errorx.NewGeneralError("connection %s is closed", c.id)
	}

	tx := &Transaction{
		conn:  c,
		depth: len(c.txs) + 1,
		state: TxActive,
	}
	c.txs = append(c.txs, tx)
	c.mu.Unlock()

	c.emit(EventTxBegin)

	if c.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Connection %s: transaction begun at depth %d", c.id, tx.depth))
	}

	return tx, nil
}

// Invalidate - mark the connection invalid; its handle will be disposed on
// the final Close, never returned to the idle set.
func (c *Connection) Invalidate(ctx context.Context) {
	c.mu.Lock()
	alreadyInvalid := c.invalid
	c.invalid = true
	c.mu.Unlock()

	if !alreadyInvalid && c.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Connection %s: marked invalid", c.id))
	}
}

// IsInvalid - report whether the connection has been marked invalid.
func (c *Connection) IsInvalid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.invalid
}

// InTransaction - report whether at least one transaction is open.
func (c *Connection) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.txs) > 0
}

// Close - release one reference. When the last reference goes, any still-open
// transaction is rolled back and the handle returns to the pool (or is
// disposed if invalid). Closing an already-closed connection is a no-op,
// never a double release.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.refcount--
	if c.refcount > 0 {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	openTxs := len(c.txs) > 0

	for _, tx := range c.txs {
		tx.state = TxRolledBack
	}

	c.txs = nil
	invalid := c.invalid
	c.mu.Unlock()

	var rollbackErr error
	if openTxs && !invalid {
		rollbackErr = c.handle.Rollback(ctx)
		c.emit(EventTxRollback)
	}

	if invalid || errorx.IsHandleInvalid(rollbackErr) {
		c.pool.Dispose(ctx, c.handle)
	} else {
		c.pool.Release(ctx, c.handle)
	}

	if c.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Connection %s: closed, handle returned to pool", c.id))
	}

	return rollbackErr
}

func (c *Connection) emit(event TxEvent) {
	if c.events != nil {
		c.events(event)
	}
}
