package enginex

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-pool-core/pkg/errorx"
	"github.com/marcodd23/go-pool-core/pkg/logx"
)

// =====================================
// Transaction Events
// =====================================

// TxEvent - observable transaction event.
type TxEvent string

const (
	EventTxBegin    TxEvent = "transaction-begin"
	EventTxCommit   TxEvent = "transaction-commit"
	EventTxRollback TxEvent = "transaction-rollback"
)

// TxEventListener - hook invoked on transaction events, may be nil.
type TxEventListener func(event TxEvent)

// =====================================
// Transaction State
// =====================================

// TxState - transaction lifecycle state. Active transitions once, to either
// Committed or RolledBack; both are terminal.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

// String - human-readable state name.
func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

//###################################
//#         Transaction             #
//###################################

// Transaction - nesting-aware scope bound to a Connection. The transaction
// opened at depth 1 is the only one whose Commit invokes the handle's
// physical commit; inner commits just mark their scope and defer. Rollback is
// the deliberate asymmetry: at any depth it rolls the physical resource back
// immediately and poisons every still-active scope on the connection.
type Transaction struct {
	conn  *Connection
	depth int
	state TxState
}

// Depth - nesting depth of this transaction, outermost is 1.
func (t *Transaction) Depth() int {
	return t.depth
}

// State - current lifecycle state.
func (t *Transaction) State() TxState {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()

	return t.state
}

// Connection - the connection this transaction is bound to.
func (t *Transaction) Connection() *Connection {
	return t.conn
}

// Commit - commit this transaction scope. At depth 1 the handle's commit is
// invoked; at greater depth the scope is only marked committed and the
// physical commit is deferred to the outermost transaction. Committing a
// terminal transaction fails with errorx.TransactionStateError.
func (t *Transaction) Commit(ctx context.Context) error {
	conn := t.conn

	conn.mu.Lock()

	if t.state != TxActive {
		conn.mu.Unlock()
		return errorx.NewTransactionStateError(
			"cannot commit transaction at depth %d: already %s", t.depth, t.state)
	}

	if n := len(conn.txs); n == 0 || conn.txs[n-1] != t {
		conn.mu.Unlock()
		return errorx.NewTransactionStateError(
			"cannot commit transaction at depth %d: an inner transaction is still active", t.depth)
	}

	conn.txs = conn.txs[:len(conn.txs)-1]
	t.state = TxCommitted
	physical := t.depth == 1
	conn.mu.Unlock()

	if !physical {
		return nil
	}

	err := conn.handle.Commit(ctx)
	if err != nil && errorx.IsHandleInvalid(err) {
		conn.Invalidate(ctx)
	}

	conn.emit(EventTxCommit)

	if conn.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Connection %s: transaction committed", conn.id))
	}

	return err
}

// Rollback - roll back unconditionally. The handle's rollback is invoked
// immediately regardless of depth and every still-active transaction on the
// connection becomes rolled_back: an inner rollback forces the whole nested
// scope to fail. Rolling back a terminal transaction fails with
// errorx.TransactionStateError.
func (t *Transaction) Rollback(ctx context.Context) error {
	conn := t.conn

	conn.mu.Lock()

	if t.state != TxActive {
		conn.mu.Unlock()
		return errorx.NewTransactionStateError(
			"cannot rollback transaction at depth %d: already %s", t.depth, t.state)
	}

	for _, tx := range conn.txs {
		if tx.state == TxActive {
			tx.state = TxRolledBack
		}
	}

	conn.txs = nil
	conn.mu.Unlock()

	err := conn.handle.Rollback(ctx)
	if err != nil && errorx.IsHandleInvalid(err) {
		conn.Invalidate(ctx)
	}

	conn.emit(EventTxRollback)

	if conn.echo {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("Connection %s: transaction rolled back at depth %d", conn.id, t.depth))
	}

	return err
}
