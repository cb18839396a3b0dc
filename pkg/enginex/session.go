package enginex

import (
	"context"
	"sync"

	"github.com/marcodd23/go-pool-core/pkg/errorx"
)

type sessionContextKey struct{}

// SessionFromContext - extract the ambient Session, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*Session)
	return session, ok
}

//###################################
//#           Session               #
//###################################

// Session - ambient transaction state for one logical task: the bound
// Connection and the transaction nesting count, carried in a
// context.Context. Because the binding lives in the session value and not in
// any goroutine or thread identity, it cannot leak across reused workers,
// and it survives handoffs where one task hops between goroutines.
//
// A Session serializes its own bookkeeping but is meant to be used by one
// logical task at a time.
type Session struct {
	engine *Engine

	mu     sync.Mutex
	conn   *Connection
	tx     *Transaction
	tcount int
}

// InTransaction - report whether the session has an open transaction scope.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tcount > 0
}

// Connection - the session's bound Connection, nil outside a transaction.
func (s *Session) Connection() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn
}

// begin - open (or nest into) the session transaction scope. The first begin
// checks out the session's Connection and opens the physical transaction
// scope on it; every further begin only increments the nesting count.
func (s *Session) begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tcount == 0 {
		conn, err := s.engine.checkout(ctx)
		if err != nil {
			return err
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			_ = conn.Close(ctx)
			return err
		}

		s.conn = conn
		s.tx = tx
	}

	s.tcount++

	return nil
}

// commit - leave one nesting level. Only the outermost commit invokes the
// physical commit and releases the session's Connection reference.
func (s *Session) commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.tcount == 0:
		return errorx.NewTransactionStateError("no session transaction to commit")
	case s.tcount > 1:
		s.tcount--
		return nil
	default:
		err := s.tx.Commit(ctx)
		s.reset(ctx)

		return err
	}
}

// rollback - unconditional: rolls the physical transaction back at any
// nesting level and closes out the whole scope.
func (s *Session) rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tcount == 0 {
		return errorx.NewTransactionStateError("no session transaction to rollback")
	}

	err := s.tx.Rollback(ctx)
	s.reset(ctx)

	return err
}

// reset - release the session's own Connection reference and clear the
// binding. If contextual views are still open the handle goes back to the
// pool when the last of them closes. Caller holds s.mu.
func (s *Session) reset(ctx context.Context) {
	if s.conn != nil {
		_ = s.conn.Close(ctx)
	}

	s.conn = nil
	s.tx = nil
	s.tcount = 0
}
