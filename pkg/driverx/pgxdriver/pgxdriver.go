package pgxdriver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marcodd23/go-pool-core/pkg/configx"
	"github.com/marcodd23/go-pool-core/pkg/errorx"
	"github.com/marcodd23/go-pool-core/pkg/logx"
	"github.com/marcodd23/go-pool-core/pkg/poolx"
	"github.com/pkg/errors"
)

//###################################
//#      Pgx Handle Factory         #
//###################################

// Factory - poolx.HandleFactory backed by pgx. Each handle owns a single
// *pgx.Conn; capacity bounds and reuse are the pool's business, so the
// factory deliberately avoids pgxpool.
type Factory struct {
	dbConf configx.DatabaseConfig
}

// NewFactory - Factory constructor.
func NewFactory(dbConf configx.DatabaseConfig) (*Factory, error) {
	if dbConf.Host == "" {
		return nil, errorx.NewGeneralError("pgx factory: host is empty")
	}

	if dbConf.DBName == "" {
		return nil, errorx.NewGeneralError("pgx factory: dbName is empty")
	}

	if dbConf.User == "" {
		return nil, errorx.NewGeneralError("pgx factory: user is empty")
	}

	return &Factory{dbConf: dbConf}, nil
}

// Create - open a new raw connection handle.
func (f *Factory) Create(ctx context.Context) (poolx.Handle, error) {
	conn, err := pgx.Connect(ctx, f.connString())
	if err != nil {
		return nil, errors.Wrapf(err, "pgx factory: connecting to %s:%d/%s",
			f.dbConf.Host, f.dbConf.Port, f.dbConf.DBName)
	}

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("pgx factory: opened connection to %s:%d/%s",
		f.dbConf.Host, f.dbConf.Port, f.dbConf.DBName))

	return &PgxHandle{conn: conn}, nil
}

func (f *Factory) connString() string {
	port := f.dbConf.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(f.dbConf.User, f.dbConf.Password),
		Host:   fmt.Sprintf("%s:%d", f.dbConf.Host, port),
		Path:   "/" + f.dbConf.DBName,
	}

	if len(f.dbConf.Options) > 0 {
		query := url.Values{}
		for name, value := range f.dbConf.Options {
			query.Set(name, value)
		}

		u.RawQuery = query.Encode()
	}

	return u.String()
}

//###################################
//#      Pgx Result Set             #
//###################################

// ResultSet - materialized statement result. Rows are read eagerly so the
// single connection behind the handle is free for the next statement or
// commit as soon as Execute returns.
type ResultSet struct {
	Columns    []string
	Rows       [][]any
	CommandTag string
}

//###################################
//#         Pgx Handle              #
//###################################

// PgxHandle - poolx.Handle over one *pgx.Conn. The first Execute after a
// commit or rollback implicitly opens a transaction, so Commit and Rollback
// always have a scope to act on. Execute returns a *ResultSet as the opaque
// cursor.
// It implements poolx.Handle.
type PgxHandle struct {
	conn *pgx.Conn
	inTx bool
}

// Execute - run a statement, implicitly beginning a transaction if none is
// open. Fatal connectivity faults come back as errorx.HandleInvalidError so
// the owning connection can invalidate itself.
func (h *PgxHandle) Execute(ctx context.Context, statement string, args ...any) (any, error) {
	if !h.inTx {
		if _, err := h.conn.Exec(ctx, "BEGIN"); err != nil {
			return nil, h.wrapErr(err, "beginning transaction")
		}

		h.inTx = true
	}

	rows, err := h.conn.Query(ctx, statement, args...)
	if err != nil {
		return nil, h.wrapErr(err, "executing statement")
	}
	defer rows.Close()

	result := &ResultSet{}
	for _, field := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, field.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, h.wrapErr(err, "reading row values")
		}

		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, h.wrapErr(err, "reading statement result")
	}

	result.CommandTag = rows.CommandTag().String()

	return result, nil
}

// Commit - commit the open transaction.
func (h *PgxHandle) Commit(ctx context.Context) error {
	if !h.inTx {
		return nil
	}

	h.inTx = false

	if _, err := h.conn.Exec(ctx, "COMMIT"); err != nil {
		return h.wrapErr(err, "committing transaction")
	}

	return nil
}

// Rollback - roll the open transaction back.
func (h *PgxHandle) Rollback(ctx context.Context) error {
	if !h.inTx {
		return nil
	}

	h.inTx = false

	if _, err := h.conn.Exec(ctx, "ROLLBACK"); err != nil {
		return h.wrapErr(err, "rolling back transaction")
	}

	return nil
}

// Close - close the underlying connection.
func (h *PgxHandle) Close(ctx context.Context) error {
	if err := h.conn.Close(ctx); err != nil {
		return errors.Wrap(err, "pgx handle: closing connection")
	}

	return nil
}

// Conn - the underlying pgx connection, for driver-aware callers.
func (h *PgxHandle) Conn() *pgx.Conn {
	return h.conn
}

// wrapErr - classify a driver error: a dead connection or a FATAL-severity
// server error invalidates the handle, anything else passes through wrapped.
func (h *PgxHandle) wrapErr(err error, action string) error {
	if h.conn.IsClosed() {
		return errorx.NewHandleInvalidErrorWrapper(err, "pgx handle: connection lost while %s", action)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Severity == "FATAL" {
		return errorx.NewHandleInvalidErrorWrapper(err, "pgx handle: fatal server error while %s", action)
	}

	return errors.Wrapf(err, "pgx handle: %s", action)
}
