package fibersrv_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/marcodd23/go-pool-core/pkg/poolx"
	"github.com/marcodd23/go-pool-core/pkg/serverx/fibersrv"
	"github.com/stretchr/testify/require"
)

type nopHandle struct{}

func (nopHandle) Execute(ctx context.Context, statement string, args ...any) (any, error) {
	return nil, nil
}
func (nopHandle) Commit(ctx context.Context) error   { return nil }
func (nopHandle) Rollback(ctx context.Context) error { return nil }
func (nopHandle) Close(ctx context.Context) error    { return nil }

func newStatusApp(t *testing.T, registry *poolx.Registry) *fiber.App {
	t.Helper()

	app := fiber.New()
	fibersrv.RegisterPoolStatusRoutes(app, registry)

	return app
}

// TestHealthzRoute verifies the liveness probe.
func TestHealthzRoute(t *testing.T) {
	app := newStatusApp(t, poolx.NewRegistry())

	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

// TestPoolzRoute verifies that /poolz reports every registered pool under its
// canonical key with live counters.
func TestPoolzRoute(t *testing.T) {
	ctx := context.Background()
	registry := poolx.NewRegistry()

	factory := poolx.FactoryFunc(func(ctx context.Context) (poolx.Handle, error) {
		return nopHandle{}, nil
	})

	pool, err := registry.GetOrCreate("orders-db", func() (poolx.Pool, error) {
		return poolx.NewQueuePool(factory, poolx.QueuePoolConfig{PoolSize: 2}), nil
	})
	require.NoError(t, err)

	handle, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(ctx, handle)

	app := newStatusApp(t, registry)

	resp, err := app.Test(httptest.NewRequest("GET", "/poolz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var statuses map[string]poolx.Status
	require.NoError(t, json.Unmarshal(body, &statuses))
	require.Len(t, statuses, 1)
	require.Equal(t, 2, statuses["orders-db"].Size)
	require.Equal(t, 1, statuses["orders-db"].CheckedOut)
}
