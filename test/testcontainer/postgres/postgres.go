package postgres

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/marcodd23/go-pool-core/pkg/configx"
	"github.com/marcodd23/go-pool-core/test"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresContainerImage = "docker.io/postgres:16-alpine"
	postgresContainerPort  = "5432/tcp"

	MainDbName     = "main-db"
	MainDbUser     = "postgres"
	MainDbPassword = "password"
)

// PostgresContainer represents the postgres Container type used in the module.
type PostgresContainer struct {
	Container  *postgres.PostgresContainer
	MappedPort nat.Port
	Host       string
	DbName     string
	DbUser     string
	DbPassword string
}

// StartPostgresContainer - create and start a postgres container for integration tests.
func StartPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	test.ConfigTestRootPath()

	pg, err := postgres.Run(ctx,
		postgresContainerImage,
		postgres.WithDatabase(MainDbName),
		postgres.WithUsername(MainDbUser),
		postgres.WithPassword(MainDbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second)),
	)

	require.NoError(t, err)
	require.NotNil(t, pg)

	err = pg.Start(ctx)
	require.NoError(t, err)

	mappedPort, err := pg.MappedPort(ctx, postgresContainerPort)
	require.NoError(t, err)

	host, err := pg.Host(ctx)
	require.NoError(t, err)

	log.Printf("Postgres running at %s:%s", host, mappedPort.Port())

	return &PostgresContainer{
		Container:  pg,
		MappedPort: mappedPort,
		Host:       host,
		DbName:     MainDbName,
		DbUser:     MainDbUser,
		DbPassword: MainDbPassword,
	}
}

// DatabaseConfig - connection parameters of the running container.
func (pc *PostgresContainer) DatabaseConfig() configx.DatabaseConfig {
	return configx.DatabaseConfig{
		Scheme:   "postgres",
		Host:     pc.Host,
		Port:     int32(pc.MappedPort.Int()),
		DBName:   pc.DbName,
		User:     pc.DbUser,
		Password: pc.DbPassword,
		Options:  map[string]string{"sslmode": "disable"},
	}
}

// Terminate - stop and remove the container.
func (pc *PostgresContainer) Terminate(ctx context.Context, t *testing.T) {
	require.NoError(t, pc.Container.Terminate(ctx))
}
