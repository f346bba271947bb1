//go:build integration

package pg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up an ephemeral cluster and returns a client wired to
// it as the elevated role.
func startPostgres(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	waitStrategy := wait.ForLog("database system is ready to accept connections").
		WithOccurrence(2).
		WithStartupTimeout(5 * time.Minute)

	pgContainer, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("postgres"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("it-secret"),
		testcontainers.WithWaitStrategy(waitStrategy),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return NewClient(ClientConfig{
		Host:          host,
		Port:          port.Int(),
		AdminUser:     "postgres",
		AdminPassword: "it-secret",
	})
}

func TestProvisionAndCleanupLifecycle(t *testing.T) {
	ctx := context.Background()
	client := startPostgres(t)

	// Idempotent on absence.
	require.NoError(t, client.DeleteRoleAndDatabase(ctx, "u1", "d1"))

	require.NoError(t, client.CreateRoleAndDatabase(ctx, "u1", "d1", "p1"))
	require.NoError(t, client.PingAsRole(ctx, "u1", "d1", "p1"))

	// Extensions are created under the elevated role; u1 could not.
	require.NoError(t, client.RunStatementsAsElevatedRole(ctx, "d1", []string{
		`CREATE EXTENSION IF NOT EXISTS "pg_trgm"`,
	}))

	require.NoError(t, client.RunStatementsAsRole(ctx, "u1", "d1", "p1", []string{
		"CREATE TABLE t (id int)",
		"INSERT INTO t VALUES (1)",
		"CREATE SEQUENCE base_cache_signaling",
		"CREATE SEQUENCE base_registry_signaling",
		"CREATE SEQUENCE t_id_seq",
	}))

	count, err := client.CountUserTables(ctx, "u1", "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	sequences, err := client.ListSignalingSequences(ctx, "u1", "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"base_cache_signaling", "base_registry_signaling"}, sequences)

	require.NoError(t, client.DropSequencesCascade(ctx, "u1", "d1", "p1", sequences))

	sequences, err = client.ListSignalingSequences(ctx, "u1", "d1", "p1")
	require.NoError(t, err)
	assert.Empty(t, sequences)

	// The unrelated sequence survives the cleaner.
	require.NoError(t, client.RunStatementsAsRole(ctx, "u1", "d1", "p1", []string{
		"SELECT nextval('t_id_seq')",
	}))

	// Delete-then-create yields a clean pair even when the identity was
	// used before.
	require.NoError(t, client.DeleteRoleAndDatabase(ctx, "u1", "d1"))
	require.NoError(t, client.CreateRoleAndDatabase(ctx, "u1", "d1", "p2"))

	count, err = client.CountUserTables(ctx, "u1", "d1", "p2")
	require.NoError(t, err)
	assert.Zero(t, count)
}
