package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"fiftybrains/delivery/internal/database"
	"fiftybrains/delivery/internal/models"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "deliveries",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("skip postgres ledger tests: cannot start container: %v", err)
	}
	t.Cleanup(func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/deliveries?sslmode=disable", host, port.Port())
}

func TestPostgresLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skip postgres ledger tests in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(ctx, t)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))

	runLedgerContract(t, func(t *testing.T) (contractLedger, seedFunc) {
		_, err := pool.Exec(ctx, `TRUNCATE storage_tombstones, deliveries, applications, gigs`)
		require.NoError(t, err)

		seed := func(t *testing.T, gigID, brandID, appID, creatorID string, status models.ApplicationStatus) {
			_, err := pool.Exec(ctx, `INSERT INTO gigs (id, brand_id, title) VALUES ($1, $2, 'gig')`, gigID, brandID)
			require.NoError(t, err)
			_, err = pool.Exec(ctx,
				`INSERT INTO applications (id, gig_id, creator_id, status) VALUES ($1, $2, $3, $4)`,
				appID, gigID, creatorID, string(status),
			)
			require.NoError(t, err)
		}
		return NewPostgresLedger(pool), seed
	})
}
