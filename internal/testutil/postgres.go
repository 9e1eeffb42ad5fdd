//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/privacyops/dsar/internal/database"
)

// NewPostgresPool starts a Postgres container, applies the service schema plus the given
// extra DDL, and returns a connected pool. Everything is torn down with t.Cleanup.
func NewPostgresPool(t *testing.T, extraDDL ...string) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dsar"),
		tcpostgres.WithUsername("dsar"),
		tcpostgres.WithPassword("dsar"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := database.Connect(ctx, database.Config{URL: dsn})
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	for _, ddl := range extraDDL {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			t.Fatalf("failed to apply test DDL: %v", err)
		}
	}

	return pool
}
