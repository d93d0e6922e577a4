package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/priceline/replacement-pricer/server/internal/store"
	"github.com/priceline/replacement-pricer/server/internal/store/storetest"
)

// makePGStore starts a disposable Postgres container, applies the schema,
// and returns a store.Store backed by it. t.Cleanup tears the container
// down at the end of the test regardless of outcome.
func makePGStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pricer"),
		postgres.WithUsername("pricer"),
		postgres.WithPassword("pricer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	if err := Bootstrap(ctx, dsn); err != nil {
		t.Fatalf("bootstrap schema: %v", err)
	}

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewWithDB(db)
}

func TestPostgresStore_Compliance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed integration test in -short mode")
	}
	storetest.Run(t, makePGStore)
}
