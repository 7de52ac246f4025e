package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/backend/backendtest"
	"github.com/marcus/prep/internal/models"
)

// Tests run against the database named by PREP_TEST_POSTGRES_DSN and are
// skipped without it. Each test truncates the tables it uses.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PREP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PREP_TEST_POSTGRES_DSN not set")
	}
	return dsn
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		t.Fatalf("schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE changes, items, dishes RESTART IDENTITY CASCADE`); err != nil {
		pool.Close()
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	testDSN(t)
	backendtest.Run(t, func(t *testing.T) backend.Backend { return newTestStore(t) })
}

func TestListenDeliversOtherPoolsWrites(t *testing.T) {
	reader := newTestStore(t)
	defer reader.Close()
	writer, err := Open(context.Background(), testDSN(t))
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	var rec backendtest.Recorder
	unsubscribe, err := reader.Subscribe(context.Background(), rec.Record)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	d, err := writer.InsertDish(context.Background(), "Soup")
	if err != nil {
		t.Fatal(err)
	}
	evs := rec.WaitFor(t, 1, 5*time.Second)
	if evs[0].Table != models.TableDishes || evs[0].Dish == nil || evs[0].Dish.ID != d.ID {
		t.Errorf("event = %+v", evs[0])
	}
}
