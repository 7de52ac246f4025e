package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/backend/backendtest"
	"github.com/marcus/prep/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	s, err := New(conn, WithPollInterval(20*time.Millisecond))
	if err != nil {
		conn.Close()
		t.Fatalf("init test db: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend { return newTestStore(t) })
}

func TestSchemaVersion(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	if v := s.schemaVersion(); v != SchemaVersion {
		t.Errorf("schema version = %d, want %d", v, SchemaVersion)
	}
	if n, err := s.runMigrations(); err != nil || n != 0 {
		t.Errorf("second migration run = %d, %v", n, err)
	}
}

func TestChangesSince(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	d, _ := s.InsertDish(ctx, "Soup")
	it, _ := s.InsertItem(ctx, d.ID, "Stock", 0)
	if _, err := s.UpdateItemRecipe(ctx, it.ID, "bones"); err != nil {
		t.Fatal(err)
	}

	all, err := s.ChangesSince(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ChangesSince: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d changes, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Errorf("seqs not increasing: %d then %d", all[i-1].Seq, all[i].Seq)
		}
	}
	last := all[2]
	if last.Type != models.EventUpdate || last.Item == nil || last.Item.Recipe == nil || *last.Item.Recipe != "bones" {
		t.Errorf("last change = %+v", last)
	}
	if last.OldItem == nil || last.OldItem.Recipe != nil {
		t.Errorf("old image = %+v", last.OldItem)
	}
	if last.At.IsZero() {
		t.Error("change has no timestamp")
	}

	tail, _ := s.ChangesSince(ctx, all[0].Seq, 1)
	if len(tail) != 1 || tail[0].Seq != all[1].Seq {
		t.Errorf("paged tail = %+v", tail)
	}
	seq, _ := s.LastSeq(ctx)
	if seq != all[2].Seq {
		t.Errorf("LastSeq = %d, want %d", seq, all[2].Seq)
	}
}

func TestFailedWriteLogsNothing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	if _, err := s.InsertItem(ctx, "missing", "Stock", 0); err == nil {
		t.Fatal("insert into missing dish should fail")
	}
	if seq, _ := s.LastSeq(ctx); seq != 0 {
		t.Errorf("LastSeq = %d after failed write", seq)
	}
}

// Two stores on one file see each other's writes through the change log.
func TestSubscribeAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	writer, err := Open(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer writer.Close()
	reader, err := Open(path, WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	var rec backendtest.Recorder
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	unsubscribe, err := reader.Subscribe(ctx, rec.Record)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	if _, err := writer.InsertDish(ctx, "Soup"); err != nil {
		t.Fatal(err)
	}
	evs := rec.WaitFor(t, 1, 3*time.Second)
	if evs[0].Dish == nil || evs[0].Dish.Name != "Soup" {
		t.Errorf("event = %+v", evs[0])
	}
}
