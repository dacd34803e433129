package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunMigrations_FreshAndIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if v, err := GetSchemaVersion(db); err != nil || v != 0 {
		t.Fatalf("fresh version = %d, %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, v)
	}
}

func TestRunMigrations_ColumnAddedByHand(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// Apply v1 only, then add one v2 column manually.
	if err := applyMigration(db, migrations[0], testLogger()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("ALTER TABLE requests ADD COLUMN channel TEXT DEFAULT 'poe'"); err != nil {
		t.Fatal(err)
	}
	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if v, _ := GetSchemaVersion(db); v != schemaVersion {
		t.Errorf("expected version %d, got %d", schemaVersion, v)
	}
}

func TestLogRequestAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	entries := []Entry{
		{Bot: "echo", Command: "generate", UserID: "u1", MessageID: "m1", HasAttachment: true, Outcome: OutcomeOK, Latency: 1500 * time.Millisecond, CreatedAt: base},
		{Bot: "echo", Command: "enhance", UserID: "u1", MessageID: "m2", Outcome: OutcomeFatal, Error: "missing credential", CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := s.LogRequest(ctx, e); err != nil {
			t.Fatalf("LogRequest: %v", err)
		}
	}

	got, err := s.RecentRequests(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].MessageID != "m2" || got[0].Outcome != OutcomeFatal || got[0].Error != "missing credential" {
		t.Errorf("unexpected newest entry: %+v", got[0])
	}
	if got[1].ID == "" {
		t.Error("expected generated id")
	}
	if !got[1].HasAttachment || got[1].Latency != 1500*time.Millisecond || got[1].Channel != "poe" {
		t.Errorf("unexpected oldest entry: %+v", got[1])
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.LogRequest(ctx, Entry{Bot: "echo", Command: "default", Outcome: OutcomeOK})
	_ = s.LogRequest(ctx, Entry{Bot: "stego", Command: "hide", Outcome: OutcomeFatal})
	if err := s.LogReport(ctx, Report{Bot: "echo", Kind: ReportFeedback, MessageID: "m1", Detail: "like"}); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Requests != 2 || st.Fatal != 1 || st.Reports != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}
