// Package journal records handled requests and platform reports in a local
// SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Request outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeFatal = "fatal"
)

// Report kinds.
const (
	ReportFeedback = "feedback"
	ReportError    = "error"
)

// Entry is one handled query.
type Entry struct {
	ID             string
	Bot            string
	Channel        string
	Command        string
	UserID         string
	ConversationID string
	MessageID      string
	HasAttachment  bool
	Outcome        string
	Error          string
	Latency        time.Duration
	CreatedAt      time.Time
}

// Report is a feedback or error report received from the platform.
type Report struct {
	ID        string
	Bot       string
	Kind      string
	MessageID string
	UserID    string
	Detail    string
	CreatedAt time.Time
}

// Store writes journal rows to SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LogRequest(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Channel == "" {
		e.Channel = "poe"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (id, bot, channel, command, user_id, conversation_id, message_id,
		                       has_attachment, outcome, error, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Bot, e.Channel, e.Command, e.UserID, e.ConversationID, e.MessageID,
		e.HasAttachment, e.Outcome, e.Error, e.Latency.Milliseconds(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) LogReport(ctx context.Context, r Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, bot, kind, message_id, user_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Bot, r.Kind, r.MessageID, r.UserID, r.Detail, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// RecentRequests returns the latest entries, newest first.
func (s *Store) RecentRequests(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot, channel, command, COALESCE(user_id, ''), COALESCE(conversation_id, ''),
		        COALESCE(message_id, ''), has_attachment, outcome, COALESCE(error, ''), latency_ms, created_at
		 FROM requests ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			latencyMS int64
		)
		if err := rows.Scan(&e.ID, &e.Bot, &e.Channel, &e.Command, &e.UserID, &e.ConversationID,
			&e.MessageID, &e.HasAttachment, &e.Outcome, &e.Error, &latencyMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats holds row counts for diagnostics.
type Stats struct {
	Requests int
	Fatal    int
	Reports  int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM requests),
		        (SELECT COUNT(*) FROM requests WHERE outcome = ?),
		        (SELECT COUNT(*) FROM reports)`, OutcomeFatal,
	).Scan(&st.Requests, &st.Fatal, &st.Reports)
	return st, err
}
