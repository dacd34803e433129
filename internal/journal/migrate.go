package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order, each exactly once, tracked in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: requests, reports",
		SQL: `
		CREATE TABLE IF NOT EXISTS requests (
			id              TEXT PRIMARY KEY,
			bot             TEXT NOT NULL,
			command         TEXT NOT NULL,
			user_id         TEXT,
			conversation_id TEXT,
			message_id      TEXT,
			outcome         TEXT NOT NULL,
			error           TEXT,
			latency_ms      INTEGER DEFAULT 0,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_requests_time ON requests(created_at);

		CREATE TABLE IF NOT EXISTS reports (
			id          TEXT PRIMARY KEY,
			bot         TEXT NOT NULL,
			kind        TEXT NOT NULL,
			message_id  TEXT,
			user_id     TEXT,
			detail      TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		Version:     2,
		Description: "v2: attachment flag and channel on requests",
		SQL: `
		ALTER TABLE requests ADD COLUMN channel TEXT DEFAULT 'poe';
		ALTER TABLE requests ADD COLUMN has_attachment INTEGER DEFAULT 0;
		CREATE INDEX IF NOT EXISTS idx_requests_bot ON requests(bot, command);
		`,
	},
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current := 0
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := applyMigration(db, m, logger); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration runs each statement of m, skipping ones that were already
// applied by hand ("duplicate column", "already exists").
func applyMigration(db *sql.DB, m migration, logger *slog.Logger) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(m.SQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
				logger.Debug("migration statement skipped", "version", m.Version, "stmt", truncate(stmt, 60))
				continue
			}
			return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
		}
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", m.Version, err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// GetSchemaVersion returns the applied schema version, 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
