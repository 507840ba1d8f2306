package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"diag-agent/app/domains"
)

// Store is the SQLite command journal. It records delivered commands and
// their outcomes for local inspection; it is never used to re-execute work.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new SQLite store
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}

	if err := store.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations runs SQL migrations
func (s *Store) runMigrations() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS command_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command_id INTEGER NOT NULL,
			command_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			submitted INTEGER NOT NULL DEFAULT 0,
			error_msg TEXT,
			artifact_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_cmdid ON command_journal(command_id)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_status ON command_journal(status, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// RecordDelivered journals a freshly polled command as running and returns its entry id
func (s *Store) RecordDelivered(ctx context.Context, cmd domains.Command) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO command_journal (command_id, command_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, cmd.ID, string(cmd.Type), domains.StatusRunning, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordOutcome stores the terminal status of an entry
func (s *Store) RecordOutcome(ctx context.Context, entryID int64, result *domains.CommandResult) error {
	var errorMsg, artifactID *string
	if result.ErrorMessage != "" {
		msg := result.ErrorMessage
		errorMsg = &msg
	}
	if id, ok := result.Properties["fileId"].(string); ok && id != "" {
		artifactID = &id
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE command_journal
		SET status = ?, error_msg = ?, artifact_id = ?, updated_at = ?
		WHERE id = ?
	`, result.Outcome(), errorMsg, artifactID, s.now(), entryID)
	return err
}

// MarkSubmitted records that the result reached the coordinator
func (s *Store) MarkSubmitted(ctx context.Context, entryID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE command_journal SET submitted = 1, updated_at = ? WHERE id = ?
	`, s.now(), entryID)
	return err
}

// SweepAbandoned marks entries left running by a previous process as abandoned
func (s *Store) SweepAbandoned(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE command_journal SET status = ?, updated_at = ? WHERE status = ?
	`, domains.StatusAbandoned, s.now(), domains.StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recent returns the newest entries first
func (s *Store) Recent(ctx context.Context, limit int) ([]domains.CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command_id, command_type, status, submitted, error_msg, artifact_id, created_at, updated_at
		FROM command_journal
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domains.CommandRecord, 0, limit)
	for rows.Next() {
		var rec domains.CommandRecord
		if err := rows.Scan(
			&rec.ID, &rec.CommandID, &rec.CommandType, &rec.Status, &rec.Submitted,
			&rec.ErrorMessage, &rec.ArtifactID, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Cleanup deletes finished entries created before now-olderThan
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM command_journal
		WHERE status != ? AND created_at < ?
	`, domains.StatusRunning, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
