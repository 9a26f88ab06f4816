package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs in a single SQLite database.
type SQLiteStore struct {
	base
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs the
// migration. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s := &SQLiteStore{db: db}
	s.base.b = s
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS artifacts (
        run_id     TEXT NOT NULL,
        key        TEXT NOT NULL,
        body       BLOB NOT NULL,
        created_at TEXT NOT NULL,
        PRIMARY KEY (run_id, key)
    );
    CREATE TABLE IF NOT EXISTS runs (
        run_id       TEXT PRIMARY KEY,
        runbook_path TEXT NOT NULL,
        started_at   TEXT NOT NULL,
        status       TEXT NOT NULL
    );`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate sqlite store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) put(ctx context.Context, runID, key string, body []byte) error {
	query := `INSERT INTO artifacts (run_id, key, body, created_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(run_id, key) DO UPDATE SET body = excluded.body, created_at = excluded.created_at`
	_, err := s.db.ExecContext(ctx, query, runID, key, body, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, runID, key string) ([]byte, error) {
	var body []byte
	row := s.db.QueryRowContext(ctx, `SELECT body FROM artifacts WHERE run_id = ? AND key = ?`, runID, key)
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, runID, key)
		}
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return body, nil
}

func (s *SQLiteStore) exists(ctx context.Context, runID, key string) (bool, error) {
	var one int
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM artifacts WHERE run_id = ? AND key = ?`, runID, key)
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("sqlite exists %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) del(ctx context.Context, runID, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE run_id = ? AND key = ?`, runID, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) list(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM artifacts WHERE run_id = ? ORDER BY key`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite list %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *SQLiteStore) saveRun(ctx context.Context, md RunMetadata) error {
	query := `INSERT INTO runs (run_id, runbook_path, started_at, status) VALUES (?, ?, ?, ?)
        ON CONFLICT(run_id) DO UPDATE SET runbook_path = excluded.runbook_path, status = excluded.status`
	_, err := s.db.ExecContext(ctx, query, md.RunID, md.RunbookPath, md.StartedAt.UTC().Format(time.RFC3339Nano), md.Status)
	if err != nil {
		return fmt.Errorf("sqlite save run %s: %w", md.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) listRuns(ctx context.Context) ([]RunMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, runbook_path, started_at, status FROM runs`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunMetadata
	for rows.Next() {
		var md RunMetadata
		var started string
		if err := rows.Scan(&md.RunID, &md.RunbookPath, &started, &md.Status); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			md.StartedAt = t
		}
		out = append(out, md)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
