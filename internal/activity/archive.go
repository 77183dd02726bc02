package activity

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Archive persists activity events in sqlite so the dashboard's history
// survives process restarts.
type Archive struct {
	db *sql.DB
}

// NewArchive opens (or creates) the archive database.
func NewArchive(dbPath string) (*Archive, error) {
	// WAL mode allows the dashboard to read while the agent writes.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity database: %w", err)
	}

	// SQLite doesn't support multiple writers well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping activity database: %w", err)
	}

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize activity schema: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activity (
		id      TEXT PRIMARY KEY,
		ts_unix INTEGER NOT NULL,
		type    TEXT NOT NULL,
		details TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_ts ON activity(ts_unix);
	CREATE INDEX IF NOT EXISTS idx_activity_type ON activity(type);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Insert stores one event. Details are stored as a JSON blob.
func (a *Archive) Insert(ev Event) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		details = []byte("{}")
	}
	query := `INSERT OR REPLACE INTO activity (id, ts_unix, type, details) VALUES (?, ?, ?, ?)`
	_, err = a.db.Exec(query, ev.ID, ev.Timestamp.Unix(), ev.Type, string(details))
	if err != nil {
		return fmt.Errorf("failed to insert activity event: %w", err)
	}
	return nil
}

// History returns up to limit archived events, newest first.
func (a *Archive) History(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, ts_unix, type, details FROM activity ORDER BY ts_unix DESC, id LIMIT ?`
	rows, err := a.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var tsUnix int64
		var rawDetails string
		if err := rows.Scan(&ev.ID, &tsUnix, &ev.Type, &rawDetails); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		ev.Timestamp = time.Unix(tsUnix, 0).UTC()
		if err := json.Unmarshal([]byte(rawDetails), &ev.Details); err != nil {
			ev.Details = map[string]any{"raw": rawDetails}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune removes archived events older than the retention window.
func (a *Archive) Prune(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).Unix()
	_, err := a.db.Exec(`DELETE FROM activity WHERE ts_unix < ?`, cutoff)
	return err
}
