// Package store provides the SQLite-backed incident audit log.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emonet/fixwatch/internal/event"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps an SQLite connection for incident storage.
type DB struct {
	db *sql.DB
}

// Open opens or creates an SQLite database at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Insert stores a new incident in the audit log. The excerpt must already be
// sanitized: nothing raw is ever persisted.
func (d *DB) Insert(inc *event.Incident) error {
	_, err := d.db.Exec(`
		INSERT INTO incidents (id, service, timestamp, reason, decision, excerpt, delivered, issue_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID,
		inc.Service,
		inc.Timestamp.UTC().Format(time.RFC3339Nano),
		inc.Reason,
		string(inc.Decision),
		inc.Excerpt,
		inc.Delivered,
		inc.IssueURL,
	)
	if err != nil {
		return fmt.Errorf("inserting incident: %w", err)
	}
	return nil
}

// MarkDelivered records that an incident's report was accepted by the sink.
func (d *DB) MarkDelivered(id, issueURL string) error {
	_, err := d.db.Exec(`UPDATE incidents SET delivered = TRUE, issue_url = ? WHERE id = ?`, issueURL, id)
	return err
}

// QueryFilter controls which incidents are returned by Query.
type QueryFilter struct {
	Since    time.Time
	Until    time.Time
	Service  string
	Decision string
	Limit    int
}

// Query returns incidents matching the filter, ordered by timestamp descending.
func (d *DB) Query(f QueryFilter) ([]*event.Incident, error) {
	query := `SELECT id, service, timestamp, reason, decision, excerpt, delivered, issue_url
		FROM incidents WHERE 1=1`
	var args []interface{}

	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}
	if f.Service != "" {
		query += " AND service = ?"
		args = append(args, f.Service)
	}
	if f.Decision != "" {
		query += " AND decision = ?"
		args = append(args, f.Decision)
	}

	query += " ORDER BY timestamp DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*event.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// Count returns per-decision incident counts for a service since the given
// time. An empty service counts across all services.
func (d *DB) Count(service string, since time.Time) (map[event.Decision]int, error) {
	query := `SELECT decision, COUNT(*) FROM incidents WHERE timestamp >= ?`
	args := []interface{}{since.UTC().Format(time.RFC3339Nano)}
	if service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}
	query += " GROUP BY decision"

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting incidents: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.Decision]int)
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[event.Decision(decision)] = n
	}
	return counts, rows.Err()
}

// Purge deletes incidents older than the given retention duration.
func (d *DB) Purge(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339Nano)
	result, err := d.db.Exec(`DELETE FROM incidents WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging old incidents: %w", err)
	}
	return result.RowsAffected()
}

func scanIncident(rows *sql.Rows) (*event.Incident, error) {
	var inc event.Incident
	var tsStr, decision string
	var reason, excerpt, issueURL sql.NullString

	err := rows.Scan(
		&inc.ID,
		&inc.Service,
		&tsStr,
		&reason,
		&decision,
		&excerpt,
		&inc.Delivered,
		&issueURL,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning incident row: %w", err)
	}

	inc.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	inc.Reason = reason.String
	inc.Excerpt = excerpt.String
	inc.Decision = event.Decision(decision)
	inc.IssueURL = issueURL.String

	return &inc, nil
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			id        TEXT PRIMARY KEY,
			service   TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			reason    TEXT,
			decision  TEXT NOT NULL,
			excerpt   TEXT,
			delivered BOOLEAN DEFAULT FALSE,
			issue_url TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_service_ts ON incidents(service, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_decision ON incidents(decision, timestamp)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	slog.Debug("database schema up to date")
	return nil
}
