// Package store implements C8: embedded relational persistence over
// modernc.org/sqlite (a pure-Go, cgo-free driver), reached through the
// standard database/sql interface — grounded on the teacher's engine
// package, which keeps its own in-memory history behind a single mutex
// rather than a reader/writer split (engine/history.go), the same
// single-writer-mutex simplicity spec.md §4.8 calls for here.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saqw3r/InetMonitor/model"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS apps (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS traffic_log (
	timestamp  INTEGER NOT NULL,
	app_id     INTEGER NOT NULL REFERENCES apps(id),
	bytes_up   INTEGER NOT NULL,
	bytes_down INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_traffic_log_timestamp ON traffic_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_traffic_log_app_id ON traffic_log(app_id);
`

// Store is C8. A single mutex serializes every operation, reads included —
// per §4.8 the hot path never reads, so splitting readers from writers
// would only add complexity without a throughput win.
type Store struct {
	mu sync.Mutex
	db *sql.DB

	// now is overridable in tests so LogTraffic's timestamp is deterministic.
	now func() int64
}

// Open creates or attaches to the sqlite database at path, creating the
// schema if absent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL-less mode: one writer at a time
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db, now: func() int64 { return time.Now().Unix() }}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrAddApp is an atomic upsert: concurrent callers with the same name
// converge to the same id.
func (s *Store) GetOrAddApp(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`INSERT INTO apps(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("store: upsert app %q: %w", name, err)
	}
	var id int64
	if err := s.db.QueryRow(`SELECT id FROM apps WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: read back app %q: %w", name, err)
	}
	return id, nil
}

// LogTraffic inserts one append-only row with timestamp = now_seconds.
func (s *Store) LogTraffic(appID int64, bytesUp, bytesDown uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO traffic_log(timestamp, app_id, bytes_up, bytes_down) VALUES (?, ?, ?, ?)`,
		s.now(), appID, bytesUp, bytesDown,
	)
	if err != nil {
		return fmt.Errorf("store: log traffic for app %d: %w", appID, err)
	}
	return nil
}

// UsageIn sums bytes_up/bytes_down per app over the last lastNSeconds,
// ordered by total bytes descending.
func (s *Store) UsageIn(lastNSeconds int64) ([]model.AppUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now() - lastNSeconds
	rows, err := s.db.Query(`
		SELECT a.id, a.name, SUM(t.bytes_up), SUM(t.bytes_down)
		FROM traffic_log t JOIN apps a ON a.id = t.app_id
		WHERE t.timestamp >= ?
		GROUP BY a.id, a.name
		ORDER BY SUM(t.bytes_up + t.bytes_down) DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: usage query: %w", err)
	}
	defer rows.Close()

	var out []model.AppUsage
	for rows.Next() {
		var u model.AppUsage
		if err := rows.Scan(&u.AppID, &u.AppName, &u.BytesUp, &u.BytesDown); err != nil {
			return nil, fmt.Errorf("store: scan usage row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// FindPeaks groups rows by (timestamp/60)*60, app_id and emits groups whose
// total bytes meet or exceed thresholdBytes, ordered by bucket descending —
// the exact grouping the original PeakDetector uses.
func (s *Store) FindPeaks(lastNSeconds int64, thresholdBytes uint64) ([]model.TrafficPeak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now() - lastNSeconds
	rows, err := s.db.Query(`
		SELECT (t.timestamp / 60) * 60 AS bucket, a.id, a.name, SUM(t.bytes_up + t.bytes_down) AS total
		FROM traffic_log t JOIN apps a ON a.id = t.app_id
		WHERE t.timestamp >= ?
		GROUP BY bucket, a.id, a.name
		HAVING total >= ?
		ORDER BY bucket DESC
	`, cutoff, thresholdBytes)
	if err != nil {
		return nil, fmt.Errorf("store: find peaks: %w", err)
	}
	defer rows.Close()

	var out []model.TrafficPeak
	for rows.Next() {
		var p model.TrafficPeak
		if err := rows.Scan(&p.MinuteBucketStart, &p.AppID, &p.AppName, &p.TotalBytes); err != nil {
			return nil, fmt.Errorf("store: scan peak row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
