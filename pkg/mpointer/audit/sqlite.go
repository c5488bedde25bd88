package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists sweep records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	retry  RetryConfig
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithRetry sets how writes retry while another connection holds the lock.
// Default: DefaultRetry
func WithRetry(cfg RetryConfig) SQLiteOption {
	return func(s *SQLiteStore) {
		s.retry = cfg
	}
}

// NewSQLiteStore opens (or creates) a journal database.
// The path should be a file path (e.g., "./sweeps.db") or ":memory:" for testing.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A :memory: database is per-connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sweeps (
			sweep_id TEXT PRIMARY KEY,
			registry TEXT NOT NULL,
			ts_unix_nano INTEGER NOT NULL,
			scanned INTEGER NOT NULL,
			reclaimed INTEGER NOT NULL,
			identities TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sweeps_ts
		ON sweeps(ts_unix_nano)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	s := &SQLiteStore{db: db, retry: DefaultRetry}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(rec Record) error {
	if rec.SweepID == "" {
		return ErrMissingSweepID
	}
	ids := rec.Identities
	if ids == nil {
		ids = []uint64{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode identities: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err = retry(s.retry, func() error {
		_, err := s.db.Exec(`
			INSERT INTO sweeps (sweep_id, registry, ts_unix_nano, scanned, reclaimed, identities)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(sweep_id) DO UPDATE SET
				registry = excluded.registry,
				ts_unix_nano = excluded.ts_unix_nano,
				scanned = excluded.scanned,
				reclaimed = excluded.reclaimed,
				identities = excluded.identities
		`, rec.SweepID, rec.Registry, rec.Timestamp.UnixNano(), rec.Scanned, rec.Reclaimed, string(encoded))
		return err
	})
	if err != nil {
		return fmt.Errorf("append sweep record: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(sweepID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT sweep_id, registry, ts_unix_nano, scanned, reclaimed, identities
		FROM sweeps WHERE sweep_id = ?
	`, sweepID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load sweep record: %w", err)
	}
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	// SQLite treats a negative LIMIT as "no limit".
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT sweep_id, registry, ts_unix_nano, scanned, reclaimed, identities
		FROM sweeps
		ORDER BY ts_unix_nano DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sweep records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sweep record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep records: %w", err)
	}
	return recs, nil
}

// Purge implements Store.
func (s *SQLiteStore) Purge(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var res sql.Result
	_, err := retry(s.retry, func() error {
		var err error
		res, err = s.db.Exec(`DELETE FROM sweeps WHERE ts_unix_nano < ?`, before.UnixNano())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge sweep records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sweep records: %w", err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var (
		rec     Record
		tsNano  int64
		idsJSON string
	)
	if err := r.Scan(&rec.SweepID, &rec.Registry, &tsNano, &rec.Scanned, &rec.Reclaimed, &idsJSON); err != nil {
		return Record{}, err
	}
	rec.Timestamp = time.Unix(0, tsNano).UTC()
	if err := json.Unmarshal([]byte(idsJSON), &rec.Identities); err != nil {
		return Record{}, fmt.Errorf("decode identities: %w", err)
	}
	return rec, nil
}
