// Package audit keeps a journal of registry sweep passes.
package audit

import (
	"errors"
	"time"
)

// Store persists sweep records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores a record. Appending a SweepID that already exists
	// replaces the earlier record.
	Append(rec Record) error

	// Get retrieves a record by sweep ID.
	// Returns ErrNotFound if it doesn't exist.
	Get(sweepID string) (Record, error)

	// List returns up to limit records, newest first.
	// A limit <= 0 returns every record.
	List(limit int) ([]Record, error)

	// Purge deletes records older than before and reports how many went.
	Purge(before time.Time) (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Record describes one sweep pass.
type Record struct {
	SweepID    string
	Registry   string
	Timestamp  time.Time
	Scanned    int
	Reclaimed  int
	Identities []uint64
}

// Sentinel errors for journal operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("sweep record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("sweep journal closed")

	// ErrMissingSweepID indicates a record without a SweepID was appended.
	ErrMissingSweepID = errors.New("sweep record has no ID")
)
