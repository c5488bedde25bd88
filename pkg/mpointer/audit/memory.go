package audit

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory journal.
// Records are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]storedRecord
	seq     int
	closed  bool
}

// storedRecord remembers insertion order so List is stable for records
// sharing a timestamp.
type storedRecord struct {
	rec Record
	seq int
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]storedRecord),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(rec Record) error {
	if rec.SweepID == "" {
		return ErrMissingSweepID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.seq++
	m.records[rec.SweepID] = storedRecord{rec: cloneRecord(rec), seq: m.seq}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(sweepID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	sr, ok := m.records[sweepID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(sr.rec), nil
}

// List implements Store.
func (m *MemoryStore) List(limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	all := make([]storedRecord, 0, len(m.records))
	for _, sr := range m.records {
		all = append(all, sr)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].rec.Timestamp.Equal(all[j].rec.Timestamp) {
			return all[i].rec.Timestamp.After(all[j].rec.Timestamp)
		}
		return all[i].seq > all[j].seq
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]Record, len(all))
	for i, sr := range all {
		out[i] = cloneRecord(sr.rec)
	}
	return out, nil
}

// Purge implements Store.
func (m *MemoryStore) Purge(before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	n := 0
	for id, sr := range m.records {
		if sr.rec.Timestamp.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// cloneRecord copies the identity slice so callers can't alias stored data.
func cloneRecord(rec Record) Record {
	rec.Identities = slices.Clone(rec.Identities)
	return rec
}
