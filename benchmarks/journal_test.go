package benchmarks

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/mpointer/pkg/mpointer/audit"
)

func sweepRecord() audit.Record {
	ids := make([]uint64, 64)
	for i := range ids {
		ids[i] = uint64(i + 1)
	}
	return audit.Record{
		SweepID:    uuid.NewString(),
		Registry:   "bench",
		Timestamp:  time.Now(),
		Scanned:    128,
		Reclaimed:  len(ids),
		Identities: ids,
	}
}

// BenchmarkMemoryStore_Append measures in-memory journal appends.
func BenchmarkMemoryStore_Append(b *testing.B) {
	store := audit.NewMemoryStore()
	rec := sweepRecord()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec.SweepID = uuid.NewString()
		_ = store.Append(rec)
	}
}

// BenchmarkSQLiteStore_Append measures SQLite journal appends.
func BenchmarkSQLiteStore_Append(b *testing.B) {
	store, err := audit.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()

	rec := sweepRecord()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec.SweepID = uuid.NewString()
		_ = store.Append(rec)
	}
}

// BenchmarkSQLiteStore_List measures listing the newest 20 records.
func BenchmarkSQLiteStore_List(b *testing.B) {
	store, err := audit.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	for i := 0; i < 200; i++ {
		_ = store.Append(sweepRecord())
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.List(20)
	}
}
