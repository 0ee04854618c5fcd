package storage

import (
	"errors"

	"KoordeDHT/internal/domain"
)

var (
	// ErrNotFound is returned when a key has no record at all (not even a
	// tombstone).
	ErrNotFound = errors.New("key not found")
)

// Storage is the local key -> LocalRecord map an owner or backup keeps,
// per spec.md §3/§4.5. A tombstone is a record with Live == false.
type Storage interface {
	// Put inserts or overwrites the record for key (live write).
	Put(rec domain.LocalRecord)

	// Get returns the record for key (live or tombstone). ErrNotFound if
	// the key has never been written at all.
	Get(id domain.ID) (domain.LocalRecord, error)

	// Remove marks the key as a tombstone at the given version. It does
	// not remove the map entry — the tombstone is retained for conflict
	// resolution.
	Remove(id domain.ID, rawKey string, version int64) error

	// Between returns all records (live or tombstone) whose key falls in
	// the modular interval (from, to].
	Between(from, to domain.ID) ([]domain.LocalRecord, error)

	// GetAll returns a snapshot of all live records.
	GetAll() []domain.LocalRecord

	// GetRemoveAll returns a snapshot of all tombstones.
	GetRemoveAll() []domain.LocalRecord

	// SetAll bulk-inserts records as live writes (used by set_partition).
	SetAll(recs []domain.LocalRecord)

	// RemoveAll bulk-marks tombstones at the given versions.
	RemoveAll(tombstones map[string]int64)

	// DebugLog emits a structured DEBUG-level snapshot of the store.
	DebugLog()
}
