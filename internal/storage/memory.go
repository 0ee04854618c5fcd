package storage

import (
	"sort"
	"sync"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

// MemoryStorage is an in-memory, concurrency-safe Storage implementation.
// Adapted from the teacher's internal/storage/memory.go, keyed by the raw
// application key (as original_source/server/chord/storage.py does)
// rather than the hashed ID, and extended with the Version/Live tri-state
// LocalRecord carries.
type MemoryStorage struct {
	lgr  logger.Logger
	mu   sync.RWMutex
	data map[string]domain.LocalRecord // key = RawKey
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage(lgr logger.Logger) *MemoryStorage {
	s := &MemoryStorage{
		lgr:  lgr,
		data: make(map[string]domain.LocalRecord),
	}
	s.lgr.Debug("initialized storage")
	return s
}

func (s *MemoryStorage) Put(rec domain.LocalRecord) {
	rec.Live = true
	s.mu.Lock()
	_, existed := s.data[rec.RawKey]
	s.data[rec.RawKey] = rec
	s.mu.Unlock()
	if existed {
		s.lgr.Debug("Put: record updated", logger.FRecord("record", rec))
	} else {
		s.lgr.Debug("Put: record inserted", logger.FRecord("record", rec))
	}
}

func (s *MemoryStorage) Get(id domain.ID) (domain.LocalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.data {
		if rec.Key.Equal(id) {
			return rec, nil
		}
	}
	return domain.LocalRecord{}, ErrNotFound
}

// GetByKey looks up by the raw application key directly, without the
// full-map scan Get performs.
func (s *MemoryStorage) GetByKey(rawKey string) (domain.LocalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[rawKey]
	return rec, ok
}

func (s *MemoryStorage) Remove(id domain.ID, rawKey string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[rawKey]
	if !ok {
		rec = domain.LocalRecord{}
	}
	rec.Key = id
	rec.RawKey = rawKey
	rec.Live = false
	rec.Version = version
	s.data[rawKey] = rec
	s.lgr.Debug("Remove: tombstone recorded", logger.F("key", rawKey), logger.F("version", version))
	return nil
}

func (s *MemoryStorage) Between(from, to domain.ID) ([]domain.LocalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.LocalRecord
	for _, rec := range s.data {
		if rec.Key.Between(from, to) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (s *MemoryStorage) GetAll() []domain.LocalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LocalRecord, 0, len(s.data))
	for _, rec := range s.data {
		if rec.Live {
			out = append(out, rec)
		}
	}
	return out
}

func (s *MemoryStorage) GetRemoveAll() []domain.LocalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LocalRecord, 0, len(s.data))
	for _, rec := range s.data {
		if !rec.Live {
			out = append(out, rec)
		}
	}
	return out
}

func (s *MemoryStorage) SetAll(recs []domain.LocalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		rec.Live = true
		s.data[rec.RawKey] = rec
	}
	s.lgr.Debug("SetAll: records stored", logger.F("count", len(recs)))
}

func (s *MemoryStorage) RemoveAll(tombstones map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, version := range tombstones {
		rec, ok := s.data[key]
		if !ok {
			continue
		}
		rec.Live = false
		rec.Version = version
		s.data[key] = rec
	}
	s.lgr.Debug("RemoveAll: tombstones applied", logger.F("count", len(tombstones)))
}

func (s *MemoryStorage) DebugLog() {
	s.mu.RLock()
	snapshot := make([]domain.LocalRecord, 0, len(s.data))
	for _, rec := range s.data {
		snapshot = append(snapshot, rec)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].RawKey < snapshot[j].RawKey
	})
	entries := make([]map[string]any, 0, len(snapshot))
	for _, rec := range snapshot {
		entries = append(entries, map[string]any{
			"key":     rec.RawKey,
			"version": rec.Version,
			"live":    rec.Live,
		})
	}
	s.lgr.Debug("Storage snapshot", logger.F("count", len(snapshot)), logger.F("records", entries))
}
