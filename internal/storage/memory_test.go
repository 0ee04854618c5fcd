package storage

import (
	"testing"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

func rec(sp domain.Space, rawKey string, version int64) domain.LocalRecord {
	return domain.LocalRecord{
		Key:     sp.NewIdFromString(rawKey),
		RawKey:  rawKey,
		Value:   []byte("v"),
		Version: version,
		Live:    true,
	}
}

func TestPutThenGet(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	s := NewMemoryStorage(&logger.NopLogger{})

	r := rec(sp, "key-a", 1)
	s.Put(r)

	got, err := s.Get(r.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RawKey != "key-a" || got.Version != 1 {
		t.Errorf("Get = %+v, want key-a/v1", got)
	}
}

func TestRemoveLeavesTombstone(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	s := NewMemoryStorage(&logger.NopLogger{})

	r := rec(sp, "key-b", 1)
	s.Put(r)
	if err := s.Remove(r.Key, r.RawKey, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if live := s.GetAll(); len(live) != 0 {
		t.Errorf("GetAll after Remove = %v, want empty", live)
	}
	tombstones := s.GetRemoveAll()
	if len(tombstones) != 1 || tombstones[0].Version != 2 {
		t.Errorf("GetRemoveAll = %+v, want one tombstone at version 2", tombstones)
	}
}

func TestSetAllAndRemoveAll(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	s := NewMemoryStorage(&logger.NopLogger{})

	recs := []domain.LocalRecord{rec(sp, "a", 1), rec(sp, "b", 1)}
	s.SetAll(recs)
	if len(s.GetAll()) != 2 {
		t.Fatalf("GetAll after SetAll = %d records, want 2", len(s.GetAll()))
	}

	s.RemoveAll(map[string]int64{"a": 5})
	live := s.GetAll()
	if len(live) != 1 || live[0].RawKey != "b" {
		t.Errorf("GetAll after RemoveAll = %+v, want only b", live)
	}
}

func TestBetween(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	s := NewMemoryStorage(&logger.NopLogger{})
	r := rec(sp, "key-c", 1)
	s.Put(r)

	zero := sp.Zero()
	got, err := s.Between(zero, zero) // (zero, zero] denotes the whole ring
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	found := false
	for _, g := range got {
		if g.RawKey == "key-c" {
			found = true
		}
	}
	if !found {
		t.Errorf("Between did not include key-c: %+v", got)
	}
}
