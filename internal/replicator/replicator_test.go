package replicator

import (
	"testing"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/storage"
)

func newTestReplicator(store storage.Storage) *Replicator {
	return New(nil, nil, store, nil, &logger.NopLogger{})
}

// TestResolveDataTombstoneWinsTie covers spec.md's P4 tie rule in both
// directions: whichever side holds the tombstone at an equal version
// must win, regardless of whether the tombstone is the local record or
// the incoming one.
func TestResolveDataTombstoneWinsTie(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	store := storage.NewMemoryStorage(&logger.NopLogger{})
	r := newTestReplicator(store)

	id := sp.NewIdFromString("key-a")

	t.Run("local tombstone beats incoming live at equal version", func(t *testing.T) {
		store.Remove(id, "key-a", 5) // local: tombstone @5

		incoming := domain.LocalRecord{Key: id, RawKey: "key-a", Value: []byte("v"), Version: 5, Live: true}
		staleValues, staleTombstones := r.ResolveData([]domain.LocalRecord{incoming}, nil)

		got, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get after ResolveData: %v", err)
		}
		if got.Live {
			t.Fatalf("local record resurrected: %+v, want tombstone to survive", got)
		}
		if len(staleValues) != 0 {
			t.Errorf("staleValues = %v, want empty (incoming record, not a tombstone, should not appear there)", staleValues)
		}
		if v, ok := staleTombstones["key-a"]; !ok || v != 5 {
			t.Errorf("staleTombstones = %v, want {key-a: 5} reported back to the caller", staleTombstones)
		}
	})

	t.Run("incoming tombstone beats local live at equal version", func(t *testing.T) {
		id2 := sp.NewIdFromString("key-b")
		store.Put(domain.LocalRecord{Key: id2, RawKey: "key-b", Value: []byte("v"), Version: 5, Live: true})

		r.ResolveData(nil, map[string]int64{"key-b": 5})

		got, err := store.Get(id2)
		if err != nil {
			t.Fatalf("Get after ResolveData: %v", err)
		}
		if got.Live {
			t.Fatalf("local live record survived an equal-version incoming tombstone: %+v", got)
		}
	})
}

func TestResolveDataStrictlyNewerLocalWins(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	store := storage.NewMemoryStorage(&logger.NopLogger{})
	r := newTestReplicator(store)

	id := sp.NewIdFromString("key-c")
	store.Put(domain.LocalRecord{Key: id, RawKey: "key-c", Value: []byte("new"), Version: 10, Live: true})

	incoming := domain.LocalRecord{Key: id, RawKey: "key-c", Value: []byte("old"), Version: 3, Live: true}
	staleValues, _ := r.ResolveData([]domain.LocalRecord{incoming}, nil)

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get after ResolveData: %v", err)
	}
	if string(got.Value) != "new" || got.Version != 10 {
		t.Fatalf("local record overwritten by a stale incoming write: %+v", got)
	}
	if len(staleValues) != 1 || staleValues[0].Version != 10 {
		t.Errorf("staleValues = %+v, want the local (newer) record reported back", staleValues)
	}
}

func TestResolveDataStrictlyNewerIncomingApplies(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	store := storage.NewMemoryStorage(&logger.NopLogger{})
	r := newTestReplicator(store)

	id := sp.NewIdFromString("key-d")
	store.Put(domain.LocalRecord{Key: id, RawKey: "key-d", Value: []byte("old"), Version: 1, Live: true})

	incoming := domain.LocalRecord{Key: id, RawKey: "key-d", Value: []byte("new"), Version: 7, Live: true}
	r.ResolveData([]domain.LocalRecord{incoming}, nil)

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get after ResolveData: %v", err)
	}
	if string(got.Value) != "new" || got.Version != 7 {
		t.Fatalf("got %+v, want the strictly newer incoming record applied", got)
	}
}
