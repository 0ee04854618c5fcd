package bootstrap

import (
	"KoordeDHT/internal/domain"
	"context"
	"testing"
)

func TestStaticBootstrapDiscoverReturnsConfiguredPeers(t *testing.T) {
	peers := []string{"10.0.0.1:4000", "10.0.0.2:4000"}
	b := NewStaticBootstrap(peers)

	got, err := b.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(got) != len(peers) {
		t.Fatalf("got %d peers, want %d", len(got), len(peers))
	}
	for i, p := range peers {
		if got[i] != p {
			t.Errorf("peer %d = %q, want %q", i, got[i], p)
		}
	}
}

func TestStaticBootstrapRegisterDeregisterAreNoOps(t *testing.T) {
	b := NewStaticBootstrap(nil)
	node := domain.NodeRef{Addr: "127.0.0.1:4000"}

	if err := b.Register(context.Background(), node); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := b.Deregister(context.Background(), node); err != nil {
		t.Fatalf("Deregister returned error: %v", err)
	}
}

func TestStaticBootstrapEmptyPeerList(t *testing.T) {
	b := NewStaticBootstrap(nil)
	got, err := b.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d peers, want 0", len(got))
	}
}
