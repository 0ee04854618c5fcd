package discoverer

import (
	"context"
	"testing"
	"time"

	"KoordeDHT/internal/config"
	"KoordeDHT/internal/domain"
)

func testCfg(port int) config.MulticastConfig {
	return config.MulticastConfig{
		Group:            "239.1.2.3",
		Port:             port,
		AnnounceInterval: 500 * time.Millisecond,
		RejoinInterval:   time.Second,
	}
}

func TestDiscoverFindsAnnouncingLeader(t *testing.T) {
	leader := domain.NodeRef{ID: domain.ID{9, 9}, Addr: "10.0.0.1:4000"}
	follower := domain.NodeRef{ID: domain.ID{1, 1}, Addr: "10.0.0.2:4000"}

	cfg := testCfg(31234)
	leaderDisc := New(cfg, func() domain.NodeRef { return leader }, func() domain.NodeRef { return leader }, nil)
	followerDisc := New(cfg, func() domain.NodeRef { return follower }, func() domain.NodeRef { return leader }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go leaderDisc.ListenAndRespond(ctx)
	time.Sleep(100 * time.Millisecond)

	found, err := followerDisc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 1 || found[0] != leader.Addr {
		t.Fatalf("Discover() = %v, want [%s]", found, leader.Addr)
	}
}

func TestDiscoverIgnoresSelfAnnouncement(t *testing.T) {
	self := domain.NodeRef{ID: domain.ID{5}, Addr: "10.0.0.3:4000"}
	cfg := testCfg(31235)
	disc := New(cfg, func() domain.NodeRef { return self }, func() domain.NodeRef { return self }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go disc.ListenAndRespond(ctx)
	time.Sleep(100 * time.Millisecond)

	found, err := disc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("Discover() = %v, want no peers (self is the only leader)", found)
	}
}

func TestRegisterDeregisterAreNoOps(t *testing.T) {
	disc := New(testCfg(31236), func() domain.NodeRef { return domain.NodeRef{} }, func() domain.NodeRef { return domain.NodeRef{} }, nil)
	if err := disc.Register(context.Background(), domain.NodeRef{}); err != nil {
		t.Errorf("Register() = %v, want nil", err)
	}
	if err := disc.Deregister(context.Background(), domain.NodeRef{}); err != nil {
		t.Errorf("Deregister() = %v, want nil", err)
	}
}
