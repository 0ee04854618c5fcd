package bootstrap

import (
	"KoordeDHT/internal/config"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"context"
	"testing"
)

func TestResolveBootstrapStaticMode(t *testing.T) {
	cfg := config.BootstrapConfig{Mode: "static", Peers: []string{"node-a:4000", "node-b:4000"}}

	got, err := ResolveBootstrap(cfg, &logger.NopLogger{})
	if err != nil {
		t.Fatalf("ResolveBootstrap returned error: %v", err)
	}
	if len(got) != 2 || got[0] != "node-a:4000" || got[1] != "node-b:4000" {
		t.Fatalf("got %v, want the configured peer list", got)
	}
}

func TestResolveBootstrapUnsupportedMode(t *testing.T) {
	cfg := config.BootstrapConfig{Mode: "bogus"}

	if _, err := ResolveBootstrap(cfg, &logger.NopLogger{}); err == nil {
		t.Fatal("expected an error for an unsupported bootstrap mode")
	}
}

func TestDNSBootstrapRegisterDeregisterAreNoOps(t *testing.T) {
	d := NewDNSBootstrap(config.BootstrapConfig{Mode: "dns", DNSName: "ring.example.test"}, &logger.NopLogger{})
	node := domain.NodeRef{Addr: "127.0.0.1:4000"}

	if err := d.Register(context.Background(), node); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := d.Deregister(context.Background(), node); err != nil {
		t.Fatalf("Deregister returned error: %v", err)
	}
}
