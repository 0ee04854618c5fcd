package main

import (
	"KoordeDHT/internal/bootstrap"
	"KoordeDHT/internal/client"
	"KoordeDHT/internal/config"
	"KoordeDHT/internal/discoverer"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	zapfactory "KoordeDHT/internal/logger/zap"
	"KoordeDHT/internal/node"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/server"
	"KoordeDHT/internal/storage"
	"KoordeDHT/internal/telemetry"
	"KoordeDHT/internal/telemetry/lookuptrace"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	// Validate configuration
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize logger
	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()   // flush logger buffers before exit
		lgr = zapfactory.NewZapAdapter(zapLog) // adapt zap.Logger to logger.Logger
	} else {
		lgr = &logger.NopLogger{} // no-op logger
	}
	// Log loaded configuration at DEBUG level
	cfg.LogConfig(lgr)

	// Initialize listener (to determine server address and port)
	lis, advertised, err := server.Listen(cfg.DHT.Mode, cfg.Node.Bind, cfg.Node.Host, cfg.Node.Port)
	if err != nil {
		lgr.Error("Fatal: failed to initialize listener", logger.F("err", err))
		os.Exit(1)
	}
	defer func() { _ = lis.Close() }() // close listener on shutdown
	addr := lis.Addr().String()
	lgr.Debug("create listener", logger.F("addr", addr))

	// Initialize the identifier space
	space, err := domain.NewSpace(cfg.DHT.IDBits, cfg.DHT.FaultTolerance.SuccessorListSize)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err))
		os.Exit(1)
	}
	lgr.Debug("identifier space initialized",
		logger.F("id_bits", space.Bits),
		logger.F("sizeByte", space.ByteLen),
		logger.F("successorListSize", space.SuccListSize))

	// Initialize the local node identity
	var id domain.ID
	if cfg.Node.Id == "" {
		id = space.NewIdFromString(addr) // derive ID from address
	} else {
		id, err = space.FromHexString(cfg.Node.Id) // use configured ID
		if err != nil {
			lgr.Error("invalid node ID in configuration", logger.F("err", err))
			os.Exit(1)
		}
	}
	self := domain.NodeRef{ID: id, Addr: advertised}
	lgr.Debug("generated node ID", logger.F("id", id.ToHexString(true)))
	lgr = lgr.Named("node").With(logger.FNode("self", self))
	lgr.Info("new node initializing")

	// Initialize telemetry (if enabled)
	shutdown := telemetry.InitTracer(cfg.Telemetry, "ring-node", id)
	defer func() { _ = shutdown(context.Background()) }()

	// Initialize the routing table
	rt := ring.New(
		self,
		space,
		ring.WithLogger(lgr.Named("ring")),
	)
	lgr.Debug("initialized routing table")

	// Initialize the client pool
	cp := client.New(
		space,
		client.WithLogger(lgr.Named("clientpool")),
	)
	lgr.Debug("initialized client pool")

	// Initialize storage
	store := storage.NewMemoryStorage(lgr.Named("storage"))
	lgr.Debug("initialized in-memory storage")

	// Initialize the node
	n := node.New(
		rt,
		cp,
		store,
		node.WithLogger(lgr),
	)
	lgr.Debug("initialized node")

	// Resolve the bootstrap/discovery strategy. The multicast
	// discoverer closes over n.Self/n.Leader, so it can only be built
	// once n exists.
	disc, register, err := newBootstrap(cfg.DHT.Bootstrap, n, lgr)
	if err != nil {
		lgr.Error("failed to initialize bootstrap strategy", logger.F("err", err))
		os.Exit(1)
	}
	n.SetBootstrap(disc)

	// Initialize the gRPC server, registering both the peer and
	// client-facing services against it.
	var grpcOpts []grpc.ServerOption
	if cfg.Telemetry.Tracing.Enabled {
		grpcOpts = append(grpcOpts,
			grpc.ChainUnaryInterceptor(
				lookuptrace.ServerInterceptor(),
			),
		)
		lgr.Debug("gRPC tracing enabled (lookup-only)")
	}

	s, err := server.New(
		lis,
		n,
		n.Facade(),
		grpcOpts,
		server.WithLogger(lgr.Named("server")),
	)
	if err != nil {
		lgr.Error("failed to initialize gRPC server", logger.F("err", err))
		os.Exit(1)
	}
	lgr.Debug("initialized gRPC server")

	// Run server in background
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Start() }()
	lgr.Debug("server started")

	// Join an existing ring or start a brand-new one
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	peers, err := disc.Discover(ctx)
	cancel()
	if err != nil {
		lgr.Error("failed to resolve bootstrap peers", logger.F("err", err))
		s.Stop()
		n.Stop()
		os.Exit(1)
	}
	lgr.Info("resolved bootstrap peers", logger.F("peers", peers))

	joined := false
	for _, addr := range peers {
		if addr == self.Addr {
			continue
		}
		joinCtx, joinCancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := n.Join(joinCtx, addr)
		joinCancel()
		if err == nil {
			joined = true
			lgr.Debug("joined ring", logger.F("introducer", addr))
			break
		}
		lgr.Warn("join attempt failed, trying next peer", logger.F("introducer", addr), logger.F("err", err))
	}
	if !joined {
		n.CreateNewDHT()
		lgr.Debug("new ring created")
	}

	// Register node with the bootstrap directory, if it maintains one
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	err = register.Register(ctx, self)
	cancel()
	if err != nil {
		lgr.Warn("failed to register node", logger.F("err", err))
	} else {
		lgr.Info("node registered successfully")
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := register.Deregister(ctx, self); err != nil {
				lgr.Warn("failed to deregister node", logger.F("err", err))
			}
			cancel()
		}()
	}

	// Setup signal handler for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Start the background loops (stabilize, fix_fingers, liveness
	// checks, leader election, storage GC, ring rediscovery)
	n.Start(ctx, node.Intervals{
		Stabilize:      cfg.DHT.FaultTolerance.StabilizationInterval,
		FixFingers:     cfg.DHT.Finger.FixInterval,
		CheckLiveness:  cfg.DHT.FaultTolerance.CheckInterval,
		CheckLeader:    cfg.DHT.Election.CheckInterval,
		FixStorage:     cfg.DHT.Storage.FixInterval,
		ClockTick:      cfg.DHT.Election.ClockTick,
		DiscoverRejoin: cfg.DHT.Bootstrap.Multicast.RejoinInterval,
	})
	lgr.Debug("background loops started")

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping server gracefully...")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			lgr.Info("server stopped gracefully")
		case <-shutdownCtx.Done():
			lgr.Warn("graceful stop timed out, forcing shutdown")
			s.Stop()
		}

		n.Stop()

	case err := <-serveErr:
		lgr.Error("gRPC server terminated unexpectedly", logger.F("err", err))
		stop()
		n.Stop()
		os.Exit(1)
	}
}

// newBootstrap builds the discovery/registration strategy named by
// cfg.Mode. "init" opts out of discovery entirely (the node always
// creates its own ring); every other mode discovers peers to join and
// may additionally maintain a directory entry for itself.
func newBootstrap(cfg config.BootstrapConfig, n *node.Node, lgr logger.Logger) (bootstrap.Bootstrap, bootstrap.Bootstrap, error) {
	switch cfg.Mode {
	case "static":
		b := bootstrap.NewStaticBootstrap(cfg.Peers)
		return b, b, nil
	case "dns":
		b := bootstrap.NewDNSBootstrap(cfg, lgr.Named("bootstrap"))
		if cfg.Register.Enabled {
			reg, err := bootstrap.NewRoute53Bootstrap(cfg.Register)
			if err != nil {
				return nil, nil, err
			}
			return b, reg, nil
		}
		return b, b, nil
	case "multicast":
		d := discoverer.New(cfg.Multicast, n.Self, n.Leader, lgr.Named("discoverer"))
		return d, d, nil
	case "init":
		b := bootstrap.NewStaticBootstrap(nil)
		return b, b, nil
	default:
		return nil, nil, fmt.Errorf("unsupported bootstrap mode: %s", cfg.Mode)
	}
}
