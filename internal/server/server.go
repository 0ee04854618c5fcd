package server

import (
	"fmt"
	"net"

	"google.golang.org/grpc"

	"KoordeDHT/internal/clientrpc"
	"KoordeDHT/internal/kv"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/peerrpc"
)

// Server wraps a gRPC server hosting both the peer-to-peer ring
// protocol and the client-facing KV service.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	lgr        logger.Logger
}

// New creates a new gRPC server bound to lis and registers both the
// peerrpc and clientrpc services against it. peer implements
// peerrpc.Server (node.Node does); facade backs the client-facing
// Put/Get/Delete surface.
// You can pass both grpc.ServerOptions and custom server.Options.
func New(lis net.Listener, peer peerrpc.Server, facade *kv.Facade, grpcOpts []grpc.ServerOption, srvOpts ...Option) (*Server, error) {
	s := &Server{
		grpcServer: grpc.NewServer(grpcOpts...),
		listener:   lis,
		lgr:        &logger.NopLogger{}, // default: no logging
	}
	for _, opt := range srvOpts {
		opt(s)
	}
	peerrpc.RegisterServer(s.grpcServer, peer)
	clientrpc.RegisterServer(s.grpcServer, NewKVService(facade))
	return s, nil
}

// Start runs the gRPC server and blocks until it stops.
// It returns any error from grpc.Server.Serve.
func (s *Server) Start() error {
	if err := s.grpcServer.Serve(s.listener); err != nil {
		return fmt.Errorf("gRPC server stopped: %w", err)
	}
	return nil
}

// Stop immediately stops the server and closes all active connections.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// GracefulStop gracefully shuts down the server,
// waiting for in-flight RPCs to complete.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}
