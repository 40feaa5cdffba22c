package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zde37/chordring/internal/api"
	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/internal/config"
	"github.com/zde37/chordring/internal/transport"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

func main() {
	defaults := config.DefaultConfig()

	// Parse command-line flags
	host := flag.String("host", defaults.Host, "Host address to bind to and advertise")
	port := flag.Int("port", defaults.Port, "Port for Chord gRPC server")
	httpPort := flag.Int("http-port", defaults.HTTPPort, "Port for HTTP status API (0 disables it)")
	join := flag.String("join", "", "Address (host:port) of a ring member to join; empty starts a new ring")
	bits := flag.Int("m", defaults.M, "Identifier space size in bits")
	interval := flag.Duration("interval", defaults.MaintenanceInterval, "Pause between maintenance rounds")
	rpcTimeout := flag.Duration("rpc-timeout", defaults.RPCTimeout, "Timeout for node-to-node RPCs")
	maxHops := flag.Int("max-hops", defaults.MaxLookupHops, "Forwarding bound for lookups (0 means 2*m)")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level (trace, debug, info, warn, error)")
	logFormat := flag.String("log-format", defaults.LogFormat, "Log format (json, console)")
	logFile := flag.String("log-file", "", "Rotated log file, empty logs to stdout only")
	flag.Parse()

	// Create configuration
	cfg := &config.Config{
		Host:                *host,
		Port:                *port,
		HTTPPort:            *httpPort,
		Join:                *join,
		M:                   *bits,
		MaintenanceInterval: *interval,
		RPCTimeout:          *rpcTimeout,
		MaxLookupHops:       *maxHops,
		LogLevel:            *logLevel,
		LogFormat:           *logFormat,
		LogFile:             *logFile,
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := pkg.DefaultConfig()
	loggerConfig.Level = cfg.LogLevel
	loggerConfig.Format = cfg.LogFormat
	if cfg.LogFile != "" {
		loggerConfig.File.Enable = true
		loggerConfig.File.Path = cfg.LogFile
	}

	logger, err := pkg.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	pkg.SetGlobal(logger)

	logger.Info().
		Str("address", cfg.Address()).
		Int("http_port", cfg.HTTPPort).
		Int("m", cfg.M).
		Dur("interval", cfg.MaintenanceInterval).
		Msg("Starting chordring node")

	// Create ChordNode
	node, err := chord.NewChordNode(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create Chord node")
		exit(logger, 1)
	}

	// Create and set gRPC client for inter-node communication
	grpcClient := transport.NewGRPCClient(logger, hash.MustSpace(cfg.M), cfg.RPCTimeout)
	node.SetRemote(grpcClient)

	// Create gRPC server
	grpcServer, err := transport.NewGRPCServer(node, cfg.Address(), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create gRPC server")
		cleanup(node, nil, grpcClient, nil, logger)
		exit(logger, 1)
	}

	// Start gRPC server
	if err := grpcServer.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start gRPC server")
		cleanup(node, nil, grpcClient, nil, logger)
		exit(logger, 1)
	}

	// Start HTTP API server before joining so the join event reaches the stream
	var httpServer *api.Server
	if cfg.HTTPPort != 0 {
		httpServer, err = api.NewServer(node, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create HTTP API server")
			cleanup(node, grpcServer, grpcClient, nil, logger)
			exit(logger, 1)
		}
		if err := httpServer.Start(cfg.HTTPPort); err != nil {
			logger.Error().Err(err).Msg("Failed to start HTTP API server")
			cleanup(node, grpcServer, grpcClient, nil, logger)
			exit(logger, 1)
		}
	}

	// Create or join Chord ring
	if err := joinRing(context.Background(), cfg, node, grpcClient, logger); err != nil {
		logger.Error().Err(err).Msg("Failed to join Chord ring")
		cleanup(node, grpcServer, grpcClient, httpServer, logger)
		exit(logger, 1)
	}

	logger.Info().
		Str("node_id", node.ID().Text(16)).
		Msg("chordring node is ready")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info().
		Str("signal", sig.String()).
		Msg("Received shutdown signal")

	cleanup(node, grpcServer, grpcClient, httpServer, logger)

	logger.Info().Msg("chordring node shutdown complete")
	exit(logger, 0)
}

// joinRing creates a new ring, or asks the configured member for its address
// and joins through it.
func joinRing(ctx context.Context, cfg *config.Config, node *chord.ChordNode, client *transport.GRPCClient, logger *pkg.Logger) error {
	if cfg.Join == "" {
		logger.Info().Msg("Creating new Chord ring")
		return node.Join(ctx, node.Address())
	}

	logger.Info().
		Str("join", cfg.Join).
		Msg("Joining existing Chord ring")

	known, err := client.GetAddress(ctx, cfg.Join)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", cfg.Join, err)
	}

	logger.Debug().
		Str("known_id", known.ID.Text(16)).
		Str("known_addr", known.Address()).
		Msg("Retrieved ring member information")

	return node.Join(ctx, known)
}

// cleanup performs graceful shutdown of all components
func cleanup(node *chord.ChordNode, grpcServer *transport.GRPCServer, grpcClient *transport.GRPCClient, httpServer *api.Server, logger *pkg.Logger) {
	logger.Info().Msg("Starting graceful shutdown")

	if httpServer != nil {
		if err := httpServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping HTTP server")
		}
	}

	if grpcServer != nil {
		if err := grpcServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping gRPC server")
		}
	}

	if err := node.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error shutting down Chord node")
	}

	if err := grpcClient.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing gRPC client")
	}
}

// exit flushes the logger before leaving the process.
func exit(logger *pkg.Logger, code int) {
	_ = logger.Close()
	os.Exit(code)
}
