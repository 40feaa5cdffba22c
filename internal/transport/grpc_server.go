package transport

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/pkg"
)

// Compile-time check to ensure GRPCServer serves chordring.ChordService
var _ chordServiceServer = (*GRPCServer)(nil)

// GRPCServer wraps a ChordNode and implements the gRPC ChordService.
type GRPCServer struct {
	node   *chord.ChordNode
	server *grpc.Server
	logger *pkg.Logger

	// Server address
	address  string
	listener net.Listener
	mu       sync.Mutex
}

// NewGRPCServer creates a new gRPC server for the given ChordNode.
func NewGRPCServer(node *chord.ChordNode, address string, logger *pkg.Logger) (*GRPCServer, error) {
	if node == nil {
		return nil, fmt.Errorf("node cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &GRPCServer{
		node:    node,
		address: address,
		logger:  logger.WithFields(pkg.Fields{"component": "grpc_server"}),
	}

	return s, nil
}

// Start starts the gRPC server.
func (s *GRPCServer) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// Create gRPC server with options
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(1 * 1024 * 1024), // 1MB, messages are a few hundred bytes
		grpc.MaxSendMsgSize(1 * 1024 * 1024), // 1MB
		grpc.UnaryInterceptor(ServerInterceptor(s.logger)),
	}

	server := grpc.NewServer(opts...)
	server.RegisterService(&chordServiceDesc, s)
	reflection.Register(server) // lists ChordService for grpcurl and friends

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	s.logger.Info().
		Str("address", listener.Addr().String()).
		Msg("Starting gRPC server")

	// Start serving in a goroutine
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error().Err(err).Msg("gRPC server error")
		}
	}()

	return nil
}

// Addr returns the address the server listens on, nil before Start.
func (s *GRPCServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the gRPC server.
func (s *GRPCServer) Stop() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	s.logger.Info().Msg("Stopping gRPC server")
	// GracefulStop also closes the listener
	server.GracefulStop()
	return nil
}

// FindSuccessor implements the FindSuccessor RPC.
func (s *GRPCServer) FindSuccessor(ctx context.Context, req *findSuccessorRequest) (*nodeResponse, error) {
	id := new(big.Int).SetBytes(req.ID)
	if !s.node.Space().IsValidID(id) {
		return nil, status.Errorf(codes.InvalidArgument, "id %s outside a %d-bit ring", id, s.node.Space().Bits())
	}
	if req.Hops < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "negative hop count %d", req.Hops)
	}

	successor, err := s.node.FindSuccessorWithHops(ctx, id, int(req.Hops))
	if err != nil {
		return nil, toStatus(fmt.Errorf("find successor failed: %w", err))
	}

	return &nodeResponse{Node: nodeAddressToWire(successor)}, nil
}

// GetSuccessor implements the GetSuccessor RPC.
func (s *GRPCServer) GetSuccessor(ctx context.Context, _ *emptyMessage) (*nodeResponse, error) {
	return &nodeResponse{Node: nodeAddressToWire(s.node.GetSuccessor())}, nil
}

// GetPredecessor implements the GetPredecessor RPC. The node is omitted when
// there is no predecessor.
func (s *GRPCServer) GetPredecessor(ctx context.Context, _ *emptyMessage) (*nodeResponse, error) {
	return &nodeResponse{Node: nodeAddressToWire(s.node.GetPredecessor())}, nil
}

// GetAddress implements the GetAddress RPC.
func (s *GRPCServer) GetAddress(ctx context.Context, _ *emptyMessage) (*nodeResponse, error) {
	return &nodeResponse{Node: nodeAddressToWire(s.node.Address())}, nil
}

// Notify implements the Notify RPC.
func (s *GRPCServer) Notify(ctx context.Context, req *notifyRequest) (*emptyMessage, error) {
	if req.Node == nil {
		return nil, status.Error(codes.InvalidArgument, "node cannot be nil")
	}

	node := wireToNodeAddress(req.Node)
	if err := node.Validate(s.node.Space()); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.node.Notify(node)
	return &emptyMessage{}, nil
}

// Ping implements the Ping RPC.
func (s *GRPCServer) Ping(ctx context.Context, req *pingRequest) (*pingResponse, error) {
	if !s.node.Ping() {
		return nil, status.Error(codes.Unavailable, "node not serving")
	}

	return &pingResponse{
		Message:   "pong",
		Timestamp: time.Now().Unix(),
	}, nil
}

// toStatus maps node errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pkg.ErrHopLimitExceeded):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, pkg.ErrInvalidAddress):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
