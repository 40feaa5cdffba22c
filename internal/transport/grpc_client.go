package transport

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// Compile-time check to ensure GRPCClient implements chord.RemoteClient
var _ chord.RemoteClient = (*GRPCClient)(nil)

// GRPCClient manages connections to remote Chord nodes.
type GRPCClient struct {
	logger *pkg.Logger
	space  *hash.Space // addresses returned by peers are validated against it

	// Connection pool
	connections map[string]*grpc.ClientConn
	connMu      sync.RWMutex

	// Default timeout for RPC calls
	timeout time.Duration
}

// NewGRPCClient creates a new gRPC client for peers in the given identifier space.
func NewGRPCClient(logger *pkg.Logger, space *hash.Space, timeout time.Duration) *GRPCClient {
	if logger == nil {
		logger = pkg.Get()
	}

	return &GRPCClient{
		logger:      logger.WithFields(pkg.Fields{"component": "grpc_client"}),
		space:       space,
		connections: make(map[string]*grpc.ClientConn),
		timeout:     timeout,
	}
}

// getConnection returns a connection to the given address, creating one if needed.
func (c *GRPCClient) getConnection(address string) (*grpc.ClientConn, error) {
	c.connMu.RLock()
	conn, exists := c.connections[address]
	c.connMu.RUnlock()

	if exists && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	// Need to create new connection
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// Double-check after acquiring write lock
	conn, exists = c.connections[address]
	if exists && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	// Connections are established lazily; the per-call deadline bounds the dial
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithUnaryInterceptor(ClientInterceptor()),
	}

	newConn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %w", pkg.ErrNodeUnreachable, address, err)
	}

	c.connections[address] = newConn
	c.logger.Debug().Str("address", address).Msg("Created new gRPC connection")

	return newConn, nil
}

// stub returns a service client for address and a context bounded by the RPC timeout.
func (c *GRPCClient) stub(ctx context.Context, address string) (*chordServiceClient, context.Context, context.CancelFunc, error) {
	conn, err := c.getConnection(address)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return newChordServiceClient(conn), ctx, cancel, nil
}

// FindSuccessor calls the FindSuccessor RPC on a remote node.
func (c *GRPCClient) FindSuccessor(ctx context.Context, address string, id *big.Int, hops int) (*chord.NodeAddress, error) {
	client, ctx, cancel, err := c.stub(ctx, address)
	if err != nil {
		return nil, err
	}
	defer cancel()

	req := &findSuccessorRequest{
		ID:   id.Bytes(),
		Hops: int32(hops),
	}

	resp, err := client.FindSuccessor(ctx, req)
	if err != nil {
		return nil, rpcError("FindSuccessor", address, err)
	}

	return c.requireNode("FindSuccessor", address, resp.Node)
}

// GetSuccessor calls the GetSuccessor RPC on a remote node.
func (c *GRPCClient) GetSuccessor(ctx context.Context, address string) (*chord.NodeAddress, error) {
	client, ctx, cancel, err := c.stub(ctx, address)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := client.GetSuccessor(ctx, &emptyMessage{})
	if err != nil {
		return nil, rpcError("GetSuccessor", address, err)
	}

	return c.requireNode("GetSuccessor", address, resp.Node)
}

// GetPredecessor calls the GetPredecessor RPC on a remote node. It returns
// nil without error when the remote node has no predecessor.
func (c *GRPCClient) GetPredecessor(ctx context.Context, address string) (*chord.NodeAddress, error) {
	client, ctx, cancel, err := c.stub(ctx, address)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := client.GetPredecessor(ctx, &emptyMessage{})
	if err != nil {
		return nil, rpcError("GetPredecessor", address, err)
	}
	if resp.Node == nil {
		return nil, nil
	}

	return c.requireNode("GetPredecessor", address, resp.Node)
}

// GetAddress calls the GetAddress RPC on a remote node.
func (c *GRPCClient) GetAddress(ctx context.Context, address string) (*chord.NodeAddress, error) {
	client, ctx, cancel, err := c.stub(ctx, address)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := client.GetAddress(ctx, &emptyMessage{})
	if err != nil {
		return nil, rpcError("GetAddress", address, err)
	}

	return c.requireNode("GetAddress", address, resp.Node)
}

// Notify calls the Notify RPC on a remote node.
func (c *GRPCClient) Notify(ctx context.Context, address string, node *chord.NodeAddress) error {
	client, ctx, cancel, err := c.stub(ctx, address)
	if err != nil {
		return err
	}
	defer cancel()

	req := &notifyRequest{
		Node: nodeAddressToWire(node),
	}

	if _, err := client.Notify(ctx, req); err != nil {
		return rpcError("Notify", address, err)
	}

	return nil
}

// Ping calls the Ping RPC on a remote node.
func (c *GRPCClient) Ping(ctx context.Context, address string) error {
	client, ctx, cancel, err := c.stub(ctx, address)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := client.Ping(ctx, &pingRequest{Message: "ping"})
	if err != nil {
		return rpcError("Ping", address, err)
	}
	if resp.Message != "pong" {
		return fmt.Errorf("Ping RPC to %s: unexpected reply %q", address, resp.Message)
	}

	return nil
}

// requireNode converts and validates a node returned by a peer.
func (c *GRPCClient) requireNode(method, address string, m *nodeMessage) (*chord.NodeAddress, error) {
	if m == nil {
		return nil, fmt.Errorf("%s RPC to %s: response carries no node", method, address)
	}
	node := wireToNodeAddress(m)
	if c.space != nil {
		if err := node.Validate(c.space); err != nil {
			return nil, fmt.Errorf("%s RPC to %s: %w", method, address, err)
		}
	}
	return node, nil
}

// rpcError wraps a failed call. Transport failures are marked with
// pkg.ErrNodeUnreachable and a remote hop limit failure is restored as
// pkg.ErrHopLimitExceeded.
func rpcError(method, address string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s RPC to %s failed: %w: %w", method, address, pkg.ErrNodeUnreachable, err)
	case codes.Aborted:
		return fmt.Errorf("%s RPC to %s failed: %w: %s", method, address, pkg.ErrHopLimitExceeded, status.Convert(err).Message())
	default:
		return fmt.Errorf("%s RPC to %s failed: %w", method, address, err)
	}
}

// Close closes all connections.
func (c *GRPCClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.logger.Info().
		Int("connections", len(c.connections)).
		Msg("Closing all gRPC connections")

	for address, conn := range c.connections {
		if err := conn.Close(); err != nil {
			c.logger.Error().
				Err(err).
				Str("address", address).
				Msg("Failed to close connection")
		}
	}

	c.connections = make(map[string]*grpc.ClientConn)
	return nil
}
