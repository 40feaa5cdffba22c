package chord

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/internal/config"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

const testBits = 8

// fakeNetwork routes RemoteClient calls to in-process nodes by address.
type fakeNetwork struct {
	mu    sync.RWMutex
	nodes map[string]*ChordNode
	down  map[string]bool
	calls map[string]int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		nodes: make(map[string]*ChordNode),
		down:  make(map[string]bool),
		calls: make(map[string]int),
	}
}

func (f *fakeNetwork) add(n *ChordNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n.Address().Address()] = n
}

func (f *fakeNetwork) setDown(address string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[address] = down
}

func (f *fakeNetwork) callCount(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[method]
}

func (f *fakeNetwork) resolve(method, address string) (*ChordNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++

	n, ok := f.nodes[address]
	if !ok || f.down[address] {
		return nil, fmt.Errorf("%w: %s", pkg.ErrNodeUnreachable, address)
	}
	return n, nil
}

// fakeRemote is the RemoteClient handed to every node on a fakeNetwork.
type fakeRemote struct {
	net *fakeNetwork
}

var _ RemoteClient = (*fakeRemote)(nil)

func (r *fakeRemote) FindSuccessor(ctx context.Context, address string, id *big.Int, hops int) (*NodeAddress, error) {
	n, err := r.net.resolve("FindSuccessor", address)
	if err != nil {
		return nil, err
	}
	return n.FindSuccessorWithHops(ctx, id, hops)
}

func (r *fakeRemote) GetSuccessor(ctx context.Context, address string) (*NodeAddress, error) {
	n, err := r.net.resolve("GetSuccessor", address)
	if err != nil {
		return nil, err
	}
	return n.GetSuccessor(), nil
}

func (r *fakeRemote) GetPredecessor(ctx context.Context, address string) (*NodeAddress, error) {
	n, err := r.net.resolve("GetPredecessor", address)
	if err != nil {
		return nil, err
	}
	return n.GetPredecessor(), nil
}

func (r *fakeRemote) GetAddress(ctx context.Context, address string) (*NodeAddress, error) {
	n, err := r.net.resolve("GetAddress", address)
	if err != nil {
		return nil, err
	}
	return n.Address(), nil
}

func (r *fakeRemote) Notify(ctx context.Context, address string, node *NodeAddress) error {
	n, err := r.net.resolve("Notify", address)
	if err != nil {
		return err
	}
	n.Notify(node.Copy())
	return nil
}

func (r *fakeRemote) Ping(ctx context.Context, address string) error {
	_, err := r.net.resolve("Ping", address)
	return err
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.M = testBits
	cfg.HTTPPort = 0
	// maintenance is driven by hand in most tests
	cfg.MaintenanceInterval = time.Hour
	return cfg
}

// newTestNode creates a node with a chosen identifier on the fake network.
func newTestNode(t *testing.T, net *fakeNetwork, id int64) *ChordNode {
	t.Helper()
	return newTestNodeWithConfig(t, net, id, testConfig())
}

func newTestNodeWithConfig(t *testing.T, net *fakeNetwork, id int64, cfg *config.Config) *ChordNode {
	t.Helper()

	space, err := hash.NewSpace(cfg.M)
	require.NoError(t, err)

	addr := NewNodeAddress(big.NewInt(id), "10.0.0.1", 7000+int(id))
	node := newChordNode(cfg, pkg.Nop(), space, addr)
	if net != nil {
		node.SetRemote(&fakeRemote{net: net})
		net.add(node)
	}
	t.Cleanup(func() { _ = node.Shutdown() })
	return node
}

// rounds runs maintenance rounds on every node, in order, ignoring failures.
func rounds(nodes []*ChordNode, count int) {
	ctx := context.Background()
	for r := 0; r < count; r++ {
		for _, n := range nodes {
			_ = n.maintain(ctx)
		}
	}
}

// buildRing creates nodes with the given ids, joins each one through the
// first, and stabilizes between joins.
func buildRing(t *testing.T, net *fakeNetwork, ids ...int64) []*ChordNode {
	t.Helper()
	ctx := context.Background()

	nodes := make([]*ChordNode, 0, len(ids))
	bootstrap := newTestNode(t, net, ids[0])
	require.NoError(t, bootstrap.Join(ctx, bootstrap.Address()))
	nodes = append(nodes, bootstrap)

	for _, id := range ids[1:] {
		n := newTestNode(t, net, id)
		require.NoError(t, n.Join(ctx, bootstrap.Address()))
		nodes = append(nodes, n)
		rounds(nodes, 3)
	}

	rounds(nodes, 2*testBits+2)
	return nodes
}

func addresses(nodes []*ChordNode) []*NodeAddress {
	out := make([]*NodeAddress, len(nodes))
	for i, n := range nodes {
		out[i] = n.Address()
	}
	return out
}

func memberAddresses(v *RingView) []string {
	var out []string
	for _, m := range v.Members() {
		out = append(out, m.Address())
	}
	return out
}

// recordingBroadcaster collects published events.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []*RingUpdateEvent
}

func (r *recordingBroadcaster) BroadcastRingUpdate(update any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, update.(*RingUpdateEvent))
	return nil
}

func (r *recordingBroadcaster) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
