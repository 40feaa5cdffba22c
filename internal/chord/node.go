package chord

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/zde37/chordring/internal/config"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// ChordNode represents a node in the Chord ring.
//
// Two activities share its state: the RPC server calling the exported
// methods, and the maintenance loop started by Join. All mutable fields are
// guarded by mu, which is never held across a remote call.
type ChordNode struct {
	// Node identity
	id      *big.Int
	address *NodeAddress
	space   *hash.Space

	config *config.Config
	logger *pkg.Logger

	// Remote client for RPC calls to other nodes
	remote   RemoteClient
	remoteMu sync.RWMutex

	// Receives ring update events, may be nil
	broadcaster   RingUpdateBroadcaster
	broadcasterMu sync.RWMutex

	mu          sync.RWMutex
	fingers     *FingerTable // fingers.node[0] is the successor
	predecessor *NodeAddress
	nextFinger  int

	// fingerprint of the last published snapshot, maintenance loop only
	lastFingerprint uint64

	joined atomic.Bool

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdown   bool
	shutdownMu sync.Mutex
}

// NewChordNode creates a new Chord node listening on cfg.Host:cfg.Port.
// The node's identifier is derived from that endpoint.
func NewChordNode(cfg *config.Config, logger *pkg.Logger) (*ChordNode, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	space, err := hash.NewSpace(cfg.M)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	address := NewNodeAddress(space.HashAddress(cfg.Host, cfg.Port), cfg.Host, cfg.Port)
	return newChordNode(cfg, logger, space, address), nil
}

// newChordNode builds a node around an already computed address.
func newChordNode(cfg *config.Config, logger *pkg.Logger, space *hash.Space, address *NodeAddress) *ChordNode {
	ctx, cancel := context.WithCancel(context.Background())

	fingers := NewFingerTable(space, address.ID)
	fingers.Set(0, address)

	node := &ChordNode{
		id:      new(big.Int).Set(address.ID),
		address: address.Copy(),
		space:   space,
		config:  cfg,
		logger:  logger.WithFields(pkg.Fields{"node_id": shortID(address)}),
		fingers: fingers,
		ctx:     ctx,
		cancel:  cancel,
	}

	node.logger.Info().
		Str("address", address.Address()).
		Str("id", address.ID.String()).
		Int("m", space.Bits()).
		Msg("ChordNode created")

	return node
}

// ID returns the node's identifier.
func (n *ChordNode) ID() *big.Int {
	return new(big.Int).Set(n.id)
}

// Address returns the node's own address.
func (n *ChordNode) Address() *NodeAddress {
	return n.address.Copy()
}

// Space returns the identifier space the node lives in.
func (n *ChordNode) Space() *hash.Space {
	return n.space
}

// SetRemote sets the remote client for making RPC calls to other nodes.
func (n *ChordNode) SetRemote(remote RemoteClient) {
	n.remoteMu.Lock()
	defer n.remoteMu.Unlock()
	n.remote = remote
}

func (n *ChordNode) getRemote() RemoteClient {
	n.remoteMu.RLock()
	defer n.remoteMu.RUnlock()
	return n.remote
}

// successor returns a copy of the immediate successor.
func (n *ChordNode) successor() *NodeAddress {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fingers.Node(0)
}

// setSuccessor replaces the immediate successor, which is finger entry 0.
func (n *ChordNode) setSuccessor(node *NodeAddress) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fingers.Set(0, node)
}

// getPredecessor returns a copy of the predecessor, nil if absent.
func (n *ChordNode) getPredecessor() *NodeAddress {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.predecessor.Copy()
}

// GetSuccessor returns the node's current successor.
func (n *ChordNode) GetSuccessor() *NodeAddress {
	return n.successor()
}

// GetPredecessor returns the node's current predecessor, nil if absent.
func (n *ChordNode) GetPredecessor() *NodeAddress {
	return n.getPredecessor()
}

// IsJoined reports whether Join has been called.
func (n *ChordNode) IsJoined() bool {
	return n.joined.Load()
}

// Join makes this node a ring member and starts the maintenance loop.
//
// If known is this node's own address a new single-node ring is created.
// Otherwise known is asked for the successor of this node's id. The finger
// table beyond the successor fills in over later fix_fingers rounds.
// Join does not retry: a failed lookup is returned to the caller.
func (n *ChordNode) Join(ctx context.Context, known *NodeAddress) error {
	if known == nil {
		return fmt.Errorf("known address cannot be nil")
	}
	if !n.joined.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyJoined
	}

	n.startMaintenance()

	if known.Equals(n.address) {
		n.setSuccessor(n.address)
		n.logger.Info().Msg("Created new Chord ring")
		n.publish(EventNodeJoin, "created new ring")
		return nil
	}

	ctx = withTrace(ctx)
	n.logger.WithContext(ctx).Info().
		Str("known", known.Address()).
		Msg("Joining Chord ring")

	remote := n.getRemote()
	if remote == nil {
		return fmt.Errorf("cannot join via %s: %w", known.Address(), pkg.ErrNoRemote)
	}

	successor, err := remote.FindSuccessor(ctx, known.Address(), n.id, 0)
	if err != nil {
		return fmt.Errorf("failed to find successor via %s: %w", known.Address(), err)
	}
	if successor == nil {
		return fmt.Errorf("node %s returned no successor", known.Address())
	}

	n.setSuccessor(successor)

	n.logger.WithContext(ctx).Info().
		Str("successor_id", shortID(successor)).
		Str("successor_addr", successor.Address()).
		Msg("Joined Chord ring")
	n.publish(EventNodeJoin, "joined via "+known.Address())

	return nil
}

// FindSuccessor returns the node responsible for id: the first node whose
// identifier is equal to or follows id on the ring.
func (n *ChordNode) FindSuccessor(ctx context.Context, id *big.Int) (*NodeAddress, error) {
	return n.FindSuccessorWithHops(withTrace(ctx), id, 0)
}

// FindSuccessorWithHops continues a lookup that has already been forwarded
// hops times. Lookups forwarded more than the configured limit fail with
// pkg.ErrHopLimitExceeded instead of circling an inconsistent ring.
func (n *ChordNode) FindSuccessorWithHops(ctx context.Context, id *big.Int, hops int) (*NodeAddress, error) {
	if id == nil {
		return nil, fmt.Errorf("id cannot be nil")
	}
	if !n.space.IsValidID(id) {
		return nil, fmt.Errorf("id %s outside a %d-bit ring", id, n.space.Bits())
	}
	if limit := n.config.LookupHopLimit(); hops > limit {
		return nil, fmt.Errorf("%w: %d hops (limit %d) looking up %s", pkg.ErrHopLimitExceeded, hops, limit, id)
	}

	succ := n.successor()

	// Our successor is authoritative for (n, successor]
	if hash.InRange(id, n.id, succ.ID) {
		return succ, nil
	}

	next := n.closestPrecedingNode(id)
	if next.Equals(n.address) {
		// No finger precedes id. Forwarding to ourselves would repeat this
		// same check, so the direct successor is the answer.
		return succ, nil
	}

	n.logger.WithContext(ctx).Debug().
		Str("target", truncateHex(id.Text(16), 8)).
		Str("next_hop", next.Address()).
		Int("hops", hops+1).
		Msg("Forwarding FindSuccessor")

	found, err := n.peerFindSuccessor(ctx, next, id, hops+1)
	if err != nil {
		return nil, fmt.Errorf("find successor of %s via %s: %w", truncateHex(id.Text(16), 8), next.Address(), err)
	}
	return found, nil
}

// closestPrecedingNode scans the finger table from the farthest entry down
// and returns the first known node strictly inside (n, id). It returns the
// node itself when no finger qualifies.
func (n *ChordNode) closestPrecedingNode(id *big.Int) *NodeAddress {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for i := n.fingers.Len() - 1; i >= 0; i-- {
		finger := n.fingers.node[i]
		if finger == nil {
			continue
		}
		if hash.Between(finger.ID, n.id, id) {
			return finger.Copy()
		}
	}

	return n.address.Copy()
}

// Notify handles a node claiming it may be our predecessor. The claim is
// accepted when we have no predecessor or the candidate sits strictly
// between the current predecessor and us.
func (n *ChordNode) Notify(candidate *NodeAddress) {
	if candidate == nil || candidate.ID == nil {
		return
	}

	n.mu.Lock()
	accepted := n.predecessor == nil || hash.Between(candidate.ID, n.predecessor.ID, n.id)
	if accepted {
		n.predecessor = candidate.Copy()
	}
	n.mu.Unlock()

	if accepted {
		n.logger.Debug().
			Str("predecessor_id", shortID(candidate)).
			Str("predecessor_addr", candidate.Address()).
			Msg("Predecessor updated via notify")
	}
}

// Ping answers liveness probes.
func (n *ChordNode) Ping() bool {
	return true
}

// stabilize asks the successor for its predecessor, adopts it as successor
// if it sits between us and the successor, then notifies the successor.
func (n *ChordNode) stabilize(ctx context.Context) error {
	succ := n.successor()

	x, err := n.peerGetPredecessor(ctx, succ)
	if err != nil {
		return fmt.Errorf("stabilize: get predecessor of %s: %w", succ.Address(), err)
	}

	if x != nil && n.getPredecessor() != nil && hash.Between(x.ID, n.id, succ.ID) {
		n.setSuccessor(x)
		n.logger.WithContext(ctx).Debug().
			Str("old_successor", shortID(succ)).
			Str("new_successor", shortID(x)).
			Msg("Successor updated")
		succ = x
	}

	if err := n.peerNotify(ctx, succ, n.address); err != nil {
		return fmt.Errorf("stabilize: notify %s: %w", succ.Address(), err)
	}
	return nil
}

// fixFingers advances the round-robin cursor and refreshes that one entry.
func (n *ChordNode) fixFingers(ctx context.Context) error {
	n.mu.Lock()
	n.nextFinger = (n.nextFinger + 1) % n.fingers.Len()
	next := n.nextFinger
	start := n.fingers.Start(next)
	n.mu.Unlock()

	finger, err := n.FindSuccessorWithHops(ctx, start, 0)
	if err != nil {
		return fmt.Errorf("fix finger %d: %w", next, err)
	}

	n.mu.Lock()
	n.fingers.Set(next, finger)
	n.mu.Unlock()
	return nil
}

// checkPredecessor pings the predecessor and forgets it if the ping fails.
func (n *ChordNode) checkPredecessor(ctx context.Context) error {
	pred := n.getPredecessor()
	if pred == nil {
		return nil
	}

	err := n.peerPing(ctx, pred)
	if err == nil {
		return nil
	}

	n.mu.Lock()
	// a notify may have installed a newer predecessor during the ping
	cleared := n.predecessor.Equals(pred)
	if cleared {
		n.predecessor = nil
	}
	n.mu.Unlock()

	if cleared {
		n.logger.WithContext(ctx).Warn().
			Err(err).
			Str("predecessor", pred.Address()).
			Msg("Predecessor unreachable, cleared")
		n.publish(EventPredecessorLost, "predecessor "+pred.Address()+" unreachable")
	}
	return nil
}

// maintain runs one maintenance round. The first failing step ends the round.
func (n *ChordNode) maintain(ctx context.Context) error {
	if err := n.checkPredecessor(ctx); err != nil {
		return err
	}
	if err := n.stabilize(ctx); err != nil {
		return err
	}
	return n.fixFingers(ctx)
}

// startMaintenance starts the maintenance loop.
func (n *ChordNode) startMaintenance() {
	n.wg.Add(1)
	go n.maintenanceLoop()

	n.logger.Debug().
		Dur("interval", n.config.MaintenanceInterval).
		Msg("Maintenance loop started")
}

// maintenanceLoop repeats check_predecessor, stabilize and fix_fingers with a
// fixed pause between rounds until the node is shut down.
func (n *ChordNode) maintenanceLoop() {
	defer n.wg.Done()

	timer := time.NewTimer(n.config.MaintenanceInterval)
	defer timer.Stop()

	for {
		select {
		case <-n.ctx.Done():
			n.logger.Debug().Msg("Maintenance loop stopped")
			return
		case <-timer.C:
			n.runMaintenance()
			timer.Reset(n.config.MaintenanceInterval)
		}
	}
}

// runMaintenance runs one round and reports the resulting state.
func (n *ChordNode) runMaintenance() {
	ctx := pkg.ContextWithTraceID(n.ctx, xid.New().String())

	if err := n.maintain(ctx); err != nil {
		if n.ctx.Err() != nil {
			return
		}
		n.logger.WithContext(ctx).Warn().Err(err).Msg("Maintenance round failed")
	}

	snap := n.Snapshot()
	n.logStatus(snap)
	n.publishIfChanged(snap)
}

// Shutdown stops the maintenance loop. There is no leave protocol: peers
// notice the departure through their own maintenance.
func (n *ChordNode) Shutdown() error {
	n.shutdownMu.Lock()
	if n.shutdown {
		n.shutdownMu.Unlock()
		return nil
	}
	n.shutdown = true
	n.shutdownMu.Unlock()

	n.logger.Info().Msg("Shutting down ChordNode")

	n.cancel()
	n.wg.Wait()

	n.logger.Info().Msg("ChordNode shutdown complete")
	return nil
}

// IsShutdown returns whether the node has been shutdown.
func (n *ChordNode) IsShutdown() bool {
	n.shutdownMu.Lock()
	defer n.shutdownMu.Unlock()
	return n.shutdown
}

// withTrace makes sure ctx carries a trace ID for log correlation.
func withTrace(ctx context.Context) context.Context {
	if pkg.TraceIDFromContext(ctx) != "" {
		return ctx
	}
	return pkg.ContextWithTraceID(ctx, xid.New().String())
}
