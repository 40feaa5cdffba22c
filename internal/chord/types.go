package chord

import (
	"fmt"
	"math/big"
	"net"
	"strconv"

	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

// NodeAddress represents a node in the Chord ring with its identifier and network address.
type NodeAddress struct {
	ID   *big.Int // Node identifier in the Chord ring (0 to 2^M - 1)
	Host string   // Network host (IP address or hostname)
	Port int      // Network port
}

// NewNodeAddress creates a new NodeAddress with the given parameters.
// The ID is copied to prevent external modification.
func NewNodeAddress(id *big.Int, host string, port int) *NodeAddress {
	idCopy := new(big.Int)
	if id != nil {
		idCopy.Set(id)
	}
	return &NodeAddress{
		ID:   idCopy,
		Host: host,
		Port: port,
	}
}

// ParseNodeAddress builds the address of the node listening on endpoint ("host:port"),
// deriving its identifier from the endpoint string.
func ParseNodeAddress(endpoint string, space *hash.Space) (*NodeAddress, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", pkg.ErrInvalidAddress, endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: bad port: %v", pkg.ErrInvalidAddress, endpoint, err)
	}

	addr := NewNodeAddress(space.HashAddress(host, port), host, port)
	if err := addr.Validate(space); err != nil {
		return nil, err
	}
	return addr, nil
}

// String returns a human-readable representation of the node address.
func (n *NodeAddress) String() string {
	if n == nil {
		return "NodeAddress{nil}"
	}
	return fmt.Sprintf("NodeAddress{ID: %s, Addr: %s}", n.ID.String(), n.Address())
}

// Address returns the network address in "host:port" format.
func (n *NodeAddress) Address() string {
	if n == nil {
		return ""
	}
	return hash.JoinHostPort(n.Host, n.Port)
}

// Equals checks if two NodeAddress instances are equal.
// Two nodes are equal if they have the same ID, host, and port.
func (n *NodeAddress) Equals(other *NodeAddress) bool {
	if n == nil || other == nil {
		return n == nil && other == nil
	}
	if n.ID == nil || other.ID == nil {
		return n.ID == nil && other.ID == nil && n.Host == other.Host && n.Port == other.Port
	}
	return n.ID.Cmp(other.ID) == 0 &&
		n.Host == other.Host &&
		n.Port == other.Port
}

// Copy creates a deep copy of the NodeAddress.
func (n *NodeAddress) Copy() *NodeAddress {
	if n == nil {
		return nil
	}
	return NewNodeAddress(n.ID, n.Host, n.Port)
}

// Validate checks that the address names a reachable endpoint and that its
// identifier is the one the endpoint hashes to in the given space.
func (n *NodeAddress) Validate(space *hash.Space) error {
	switch {
	case n == nil || n.ID == nil:
		return fmt.Errorf("%w: missing identifier", pkg.ErrInvalidAddress)
	case n.Host == "":
		return fmt.Errorf("%w: empty host", pkg.ErrInvalidAddress)
	case n.Port <= 0 || n.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", pkg.ErrInvalidAddress, n.Port)
	case !space.IsValidID(n.ID):
		return fmt.Errorf("%w: id %s outside a %d-bit ring", pkg.ErrInvalidAddress, n.ID, space.Bits())
	}
	if want := space.HashAddress(n.Host, n.Port); want.Cmp(n.ID) != 0 {
		return fmt.Errorf("%w: id %s does not match %s", pkg.ErrInvalidAddress, n.ID, n.Address())
	}
	return nil
}

// shortID is the identifier prefix used in log fields.
func shortID(n *NodeAddress) string {
	if n == nil || n.ID == nil {
		return "nil"
	}
	return truncateHex(n.ID.Text(16), 8)
}

// truncateHex safely truncates a hex string to the specified length.
func truncateHex(hexStr string, maxLen int) string {
	if len(hexStr) > maxLen {
		return hexStr[:maxLen]
	}
	return hexStr
}

// FingerTable is the routing table of a node: entry i caches the node
// responsible for (self + 2^i) mod 2^m. Entry 0 is the node's successor.
//
// FingerTable is not safe for concurrent use; ChordNode guards it.
type FingerTable struct {
	start []*big.Int     // fixed at construction
	node  []*NodeAddress // nil when unknown
}

// NewFingerTable creates the table for the node with the given id.
func NewFingerTable(space *hash.Space, id *big.Int) *FingerTable {
	m := space.Bits()
	ft := &FingerTable{
		start: make([]*big.Int, m),
		node:  make([]*NodeAddress, m),
	}
	for i := 0; i < m; i++ {
		ft.start[i] = space.AddPowerOfTwo(id, i)
	}
	return ft
}

// Len returns m, the number of entries.
func (ft *FingerTable) Len() int {
	return len(ft.start)
}

// Start returns the start key of entry i.
func (ft *FingerTable) Start(i int) *big.Int {
	return new(big.Int).Set(ft.start[i])
}

// Node returns a copy of entry i, or nil if it is unknown.
func (ft *FingerTable) Node(i int) *NodeAddress {
	return ft.node[i].Copy()
}

// Set stores a copy of node into entry i.
func (ft *FingerTable) Set(i int, node *NodeAddress) {
	ft.node[i] = node.Copy()
}

// FingerEntry is a point-in-time view of one finger table row.
type FingerEntry struct {
	Start *big.Int
	Node  *NodeAddress
}

// Entries returns copies of all rows.
func (ft *FingerTable) Entries() []FingerEntry {
	out := make([]FingerEntry, len(ft.start))
	for i := range ft.start {
		out[i] = FingerEntry{
			Start: new(big.Int).Set(ft.start[i]),
			Node:  ft.node[i].Copy(),
		}
	}
	return out
}
