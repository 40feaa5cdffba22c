package chord

import (
	"context"
	"math/big"
)

// RemoteClient defines the calls a ChordNode makes on other ring members.
// It lets the node reach peers without depending on the transport package.
//
// Implementations must return a non-nil error for any transport failure
// (refused connection, timeout, remote fault); the node never inspects
// anything finer than success or failure.
type RemoteClient interface {
	// FindSuccessor asks the node at address for the successor of id.
	// hops is the number of forwards the lookup has already taken.
	FindSuccessor(ctx context.Context, address string, id *big.Int, hops int) (*NodeAddress, error)

	// GetSuccessor returns the current successor of the node at address.
	GetSuccessor(ctx context.Context, address string) (*NodeAddress, error)

	// GetPredecessor returns the predecessor of the node at address, nil if it has none.
	GetPredecessor(ctx context.Context, address string) (*NodeAddress, error)

	// GetAddress returns the node's own address as it reports it.
	GetAddress(ctx context.Context, address string) (*NodeAddress, error)

	// Notify tells the node at address that node may be its predecessor.
	Notify(ctx context.Context, address string, node *NodeAddress) error

	// Ping checks that the node at address answers.
	Ping(ctx context.Context, address string) error
}
