package chord

import (
	"context"
	"math/big"

	"github.com/zde37/chordring/pkg"
)

// The peer* helpers address another ring member. Calls aimed at this node's
// own address are answered in process instead of going through the transport.

func (n *ChordNode) isSelf(peer *NodeAddress) bool {
	return peer.Equals(n.address)
}

func (n *ChordNode) requireRemote() (RemoteClient, error) {
	remote := n.getRemote()
	if remote == nil {
		return nil, pkg.ErrNoRemote
	}
	return remote, nil
}

func (n *ChordNode) peerFindSuccessor(ctx context.Context, peer *NodeAddress, id *big.Int, hops int) (*NodeAddress, error) {
	if n.isSelf(peer) {
		return n.FindSuccessorWithHops(ctx, id, hops)
	}
	remote, err := n.requireRemote()
	if err != nil {
		return nil, err
	}
	return remote.FindSuccessor(ctx, peer.Address(), id, hops)
}

func (n *ChordNode) peerGetSuccessor(ctx context.Context, peer *NodeAddress) (*NodeAddress, error) {
	if n.isSelf(peer) {
		return n.GetSuccessor(), nil
	}
	remote, err := n.requireRemote()
	if err != nil {
		return nil, err
	}
	return remote.GetSuccessor(ctx, peer.Address())
}

func (n *ChordNode) peerGetPredecessor(ctx context.Context, peer *NodeAddress) (*NodeAddress, error) {
	if n.isSelf(peer) {
		return n.GetPredecessor(), nil
	}
	remote, err := n.requireRemote()
	if err != nil {
		return nil, err
	}
	return remote.GetPredecessor(ctx, peer.Address())
}

func (n *ChordNode) peerNotify(ctx context.Context, peer *NodeAddress, candidate *NodeAddress) error {
	if n.isSelf(peer) {
		n.Notify(candidate)
		return nil
	}
	remote, err := n.requireRemote()
	if err != nil {
		return err
	}
	return remote.Notify(ctx, peer.Address(), candidate)
}

func (n *ChordNode) peerPing(ctx context.Context, peer *NodeAddress) error {
	if n.isSelf(peer) {
		return nil
	}
	remote, err := n.requireRemote()
	if err != nil {
		return err
	}
	return remote.Ping(ctx, peer.Address())
}
