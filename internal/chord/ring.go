package chord

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gobwas/avl"

	"github.com/zde37/chordring/pkg"
)

// ringMember orders addresses by identifier inside the view tree.
type ringMember struct {
	*NodeAddress
}

func (m ringMember) Compare(x avl.Item) int {
	return m.ID.Cmp(x.(ringMember).ID)
}

// RingView is an ordered set of ring members keyed by identifier.
// The zero value is an empty view ready to use.
type RingView struct {
	tree avl.Tree // tree<ringMember>
}

// NewRingView builds a view holding the given members.
func NewRingView(members ...*NodeAddress) *RingView {
	v := &RingView{}
	for _, m := range members {
		v.Add(m)
	}
	return v
}

// Add inserts a member. It returns false if a member with the same
// identifier is already present.
func (v *RingView) Add(member *NodeAddress) bool {
	if member == nil || member.ID == nil {
		return false
	}
	tree, existing := v.tree.Insert(ringMember{member.Copy()})
	if existing != nil {
		return false
	}
	v.tree = tree
	return true
}

// Size returns the number of members.
func (v *RingView) Size() int {
	return v.tree.Size()
}

// Members returns the members in increasing identifier order.
func (v *RingView) Members() []*NodeAddress {
	out := make([]*NodeAddress, 0, v.tree.Size())
	v.tree.InOrder(func(x avl.Item) bool {
		out = append(out, x.(ringMember).Copy())
		return true
	})
	return out
}

// Owner returns the member responsible for id: the first member whose
// identifier is equal to or follows id, wrapping to the smallest one.
func (v *RingView) Owner(id *big.Int) *NodeAddress {
	if id == nil || v.tree.Size() == 0 {
		return nil
	}

	var owner *NodeAddress
	v.tree.InOrder(func(x avl.Item) bool {
		if owner != nil {
			return false
		}
		m := x.(ringMember)
		if m.ID.Cmp(id) >= 0 {
			owner = m.NodeAddress
			return false
		}
		return true
	})
	if owner == nil {
		owner = v.tree.Min().(ringMember).NodeAddress
	}
	return owner.Copy()
}

// Predecessor returns the member just before member on the ring.
func (v *RingView) Predecessor(member *NodeAddress) *NodeAddress {
	if member == nil || v.tree.Size() == 0 {
		return nil
	}

	var prev *NodeAddress
	v.tree.InOrder(func(x avl.Item) bool {
		m := x.(ringMember)
		if m.ID.Cmp(member.ID) >= 0 {
			return false
		}
		prev = m.NodeAddress
		return true
	})
	if prev == nil {
		var last *NodeAddress
		v.tree.InOrder(func(x avl.Item) bool {
			last = x.(ringMember).NodeAddress
			return true
		})
		prev = last
	}
	return prev.Copy()
}

// WalkRing follows successor pointers from this node until it comes back to
// itself, visiting at most limit nodes. The walk fails with
// pkg.ErrRingWalkIncomplete if the pointers loop without passing through the
// origin or the limit is reached first.
func (n *ChordNode) WalkRing(ctx context.Context, limit int) (*RingView, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("walk limit must be positive, got %d", limit)
	}
	ctx = withTrace(ctx)

	view := NewRingView(n.address)
	current := n.address.Copy()

	for steps := 0; steps < limit; steps++ {
		next, err := n.peerGetSuccessor(ctx, current)
		if err != nil {
			return view, fmt.Errorf("walk ring: get successor of %s: %w", current.Address(), err)
		}
		if next == nil {
			return view, fmt.Errorf("walk ring: %s reported no successor", current.Address())
		}
		if next.Equals(n.address) {
			return view, nil
		}
		if !view.Add(next) {
			return view, fmt.Errorf("%w: %s revisited", pkg.ErrRingWalkIncomplete, next.Address())
		}
		current = next
	}

	return view, fmt.Errorf("%w: stopped after %d nodes", pkg.ErrRingWalkIncomplete, limit)
}
