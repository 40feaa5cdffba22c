package chord

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/pkg"
)

func member(id int64) *NodeAddress {
	return NewNodeAddress(big.NewInt(id), "10.0.0.1", 7000+int(id))
}

func TestRingView(t *testing.T) {
	view := NewRingView(member(120), member(10), member(200), member(60))

	t.Run("members are ordered", func(t *testing.T) {
		assert.Equal(t, 4, view.Size())
		var ids []int64
		for _, m := range view.Members() {
			ids = append(ids, m.ID.Int64())
		}
		assert.Equal(t, []int64{10, 60, 120, 200}, ids)
	})

	t.Run("duplicates rejected", func(t *testing.T) {
		assert.False(t, view.Add(member(60)))
		assert.False(t, view.Add(nil))
		assert.Equal(t, 4, view.Size())
	})

	t.Run("owner", func(t *testing.T) {
		tests := []struct {
			id   int64
			want int64
		}{
			{id: 0, want: 10},
			{id: 10, want: 10},
			{id: 11, want: 60},
			{id: 60, want: 60},
			{id: 150, want: 200},
			{id: 200, want: 200},
			{id: 201, want: 10},
			{id: 255, want: 10},
		}
		for _, tt := range tests {
			got := view.Owner(big.NewInt(tt.id))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID.Int64(), "owner of %d", tt.id)
		}
	})

	t.Run("predecessor", func(t *testing.T) {
		assert.Equal(t, int64(200), view.Predecessor(member(10)).ID.Int64())
		assert.Equal(t, int64(10), view.Predecessor(member(60)).ID.Int64())
		assert.Equal(t, int64(120), view.Predecessor(member(200)).ID.Int64())
	})

	t.Run("empty view", func(t *testing.T) {
		var empty RingView
		assert.Zero(t, empty.Size())
		assert.Nil(t, empty.Owner(big.NewInt(3)))
		assert.Nil(t, empty.Predecessor(member(3)))
		assert.Empty(t, empty.Members())
	})

	t.Run("single member owns everything", func(t *testing.T) {
		one := NewRingView(member(77))
		assert.Equal(t, int64(77), one.Owner(big.NewInt(5)).ID.Int64())
		assert.Equal(t, int64(77), one.Owner(big.NewInt(100)).ID.Int64())
		assert.Equal(t, int64(77), one.Predecessor(member(77)).ID.Int64())
	})
}

func TestChordNode_WalkRing(t *testing.T) {
	ctx := context.Background()

	t.Run("singleton", func(t *testing.T) {
		node := newTestNode(t, nil, 42)
		require.NoError(t, node.Join(ctx, node.Address()))

		view, err := node.WalkRing(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, 1, view.Size())
	})

	t.Run("limit too small", func(t *testing.T) {
		net := newFakeNetwork()
		nodes := buildRing(t, net, 10, 60, 120, 200)

		view, err := nodes[0].WalkRing(ctx, 2)
		assert.ErrorIs(t, err, pkg.ErrRingWalkIncomplete)
		assert.Equal(t, 3, view.Size())
	})

	t.Run("dead member", func(t *testing.T) {
		net := newFakeNetwork()
		nodes := buildRing(t, net, 10, 60, 120, 200)
		net.setDown(nodes[2].Address().Address(), true)

		_, err := nodes[0].WalkRing(ctx, 10)
		assert.ErrorIs(t, err, pkg.ErrNodeUnreachable)
	})

	t.Run("loop that skips the origin", func(t *testing.T) {
		net := newFakeNetwork()
		nodes := buildRing(t, net, 10, 60, 120, 200)
		nodes[3].setSuccessor(nodes[1].Address())

		_, err := nodes[0].WalkRing(ctx, 10)
		assert.ErrorIs(t, err, pkg.ErrRingWalkIncomplete)
	})

	t.Run("invalid limit", func(t *testing.T) {
		node := newTestNode(t, nil, 42)
		_, err := node.WalkRing(ctx, 0)
		assert.Error(t, err)
	})
}

func TestNodeSnapshot(t *testing.T) {
	node := newTestNode(t, nil, 42)
	require.NoError(t, node.Join(context.Background(), node.Address()))

	snap := node.Snapshot()
	assert.Equal(t, "42", snap.Self.ID)
	require.NotNil(t, snap.Successor)
	assert.Equal(t, "42", snap.Successor.ID)
	assert.Nil(t, snap.Predecessor)
	assert.Len(t, snap.Fingers, testBits)
	assert.Equal(t, "43", snap.Fingers[0].Start)
	assert.Nil(t, snap.Fingers[1].Node)
	assert.Equal(t, testBits, snap.Bits)
	assert.True(t, snap.Joined)

	t.Run("fingerprint tracks pointers", func(t *testing.T) {
		before := snap.Fingerprint()
		assert.Equal(t, before, node.Snapshot().Fingerprint())

		node.Notify(member(10))
		after := node.Snapshot().Fingerprint()
		assert.NotEqual(t, before, after)
	})

	t.Run("fingerprint ignores the cursor", func(t *testing.T) {
		a := node.Snapshot()
		b := node.Snapshot()
		b.NextFinger = a.NextFinger + 3
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	assert.Nil(t, ViewOf(nil))
}
