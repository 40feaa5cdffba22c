package chord

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

func TestNewNodeAddress(t *testing.T) {
	tests := []struct {
		name string
		id   *big.Int
		host string
		port int
	}{
		{
			name: "valid node",
			id:   big.NewInt(42),
			host: "127.0.0.1",
			port: 8080,
		},
		{
			name: "large ID",
			id:   new(big.Int).Exp(big.NewInt(2), big.NewInt(159), nil),
			host: "192.168.1.1",
			port: 9000,
		},
		{
			name: "nil ID",
			id:   nil,
			host: "localhost",
			port: 8440,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := NewNodeAddress(tt.id, tt.host, tt.port)
			require.NotNil(t, node)
			assert.Equal(t, tt.host, node.Host)
			assert.Equal(t, tt.port, node.Port)
			assert.NotNil(t, node.ID)

			if tt.id != nil {
				// Verify ID is copied, not referenced
				assert.Zero(t, tt.id.Cmp(node.ID))
				assert.NotSame(t, tt.id, node.ID)
			}
		})
	}
}

func TestParseNodeAddress(t *testing.T) {
	space := hash.MustSpace(160)

	t.Run("valid endpoint", func(t *testing.T) {
		addr, err := ParseNodeAddress("127.0.0.1:8440", space)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", addr.Host)
		assert.Equal(t, 8440, addr.Port)
		assert.Zero(t, space.HashString("127.0.0.1:8440").Cmp(addr.ID))
	})

	for _, endpoint := range []string{"", "127.0.0.1", "127.0.0.1:abc", "127.0.0.1:0", ":8440", "127.0.0.1:70000"} {
		t.Run("rejects "+endpoint, func(t *testing.T) {
			_, err := ParseNodeAddress(endpoint, space)
			assert.ErrorIs(t, err, pkg.ErrInvalidAddress)
		})
	}
}

func TestNodeAddress_String(t *testing.T) {
	addr := NewNodeAddress(big.NewInt(12345), "192.168.1.1", 9000)
	assert.Equal(t, "NodeAddress{ID: 12345, Addr: 192.168.1.1:9000}", addr.String())

	var nilAddr *NodeAddress
	assert.Equal(t, "NodeAddress{nil}", nilAddr.String())
	assert.Equal(t, "", nilAddr.Address())
}

func TestNodeAddress_Equals(t *testing.T) {
	base := NewNodeAddress(big.NewInt(42), "127.0.0.1", 8080)

	tests := []struct {
		name     string
		node1    *NodeAddress
		node2    *NodeAddress
		expected bool
	}{
		{
			name:     "identical",
			node1:    base,
			node2:    NewNodeAddress(big.NewInt(42), "127.0.0.1", 8080),
			expected: true,
		},
		{
			name:     "different ID",
			node1:    base,
			node2:    NewNodeAddress(big.NewInt(43), "127.0.0.1", 8080),
			expected: false,
		},
		{
			name:     "different host",
			node1:    base,
			node2:    NewNodeAddress(big.NewInt(42), "127.0.0.2", 8080),
			expected: false,
		},
		{
			name:     "different port",
			node1:    base,
			node2:    NewNodeAddress(big.NewInt(42), "127.0.0.1", 8081),
			expected: false,
		},
		{
			name:     "both nil",
			node1:    nil,
			node2:    nil,
			expected: true,
		},
		{
			name:     "one nil",
			node1:    base,
			node2:    nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.node1.Equals(tt.node2))
			assert.Equal(t, tt.expected, tt.node2.Equals(tt.node1))
		})
	}
}

func TestNodeAddress_Copy(t *testing.T) {
	original := NewNodeAddress(big.NewInt(42), "127.0.0.1", 8080)
	copied := original.Copy()

	assert.True(t, original.Equals(copied))
	assert.NotSame(t, original, copied)
	assert.NotSame(t, original.ID, copied.ID)

	copied.ID.SetInt64(7)
	assert.Zero(t, big.NewInt(42).Cmp(original.ID))

	var nilAddr *NodeAddress
	assert.Nil(t, nilAddr.Copy())
}

func TestNodeAddress_Validate(t *testing.T) {
	space := hash.MustSpace(16)
	good := NewNodeAddress(space.HashAddress("10.1.1.1", 4000), "10.1.1.1", 4000)

	tests := []struct {
		name    string
		addr    *NodeAddress
		wantErr bool
	}{
		{name: "hashed identifier", addr: good},
		{name: "nil", addr: nil, wantErr: true},
		{name: "empty host", addr: NewNodeAddress(good.ID, "", 4000), wantErr: true},
		{name: "zero port", addr: NewNodeAddress(good.ID, "10.1.1.1", 0), wantErr: true},
		{name: "port too large", addr: NewNodeAddress(good.ID, "10.1.1.1", 65536), wantErr: true},
		{name: "identifier outside ring", addr: NewNodeAddress(big.NewInt(1<<16), "10.1.1.1", 4000), wantErr: true},
		{name: "identifier does not match endpoint", addr: NewNodeAddress(space.HashAddress("10.1.1.1", 4001), "10.1.1.1", 4000), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.addr.Validate(space)
			if tt.wantErr {
				assert.ErrorIs(t, err, pkg.ErrInvalidAddress)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFingerTable(t *testing.T) {
	space := hash.MustSpace(8)
	ft := NewFingerTable(space, big.NewInt(250))

	require.Equal(t, 8, ft.Len())

	wantStarts := []int64{251, 252, 254, 2, 10, 26, 58, 122}
	for i, want := range wantStarts {
		assert.Zero(t, big.NewInt(want).Cmp(ft.Start(i)), "start %d", i)
		assert.Nil(t, ft.Node(i))
	}

	t.Run("set stores a copy", func(t *testing.T) {
		node := NewNodeAddress(big.NewInt(3), "10.0.0.1", 7003)
		ft.Set(3, node)
		node.Port = 1

		got := ft.Node(3)
		require.NotNil(t, got)
		assert.Equal(t, 7003, got.Port)

		got.Port = 2
		assert.Equal(t, 7003, ft.Node(3).Port)
	})

	t.Run("start is a copy", func(t *testing.T) {
		s := ft.Start(0)
		s.SetInt64(0)
		assert.Zero(t, big.NewInt(251).Cmp(ft.Start(0)))
	})

	t.Run("entries", func(t *testing.T) {
		entries := ft.Entries()
		require.Len(t, entries, 8)
		assert.Zero(t, big.NewInt(2).Cmp(entries[3].Start))
		assert.Equal(t, "10.0.0.1:7003", entries[3].Node.Address())
		assert.Nil(t, entries[4].Node)
	})
}

func TestTruncateHex(t *testing.T) {
	assert.Equal(t, "abcdef01", truncateHex("abcdef0123", 8))
	assert.Equal(t, "abc", truncateHex("abc", 8))
	assert.Equal(t, "nil", shortID(nil))
	assert.Equal(t, "ff", shortID(NewNodeAddress(big.NewInt(255), "h", 1)))
}

func BenchmarkNodeAddress_Copy(b *testing.B) {
	node := NewNodeAddress(big.NewInt(42), "127.0.0.1", 8080)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = node.Copy()
	}
}

func BenchmarkNodeAddress_Equals(b *testing.B) {
	node1 := NewNodeAddress(big.NewInt(42), "127.0.0.1", 8080)
	node2 := NewNodeAddress(big.NewInt(42), "127.0.0.1", 8080)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = node1.Equals(node2)
	}
}
