package hash

import (
	"crypto/sha1"
	"fmt"
	"math/big"
	"strconv"
)

const (
	// MaxBits is the widest identifier space: the full SHA-1 digest.
	MaxBits = 160
)

var one = big.NewInt(1)

// Space is a modulo 2^m identifier circle.
type Space struct {
	bits int
	size *big.Int // 2^bits
}

// NewSpace returns the identifier space of the given size in bits (1..160).
func NewSpace(bits int) (*Space, error) {
	if bits <= 0 || bits > MaxBits {
		return nil, fmt.Errorf("ring size must be between 1 and %d bits, got %d", MaxBits, bits)
	}
	return &Space{
		bits: bits,
		size: new(big.Int).Lsh(one, uint(bits)),
	}, nil
}

// MustSpace is like NewSpace but panics on an invalid size.
func MustSpace(bits int) *Space {
	s, err := NewSpace(bits)
	if err != nil {
		panic(err)
	}
	return s
}

// Bits returns m.
func (s *Space) Bits() int {
	return s.bits
}

// Size returns 2^m.
func (s *Space) Size() *big.Int {
	return new(big.Int).Set(s.size)
}

// MaxID returns the largest identifier on the ring (2^m - 1).
func (s *Space) MaxID() *big.Int {
	return new(big.Int).Sub(s.size, one)
}

// HashString maps an endpoint string to an identifier:
// SHA-1 of its bytes, read as a big-endian integer, reduced mod 2^m.
func (s *Space) HashString(endpoint string) *big.Int {
	sum := sha1.Sum([]byte(endpoint))
	return s.mod(new(big.Int).SetBytes(sum[:]))
}

// HashAddress hashes a network address in "host:port" form.
func (s *Space) HashAddress(host string, port int) *big.Int {
	return s.HashString(JoinHostPort(host, port))
}

// AddPowerOfTwo computes (n + 2^exponent) mod 2^m.
// finger[i].start = (n + 2^i) mod 2^m
func (s *Space) AddPowerOfTwo(n *big.Int, exponent int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	if exponent < 0 {
		return s.mod(n)
	}
	offset := new(big.Int).Lsh(one, uint(exponent))
	return s.mod(offset.Add(offset, n))
}

// Distance computes the clockwise distance from start to end, (end - start) mod 2^m.
func (s *Space) Distance(start, end *big.Int) *big.Int {
	if start == nil || end == nil {
		return new(big.Int)
	}
	return s.mod(new(big.Int).Sub(end, start))
}

// Normalize reduces id into [0, 2^m).
func (s *Space) Normalize(id *big.Int) *big.Int {
	if id == nil {
		return new(big.Int)
	}
	return s.mod(id)
}

// IsValidID checks if an ID is within [0, 2^m).
func (s *Space) IsValidID(id *big.Int) bool {
	return id != nil && id.Sign() >= 0 && id.Cmp(s.size) < 0
}

// mod returns a fresh x mod 2^m; big.Int.Mod is Euclidean so the result is never negative.
func (s *Space) mod(x *big.Int) *big.Int {
	return new(big.Int).Mod(x, s.size)
}

// JoinHostPort formats an endpoint the way identifiers are derived from it.
// Unlike net.JoinHostPort it never brackets the host, so "::1" hashes as "::1:port".
func JoinHostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// InInterval reports whether id lies on the clockwise arc from start to end.
//
// When start == end the arc covers the whole ring and the result is true
// whatever the inclusivity flags say. Note this also holds for callers that
// mean an empty range.
//
// Examples on an 8-bit ring:
//   - InInterval(250, 5, 10, false, true) = true   // wraps through 0
//   - InInterval(10, 5, 250, false, false) = false
//   - InInterval(7, 7, 9, true, false)   = true
//   - InInterval(7, 7, 9, false, false)  = false
func InInterval(start, id, end *big.Int, inclusiveStart, inclusiveEnd bool) bool {
	if start == nil || id == nil || end == nil {
		return false
	}

	order := start.Cmp(end)
	if order == 0 {
		return true
	}

	afterStart := id.Cmp(start) > 0 || (inclusiveStart && id.Cmp(start) == 0)
	beforeEnd := id.Cmp(end) < 0 || (inclusiveEnd && id.Cmp(end) == 0)

	if order < 0 {
		return afterStart && beforeEnd
	}
	// start > end: the arc passes through 0
	return afterStart || beforeEnd
}

// Between checks if id is in the open arc (start, end).
func Between(id, start, end *big.Int) bool {
	return InInterval(start, id, end, false, false)
}

// InRange checks if id is in the arc (start, end].
func InRange(id, start, end *big.Int) bool {
	return InInterval(start, id, end, false, true)
}
