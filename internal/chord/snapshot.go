package chord

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

// AddressView is the JSON form of a NodeAddress. IDs are decimal strings
// because 160-bit integers do not survive JSON number parsing.
type AddressView struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// FingerView is one finger table row.
type FingerView struct {
	Index int          `json:"index"`
	Start string       `json:"start"`
	Node  *AddressView `json:"node,omitempty"`
}

// NodeSnapshot is a point-in-time copy of a node's routing state.
type NodeSnapshot struct {
	Self        AddressView  `json:"self"`
	Successor   *AddressView `json:"successor"`
	Predecessor *AddressView `json:"predecessor,omitempty"`
	Fingers     []FingerView `json:"fingers"`
	NextFinger  int          `json:"next_finger"`
	Bits        int          `json:"bits"`
	Joined      bool         `json:"joined"`
}

// ViewOf converts an address for JSON output; nil stays nil.
func ViewOf(a *NodeAddress) *AddressView {
	if a == nil || a.ID == nil {
		return nil
	}
	return &AddressView{
		ID:   a.ID.String(),
		Host: a.Host,
		Port: a.Port,
	}
}

// Snapshot copies the node's routing state.
func (n *ChordNode) Snapshot() *NodeSnapshot {
	n.mu.RLock()
	entries := n.fingers.Entries()
	pred := n.predecessor.Copy()
	next := n.nextFinger
	n.mu.RUnlock()

	fingers := make([]FingerView, len(entries))
	for i, e := range entries {
		fingers[i] = FingerView{
			Index: i,
			Start: e.Start.String(),
			Node:  ViewOf(e.Node),
		}
	}

	return &NodeSnapshot{
		Self:        *ViewOf(n.address),
		Successor:   ViewOf(entries[0].Node),
		Predecessor: ViewOf(pred),
		Fingers:     fingers,
		NextFinger:  next,
		Bits:        n.space.Bits(),
		Joined:      n.IsJoined(),
	}
}

// Fingerprint hashes the routing pointers of the snapshot. The cursor is left
// out so a round that only advances it does not count as a change.
func (s *NodeSnapshot) Fingerprint() uint64 {
	d := xxhash.New()
	write := func(v *AddressView) {
		if v == nil {
			_, _ = d.WriteString("-;")
			return
		}
		_, _ = d.WriteString(v.ID)
		_, _ = d.WriteString("@")
		_, _ = d.WriteString(v.Host)
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(strconv.Itoa(v.Port))
		_, _ = d.WriteString(";")
	}

	write(s.Successor)
	write(s.Predecessor)
	for i := range s.Fingers {
		write(s.Fingers[i].Node)
	}
	return d.Sum64()
}

// logStatus reports the routing state after a maintenance round.
func (n *ChordNode) logStatus(snap *NodeSnapshot) {
	pred := "nil"
	if snap.Predecessor != nil {
		pred = snap.Predecessor.Host + ":" + strconv.Itoa(snap.Predecessor.Port)
	}

	n.logger.Debug().
		Str("successor", snap.Successor.Host+":"+strconv.Itoa(snap.Successor.Port)).
		Str("predecessor", pred).
		Int("next_finger", snap.NextFinger).
		Msg("Node status")

	if n.logger.GetLevel() <= zerolog.TraceLevel {
		for _, f := range snap.Fingers {
			ev := n.logger.Trace().Int("index", f.Index).Str("start", f.Start)
			if f.Node != nil {
				ev = ev.Str("node_id", f.Node.ID)
			}
			ev.Msg("Finger")
		}
	}
}
