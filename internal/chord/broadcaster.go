package chord

import "time"

// Ring update event types
const (
	EventNodeJoin        = "node_join"
	EventPredecessorLost = "predecessor_lost"
	EventStateChanged    = "state_changed"
)

// RingUpdateBroadcaster is an interface for broadcasting ring updates.
// This allows the ChordNode to notify external systems (like WebSocket clients)
// when its view of the ring changes without creating circular dependencies.
type RingUpdateBroadcaster interface {
	// BroadcastRingUpdate sends a ring update notification.
	// The update parameter can be any data structure that will be serialized and sent.
	BroadcastRingUpdate(update any) error
}

// RingUpdateEvent represents a change in a node's routing state.
type RingUpdateEvent struct {
	Type      string        `json:"type"`               // one of the Event* constants
	NodeID    string        `json:"node_id"`            // ID of the node that emitted the event
	Address   string        `json:"address"`            // host:port of that node
	Timestamp int64         `json:"timestamp"`          // Unix timestamp
	Message   string        `json:"message"`            // Human-readable message
	Snapshot  *NodeSnapshot `json:"snapshot,omitempty"` // routing state after the change
}

// SetBroadcaster registers the receiver of ring update events.
func (n *ChordNode) SetBroadcaster(b RingUpdateBroadcaster) {
	n.broadcasterMu.Lock()
	defer n.broadcasterMu.Unlock()
	n.broadcaster = b
}

func (n *ChordNode) getBroadcaster() RingUpdateBroadcaster {
	n.broadcasterMu.RLock()
	defer n.broadcasterMu.RUnlock()
	return n.broadcaster
}

// publish sends an event carrying the current snapshot.
func (n *ChordNode) publish(eventType, message string) {
	n.publishSnapshot(eventType, message, n.Snapshot())
}

func (n *ChordNode) publishSnapshot(eventType, message string, snap *NodeSnapshot) {
	b := n.getBroadcaster()
	if b == nil {
		return
	}

	event := &RingUpdateEvent{
		Type:      eventType,
		NodeID:    n.id.String(),
		Address:   n.address.Address(),
		Timestamp: time.Now().Unix(),
		Message:   message,
		Snapshot:  snap,
	}
	if err := b.BroadcastRingUpdate(event); err != nil {
		n.logger.Debug().Err(err).Str("event", eventType).Msg("Failed to broadcast ring update")
	}
}

// publishIfChanged emits EventStateChanged when the routing state differs from
// the last published one. Called from the maintenance loop only.
func (n *ChordNode) publishIfChanged(snap *NodeSnapshot) {
	fp := snap.Fingerprint()
	if fp == n.lastFingerprint {
		return
	}
	n.lastFingerprint = fp
	n.publishSnapshot(EventStateChanged, "routing state changed", snap)
}
