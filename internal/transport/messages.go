package transport

import (
	"math/big"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zde37/chordring/internal/chord"
)

// Messages of chordring.ChordService, see protobuf/chord.proto. They are
// encoded in the protobuf wire format by wireCodec.

// wireMessage is implemented by every request and response type.
type wireMessage interface {
	appendWire(b []byte) []byte
	readWire(b []byte) error
}

// nodeMessage mirrors chordring.Node.
type nodeMessage struct {
	ID   []byte // big-endian identifier
	Host string
	Port int32
}

func (m *nodeMessage) appendWire(b []byte) []byte {
	b = appendBytesField(b, 1, m.ID)
	b = appendStringField(b, 2, m.Host)
	b = appendVarintField(b, 3, uint64(int64(m.Port)))
	return b
}

func (m *nodeMessage) readWire(b []byte) error {
	*m = nodeMessage{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.ID = append([]byte(nil), v...)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Host = v
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Port = int32(v)
			return n, nil
		}
		return 0, nil
	})
}

type findSuccessorRequest struct {
	ID   []byte
	Hops int32
}

func (m *findSuccessorRequest) appendWire(b []byte) []byte {
	b = appendBytesField(b, 1, m.ID)
	b = appendVarintField(b, 2, uint64(int64(m.Hops)))
	return b
}

func (m *findSuccessorRequest) readWire(b []byte) error {
	*m = findSuccessorRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.ID = append([]byte(nil), v...)
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Hops = int32(v)
			return n, nil
		}
		return 0, nil
	})
}

// nodeResponse carries an optional node: a nil Node means "none".
type nodeResponse struct {
	Node *nodeMessage
}

func (m *nodeResponse) appendWire(b []byte) []byte {
	return appendMessageField(b, 1, m.Node)
}

func (m *nodeResponse) readWire(b []byte) error {
	*m = nodeResponse{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			m.Node = &nodeMessage{}
			return n, m.Node.readWire(v)
		}
		return 0, nil
	})
}

type notifyRequest struct {
	Node *nodeMessage
}

func (m *notifyRequest) appendWire(b []byte) []byte {
	return appendMessageField(b, 1, m.Node)
}

func (m *notifyRequest) readWire(b []byte) error {
	var r nodeResponse
	if err := r.readWire(b); err != nil {
		return err
	}
	m.Node = r.Node
	return nil
}

type emptyMessage struct{}

func (m *emptyMessage) appendWire(b []byte) []byte { return b }

func (m *emptyMessage) readWire(b []byte) error {
	return readFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil })
}

type pingRequest struct {
	Message string
}

func (m *pingRequest) appendWire(b []byte) []byte {
	return appendStringField(b, 1, m.Message)
}

func (m *pingRequest) readWire(b []byte) error {
	*m = pingRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.Message = v
			return n, nil
		}
		return 0, nil
	})
}

type pingResponse struct {
	Message   string
	Timestamp int64
}

func (m *pingResponse) appendWire(b []byte) []byte {
	b = appendStringField(b, 1, m.Message)
	b = appendVarintField(b, 2, uint64(m.Timestamp))
	return b
}

func (m *pingResponse) readWire(b []byte) error {
	*m = pingResponse{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Message = v
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Timestamp = int64(v)
			return n, nil
		}
		return 0, nil
	})
}

// Field helpers. Zero values are omitted, as proto3 does for scalars.

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendMessageField writes a nested message; nil is omitted so presence survives.
func appendMessageField(b []byte, num protowire.Number, m *nodeMessage) []byte {
	if m == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}

// readFields walks the fields of an encoded message. set consumes a known
// field and returns the bytes it used; returning 0 skips the field as unknown.
func readFields(b []byte, set func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := set(num, typ, b)
		if err != nil {
			return err
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// nodeAddressToWire converts a NodeAddress to its wire form.
func nodeAddressToWire(addr *chord.NodeAddress) *nodeMessage {
	if addr == nil || addr.ID == nil {
		return nil
	}
	return &nodeMessage{
		ID:   addr.ID.Bytes(),
		Host: addr.Host,
		Port: int32(addr.Port),
	}
}

// wireToNodeAddress converts a wire node to a NodeAddress.
func wireToNodeAddress(m *nodeMessage) *chord.NodeAddress {
	if m == nil {
		return nil
	}
	return chord.NewNodeAddress(new(big.Int).SetBytes(m.ID), m.Host, int(m.Port))
}
