package transport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype the ring speaks ("application/grpc+chordwire").
const codecName = "chordwire"

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// wireCodec marshals the service messages in the protobuf wire format.
type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("%s codec: cannot marshal %T", codecName, v)
	}
	return m.appendWire(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("%s codec: cannot unmarshal into %T", codecName, v)
	}
	if err := m.readWire(data); err != nil {
		return fmt.Errorf("%s codec: %T: %w", codecName, v, err)
	}
	return nil
}

func (wireCodec) Name() string {
	return codecName
}
