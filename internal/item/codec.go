// Package item defines the codec boundary for submitted item payloads. The
// engine treats item payloads as opaque blobs; the codec is consulted only
// to decide whether a blob is decodable at all.
package item

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrUndecodable marks a blob the codec cannot decode.
var ErrUndecodable = errors.New("item: undecodable payload")

// Codec validates that a submitted item blob can be decoded. Decoded
// contents are never inspected by the engine.
type Codec interface {
	Decode(data []byte) error
}

// WireCodec validates protobuf wire-format framing, the encoding item
// payloads are serialized in. It does not require the message schema: a
// blob whose fields all parse as well-formed wire data is accepted.
type WireCodec struct{}

// NewWireCodec creates the production codec.
func NewWireCodec() WireCodec {
	return WireCodec{}
}

// Decode reports whether data is well-formed protobuf wire data. Empty
// payloads are rejected: every real item carries at least one field.
func (WireCodec) Decode(data []byte) error {
	if len(data) == 0 {
		return ErrUndecodable
	}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeField(data)
		if n < 0 || num < 1 {
			return ErrUndecodable
		}
		switch typ {
		case protowire.VarintType, protowire.Fixed32Type, protowire.Fixed64Type, protowire.BytesType:
		default:
			// Group types are not produced by any supported client.
			return ErrUndecodable
		}
		data = data[n:]
	}
	return nil
}
