package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/dreamware/vindex/internal/transport/vindexpb"
)

// codecName is the content-subtype grpc negotiates on every call this
// package makes; registering it at init time means both client and server
// agree on gob framing for vindexpb.Envelope without a protoc-generated
// codec.
const codecName = "vindexgob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Name() string { return codecName }

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	env, ok := v.(*vindexpb.Envelope)
	if !ok {
		return nil, fmt.Errorf("transport: codec got %T, want *vindexpb.Envelope", v)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("transport: marshal envelope: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	env, ok := v.(*vindexpb.Envelope)
	if !ok {
		return fmt.Errorf("transport: codec got %T, want *vindexpb.Envelope", v)
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(env)
}

// EncodePayload gob-encodes an arbitrary typed RPC payload (a
// vindexpb.PingRequest, vindexpb.ReplicateWriteRequest, ...) for embedding
// in an Envelope's Payload field.
func EncodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("transport: encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePayload decodes bytes produced by EncodePayload into v.
func DecodePayload(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
