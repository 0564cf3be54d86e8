package transport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype this codec registers under
// ("application/grpc+relaycc-frame" on the wire). Clients select it with
// grpc.CallContentSubtype(codecName); the server then picks the matching
// encoding.Codec automatically from the request's content-type, the same
// mechanism protoc-generated codecs rely on when content-subtype isn't
// "proto".
const codecName = "relaycc-frame"

// wireMessage is satisfied by Frame and by the client-API messages in
// internal/pb's clientapi.go, letting one codec serve both the Connect
// stream and the unary client API without a type switch per message kind.
// The message.go types are not wireMessages; they travel inside a Frame.
type wireMessage interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// frameCodec implements encoding.Codec for any wireMessage without
// requiring it to satisfy proto.Message's reflection interface.
type frameCodec struct{}

func (frameCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("transport: codec cannot marshal %T", v)
	}
	return m.Marshal()
}

func (frameCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("transport: codec cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (frameCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(frameCodec{})
}

// CodecName returns the registered content-subtype name, for callers that
// need to pass it to grpc.CallContentSubtype explicitly.
func CodecName() string {
	return codecName
}
