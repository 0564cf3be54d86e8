// Package transport realizes the spec's asymmetric router/initiator
// sockets as one bidirectional gRPC stream per worker
// (CompilerService.Connect), opened by the worker. There is no
// protoc-generated package backing this service — gen/go/relaycc/v1 was
// never produced — so the service stub, stream wrappers, and wire codec
// below are hand-written in exactly the shape protoc-gen-go-grpc would
// emit, carrying internal/pb's hand-written messages instead of
// proto.Message values.
package transport

import (
	"errors"
	"fmt"

	"github.com/relaycc/relaycc/internal/pb"
)

// FrameKind discriminates which of the three message schemas a Frame
// carries. The stream is bidirectional but each direction only ever
// carries one kind in practice: workers send exactly one FrameRegister
// followed by any number of FrameResult; producers send only
// FrameRequest. The discriminator exists so one Go type can flow through
// both grpc.ClientStream.SendMsg/RecvMsg and grpc.ServerStream's.
type FrameKind byte

const (
	FrameRegister FrameKind = 1
	FrameRequest  FrameKind = 2
	FrameResult   FrameKind = 3
)

// ErrUnknownFrameKind is returned when a frame's leading kind byte does
// not match any of the three known message schemas.
var ErrUnknownFrameKind = errors.New("transport: unknown frame kind")

// Frame is the envelope carried over the Connect stream. Exactly one of
// Register, Request, or Result is populated, matching Kind.
type Frame struct {
	Kind     FrameKind
	Register *pb.RegisterCompilerService
	Request  *pb.CompileRequest
	Result   *pb.CompileResult

	// Err is set when the frame's kind byte was recognized but the inner
	// message failed to decode (truncation, invalid UTF-8). The
	// corresponding message pointer above is left nil.
	Err error
}

// Marshal encodes the frame as a one-byte kind prefix followed by the
// inner message's own wire encoding. gRPC supplies its own length framing
// around this, so no further length prefix is needed here.
func (f *Frame) Marshal() ([]byte, error) {
	var payload []byte
	switch f.Kind {
	case FrameRegister:
		if f.Register == nil {
			return nil, fmt.Errorf("transport: FrameRegister with nil Register")
		}
		payload = f.Register.Marshal()
	case FrameRequest:
		if f.Request == nil {
			return nil, fmt.Errorf("transport: FrameRequest with nil Request")
		}
		payload = f.Request.Marshal()
	case FrameResult:
		if f.Result == nil {
			return nil, fmt.Errorf("transport: FrameResult with nil Result")
		}
		payload = f.Result.Marshal()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrameKind, f.Kind)
	}

	b := make([]byte, 0, len(payload)+1)
	b = append(b, byte(f.Kind))
	b = append(b, payload...)
	return b, nil
}

// Unmarshal decodes a frame previously produced by Marshal.
func (f *Frame) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("%w: empty frame", pb.ErrMalformedMessage)
	}
	kind := FrameKind(b[0])
	payload := b[1:]

	// A decode failure on the inner message is recorded on the frame
	// rather than returned, once the frame's kind itself is known: the
	// worker must still respond in the slot a malformed CompileRequest
	// occupied to preserve positional correlation (spec §4.C), which is
	// only possible if Recv() hands the caller a frame to react to
	// instead of killing the stream.
	switch kind {
	case FrameRegister:
		msg, err := pb.UnmarshalRegisterCompilerService(payload)
		f.Kind = kind
		f.Register = msg
		f.Err = err
	case FrameRequest:
		msg, err := pb.UnmarshalCompileRequest(payload)
		f.Kind = kind
		f.Request = msg
		f.Err = err
	case FrameResult:
		msg, err := pb.UnmarshalCompileResult(payload)
		f.Kind = kind
		f.Result = msg
		f.Err = err
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFrameKind, kind)
	}
	return nil
}

// RegisterFrame wraps a registration message for sending.
func RegisterFrame(msg *pb.RegisterCompilerService) *Frame {
	return &Frame{Kind: FrameRegister, Register: msg}
}

// RequestFrame wraps a compile request for sending.
func RequestFrame(msg *pb.CompileRequest) *Frame {
	return &Frame{Kind: FrameRequest, Request: msg}
}

// ResultFrame wraps a compile result for sending.
func ResultFrame(msg *pb.CompileResult) *Frame {
	return &Frame{Kind: FrameResult, Result: msg}
}
