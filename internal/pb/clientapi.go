package pb

import (
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// The messages below back the client-facing unary RPCs (spec §4.E):
// Dispatch, AwaitWorker, NextResult. They follow the same hand-written
// protowire encoding as message.go, but expose Marshal/Unmarshal as
// methods (rather than message.go's package-level Unmarshal* functions)
// so transport's single generic wire codec can handle every message type
// in this package uniformly.

// Empty carries no fields; it acks an RPC that returns nothing of its
// own, the same role google.protobuf.Empty plays in generated code.
type Empty struct{}

func (e *Empty) Marshal() ([]byte, error) { return nil, nil }
func (e *Empty) Unmarshal(b []byte) error { return nil }

// DispatchRequest asks the producer to compile code for lang.
type DispatchRequest struct {
	Lang Language
	Code string
}

const (
	fieldDispatchReqLang protowire.Number = 1
	fieldDispatchReqCode protowire.Number = 2
)

func (r *DispatchRequest) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldDispatchReqLang, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(int32(r.Lang))))
	b = protowire.AppendTag(b, fieldDispatchReqCode, protowire.BytesType)
	b = protowire.AppendString(b, r.Code)
	return b, nil
}

func (r *DispatchRequest) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrMalformedMessage
		}
		b = b[n:]
		switch num {
		case fieldDispatchReqLang:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ErrMalformedMessage
			}
			r.Lang = Language(int32(v))
			b = b[n:]
		case fieldDispatchReqCode:
			s, n := protowire.ConsumeString(b)
			if n < 0 || !utf8.ValidString(s) {
				return ErrMalformedMessage
			}
			r.Code = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ErrMalformedMessage
			}
			b = b[n:]
		}
	}
	return nil
}

// DispatchResponse carries the token a subsequent NextResult call will
// eventually resolve. Scheduling failures (no workers, wrong language)
// are reported as gRPC status errors, not as fields on this message.
type DispatchResponse struct {
	Token string
}

const fieldDispatchRespToken protowire.Number = 1

func (r *DispatchResponse) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldDispatchRespToken, protowire.BytesType)
	b = protowire.AppendString(b, r.Token)
	return b, nil
}

func (r *DispatchResponse) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrMalformedMessage
		}
		b = b[n:]
		switch num {
		case fieldDispatchRespToken:
			s, n := protowire.ConsumeString(b)
			if n < 0 || !utf8.ValidString(s) {
				return ErrMalformedMessage
			}
			r.Token = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ErrMalformedMessage
			}
			b = b[n:]
		}
	}
	return nil
}

// AwaitWorkerRequest names the language to block on.
type AwaitWorkerRequest struct {
	Lang Language
}

const fieldAwaitReqLang protowire.Number = 1

func (r *AwaitWorkerRequest) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldAwaitReqLang, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(int32(r.Lang))))
	return b, nil
}

func (r *AwaitWorkerRequest) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrMalformedMessage
		}
		b = b[n:]
		switch num {
		case fieldAwaitReqLang:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ErrMalformedMessage
			}
			r.Lang = Language(int32(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ErrMalformedMessage
			}
			b = b[n:]
		}
	}
	return nil
}

// NextResultResponse carries one resolved dispatch.
type NextResultResponse struct {
	Token   string
	Success bool
	Output  []byte
}

const (
	fieldNextResultToken   protowire.Number = 1
	fieldNextResultSuccess protowire.Number = 2
	fieldNextResultOutput  protowire.Number = 3
)

func (r *NextResultResponse) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldNextResultToken, protowire.BytesType)
	b = protowire.AppendString(b, r.Token)
	b = protowire.AppendTag(b, fieldNextResultSuccess, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(r.Success))
	if len(r.Output) > 0 {
		b = protowire.AppendTag(b, fieldNextResultOutput, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Output)
	}
	return b, nil
}

func (r *NextResultResponse) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrMalformedMessage
		}
		b = b[n:]
		switch num {
		case fieldNextResultToken:
			s, n := protowire.ConsumeString(b)
			if n < 0 || !utf8.ValidString(s) {
				return ErrMalformedMessage
			}
			r.Token = s
			b = b[n:]
		case fieldNextResultSuccess:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ErrMalformedMessage
			}
			r.Success = protowire.DecodeBool(v)
			b = b[n:]
		case fieldNextResultOutput:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ErrMalformedMessage
			}
			r.Output = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ErrMalformedMessage
			}
			b = b[n:]
		}
	}
	return nil
}
