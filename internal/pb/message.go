// Package pb implements the relaycc wire messages by hand against the
// protobuf wire format, field-number-compatible with pb_compiler.proto:
//
//	enum Language { C = 0; CPP = 1; PYTHON = 2; RUST = 3; }
//	RegisterCompilerService { Language lang; string version; string procarch; }
//	CompileRequest          { string code; }
//	CompileResult           { bool success; bytes output; }
//
// There is no generated code here — no .proto compiler ran over this tree —
// the three message types below encode and decode themselves directly
// against google.golang.org/protobuf/encoding/protowire, the same
// low-level varint/tag primitives protoc-gen-go builds its output on top
// of. Encode/decode is pure: no I/O, no allocation beyond the returned
// buffer.
package pb

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedMessage is returned for truncated frames, unknown required
// fields, or invalid UTF-8 in a string field.
var ErrMalformedMessage = errors.New("pb: malformed message")

// Language is the closed set of toolchains relaycc knows how to invoke.
// It matches the wire enum's numbering exactly so RegisterCompilerService
// round-trips unchanged through producers of any version.
type Language int32

const (
	LanguageC      Language = 0
	LanguageCPP    Language = 1
	LanguagePython Language = 2 // reserved: no driver, see compiler package
	LanguageRust   Language = 3

	// LanguageNone is a sentinel for uninitialized values; it is never
	// sent on the wire.
	LanguageNone Language = -1
)

func (l Language) String() string {
	switch l {
	case LanguageC:
		return "C"
	case LanguageCPP:
		return "CPP"
	case LanguagePython:
		return "PYTHON"
	case LanguageRust:
		return "RUST"
	case LanguageNone:
		return "NONE"
	default:
		return fmt.Sprintf("Language(%d)", int32(l))
	}
}

// ParseLanguage maps a CLI-friendly language name (case-insensitive) to
// its wire enum value, for the relaycc worker and CLI entrypoints that
// take --lang as a string flag.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(s) {
	case "c":
		return LanguageC, nil
	case "cpp", "c++", "cxx":
		return LanguageCPP, nil
	case "rust", "rs":
		return LanguageRust, nil
	default:
		return LanguageNone, fmt.Errorf("unknown language %q", s)
	}
}

// RegisterCompilerService is the handshake a worker sends once, immediately
// after connecting, before it reads any compile requests.
type RegisterCompilerService struct {
	Lang     Language
	Version  string
	Procarch string
}

const (
	fieldRegisterLang     protowire.Number = 1
	fieldRegisterVersion  protowire.Number = 2
	fieldRegisterProcarch protowire.Number = 3
)

// Marshal encodes the registration to its wire form.
func (r *RegisterCompilerService) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRegisterLang, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(int32(r.Lang))))
	if r.Version != "" {
		b = protowire.AppendTag(b, fieldRegisterVersion, protowire.BytesType)
		b = protowire.AppendString(b, r.Version)
	}
	if r.Procarch != "" {
		b = protowire.AppendTag(b, fieldRegisterProcarch, protowire.BytesType)
		b = protowire.AppendString(b, r.Procarch)
	}
	return b
}

// UnmarshalRegisterCompilerService decodes a registration frame.
func UnmarshalRegisterCompilerService(b []byte) (*RegisterCompilerService, error) {
	r := &RegisterCompilerService{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldRegisterLang:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad lang: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			r.Lang = Language(int32(v))
			b = b[n:]
		case fieldRegisterVersion:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad version: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			if !utf8.ValidString(s) {
				return nil, fmt.Errorf("%w: version is not valid UTF-8", ErrMalformedMessage)
			}
			r.Version = s
			b = b[n:]
		case fieldRegisterProcarch:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad procarch: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			if !utf8.ValidString(s) {
				return nil, fmt.Errorf("%w: procarch is not valid UTF-8", ErrMalformedMessage)
			}
			r.Procarch = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad unknown field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

// CompileRequest carries the source text to compile. There is no size
// limit on the wire; compiler.MaxSourceBytes enforces one in the driver.
type CompileRequest struct {
	Code string
}

const fieldRequestCode protowire.Number = 1

// Marshal encodes the request to its wire form.
func (r *CompileRequest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRequestCode, protowire.BytesType)
	b = protowire.AppendString(b, r.Code)
	return b
}

// UnmarshalCompileRequest decodes a compile request frame.
func UnmarshalCompileRequest(b []byte) (*CompileRequest, error) {
	r := &CompileRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldRequestCode:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad code: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			if !utf8.ValidString(s) {
				return nil, fmt.Errorf("%w: code is not valid UTF-8", ErrMalformedMessage)
			}
			r.Code = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad unknown field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

// CompileResult reports the outcome of one compile. Output carries
// diagnostics on failure; it is absent or empty on success.
type CompileResult struct {
	Success bool
	Output  []byte
}

const (
	fieldResultSuccess protowire.Number = 1
	fieldResultOutput  protowire.Number = 2
)

// Marshal encodes the result to its wire form.
func (r *CompileResult) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldResultSuccess, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(r.Success))
	if len(r.Output) > 0 {
		b = protowire.AppendTag(b, fieldResultOutput, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Output)
	}
	return b
}

// UnmarshalCompileResult decodes a compile result frame.
func UnmarshalCompileResult(b []byte) (*CompileResult, error) {
	r := &CompileResult{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldResultSuccess:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad success: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			r.Success = protowire.DecodeBool(v)
			b = b[n:]
		case fieldResultOutput:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad output: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			r.Output = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad unknown field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}
