package pb

import (
	"bytes"
	"errors"
	"testing"
)

func TestRegisterCompilerServiceRoundTrip(t *testing.T) {
	cases := []*RegisterCompilerService{
		{Lang: LanguageC, Version: "13.2.0", Procarch: "x86_64"},
		{Lang: LanguageCPP, Version: "", Procarch: ""},
		{Lang: LanguageRust, Version: "1.78.0", Procarch: "aarch64"},
	}
	for _, want := range cases {
		got, err := UnmarshalRegisterCompilerService(want.Marshal())
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if *got != *want {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestCompileRequestRoundTrip(t *testing.T) {
	want := &CompileRequest{Code: "int main(void) { return 0; }\n"}
	got, err := UnmarshalCompileRequest(want.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Code != want.Code {
		t.Errorf("got %q, want %q", got.Code, want.Code)
	}
}

func TestCompileRequestEmptyCode(t *testing.T) {
	want := &CompileRequest{Code: ""}
	got, err := UnmarshalCompileRequest(want.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Code != "" {
		t.Errorf("got %q, want empty", got.Code)
	}
}

func TestCompileResultRoundTrip(t *testing.T) {
	cases := []*CompileResult{
		{Success: true, Output: nil},
		{Success: false, Output: []byte("error: undefined reference to `foo'\n")},
	}
	for _, want := range cases {
		got, err := UnmarshalCompileResult(want.Marshal())
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Success != want.Success {
			t.Errorf("success: got %v, want %v", got.Success, want.Success)
		}
		if !bytes.Equal(got.Output, want.Output) {
			t.Errorf("output: got %q, want %q", got.Output, want.Output)
		}
	}
}

func TestUnmarshalTruncatedIsMalformed(t *testing.T) {
	full := (&RegisterCompilerService{Lang: LanguageC, Version: "1.0", Procarch: "x86_64"}).Marshal()
	for n := 0; n < len(full); n++ {
		_, err := UnmarshalRegisterCompilerService(full[:n])
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("truncation at %d: got %v, want ErrMalformedMessage", n, err)
		}
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	// Put a bytes-typed field number 99 before the known code field;
	// decode must skip it rather than fail.
	req := &CompileRequest{Code: "x"}
	// Tag (99<<3)|2 = 794 is the varint 0x9a 0x06, then length 1 and 'z'.
	unknown := []byte{0x9a, 0x06, 0x01, 'z'}
	b := append(unknown, req.Marshal()...)
	got, err := UnmarshalCompileRequest(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Code != "x" {
		t.Errorf("got %q, want %q", got.Code, "x")
	}
}

func TestUnmarshalInvalidUTF8(t *testing.T) {
	req := &CompileRequest{Code: "valid"}
	b := req.Marshal()
	// Corrupt the string bytes in place to break UTF-8 validity while
	// keeping the same length so the varint length prefix stays correct.
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == 'v' {
			b[i] = 0xff
			break
		}
	}
	_, err := UnmarshalCompileRequest(b)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("got %v, want ErrMalformedMessage", err)
	}
}

func TestLanguageString(t *testing.T) {
	cases := map[Language]string{
		LanguageC:      "C",
		LanguageCPP:    "CPP",
		LanguagePython: "PYTHON",
		LanguageRust:   "RUST",
		LanguageNone:   "NONE",
	}
	for lang, want := range cases {
		if got := lang.String(); got != want {
			t.Errorf("Language(%d).String() = %q, want %q", lang, got, want)
		}
	}
}
