package capability

import (
	"runtime"
	"strings"
	"testing"

	"github.com/relaycc/relaycc/internal/pb"
)

func TestDetectVersionUnknownLanguage(t *testing.T) {
	if _, ok := DetectVersion(pb.LanguageNone); ok {
		t.Error("expected ok=false for LanguageNone")
	}
	if _, ok := DetectVersion(pb.LanguagePython); ok {
		t.Error("expected ok=false for a language with no driver")
	}
}

func TestDetectVersionKnownLanguages(t *testing.T) {
	// Only asserts shape, since the toolchains may not be installed in the
	// environment running this test.
	for _, lang := range []pb.Language{pb.LanguageC, pb.LanguageCPP, pb.LanguageRust} {
		version, ok := DetectVersion(lang)
		if ok && strings.TrimSpace(version) == "" {
			t.Errorf("DetectVersion(%s) reported ok but returned empty version", lang)
		}
	}
}

func TestDetectProcarch(t *testing.T) {
	got := DetectProcarch()
	want := runtime.GOOS + "/" + runtime.GOARCH
	if got != want {
		t.Errorf("DetectProcarch() = %q, want %q", got, want)
	}
}
