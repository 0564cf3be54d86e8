// Package capability probes the host for the information a relaycc worker
// registers with its producer: the version string of the toolchain it
// serves and the process architecture it runs on (spec §4.A
// RegisterCompilerService.version/procarch). It replaces the teacher's
// broader multi-toolchain (Go/Node/Flutter/Docker/memory) capability
// survey, which has no equivalent in relaycc's single-toolchain worker
// model.
package capability

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/relaycc/relaycc/internal/pb"
)

// DetectVersion runs the toolchain's own version flag and returns its
// first output line, trimmed. It reports ok=false if the toolchain isn't
// on PATH or refuses to run. The worker calls it only when no
// --compiler-version was passed, and registers with an empty version when
// it reports ok=false.
func DetectVersion(lang pb.Language) (version string, ok bool) {
	var cmd *exec.Cmd
	switch lang {
	case pb.LanguageC:
		cmd = exec.Command("gcc", "--version")
	case pb.LanguageCPP:
		cmd = exec.Command("g++", "--version")
	case pb.LanguageRust:
		cmd = exec.Command("rustc", "--version")
	default:
		return "", false
	}

	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	line := strings.SplitN(string(out), "\n", 2)[0]
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	return line, true
}

// DetectProcarch returns the "os/arch" string a worker reports at
// registration, e.g. "linux/amd64".
func DetectProcarch() string {
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}
