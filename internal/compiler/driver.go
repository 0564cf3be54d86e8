// Package compiler drives a single invocation of an installed toolchain:
// write the submitted source to a fresh temp directory, run
// `<toolchain> <source> -o <output>`, capture stdout/stderr merged as the
// result's output, and remove the temp directory on every exit path.
//
// Grounded in the teacher's internal/worker/executor.NativeExecutor, with
// the cross-compile/MSVC/docker paths dropped — relaycc workers compile
// natively only, keyed off a fixed table rather than arch-matched
// executor selection.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/relaycc/relaycc/internal/pb"
)

// ErrUnsupportedLanguage is returned for a Language with no Driver table
// entry (PYTHON) or the NONE sentinel — never a panic.
var ErrUnsupportedLanguage = errors.New("compiler: unsupported language")

// ErrSourceTooLarge is returned when the submitted code exceeds
// MaxSourceBytes.
var ErrSourceTooLarge = errors.New("compiler: source exceeds maximum size")

// ErrInvalidSource is returned when the submitted code contains a NUL
// byte, which is not valid input to any supported toolchain.
var ErrInvalidSource = errors.New("compiler: source contains a NUL byte")

// MaxSourceBytes bounds the size of a single CompileRequest's code field.
// The wire codec itself carries no limit; this is the driver's own
// defense, narrowed from the teacher's request-size validation.
const MaxSourceBytes = 2 << 20 // 2 MiB

// toolchain describes how to invoke one compiler for one language.
type toolchain struct {
	command    string
	srcSuffix  string
	outputName string
}

var toolchains = map[pb.Language]toolchain{
	pb.LanguageC:    {command: "gcc", srcSuffix: ".c", outputName: "b.out"},
	pb.LanguageCPP:  {command: "g++", srcSuffix: ".cpp", outputName: "b.out"},
	pb.LanguageRust: {command: "rustc", srcSuffix: ".rs", outputName: "out"},
}

// Result is the outcome of one Compile call, ready to become a
// pb.CompileResult.
type Result struct {
	Success  bool
	Output   []byte
	Duration time.Duration
}

// Compile writes code to a fresh temp directory, invokes the toolchain
// for lang, and returns its outcome. It is safe to call concurrently;
// each call gets its own temp directory, removed before Compile returns.
func Compile(ctx context.Context, lang pb.Language, code string) (*Result, error) {
	if lang == pb.LanguageNone {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	tc, ok := toolchains[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	if len(code) > MaxSourceBytes {
		return nil, ErrSourceTooLarge
	}
	for i := 0; i < len(code); i++ {
		if code[i] == 0 {
			return nil, ErrInvalidSource
		}
	}

	workDir, err := os.MkdirTemp("", "relaycc-worker-")
	if err != nil {
		return nil, fmt.Errorf("compiler: create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcFile := filepath.Join(workDir, "source"+tc.srcSuffix)
	if err := os.WriteFile(srcFile, []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("compiler: write source: %w", err)
	}
	outFile := filepath.Join(workDir, tc.outputName)

	cmd := exec.CommandContext(ctx, tc.command, srcFile, "-o", outFile)
	cmd.Dir = workDir

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		combined.WriteString("\ncompile timed out")
		return &Result{Success: false, Output: combined.Bytes(), Duration: elapsed}, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("compiler: run %s: %w", tc.command, runErr)
		}
		return &Result{Success: false, Output: combined.Bytes(), Duration: elapsed}, nil
	}

	return &Result{Success: true, Output: combined.Bytes(), Duration: elapsed}, nil
}
