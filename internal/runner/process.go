// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ProcessRunner executes the shell invocation as a host process.
// The host environment is inherited; the spec environment is appended on top
// so task variables win on collision.
type ProcessRunner struct {
	// Environ returns the host environment. When nil, os.Environ() is used.
	// Tests inject a fixed environment here.
	Environ func() []string
}

// NewProcessRunner creates a new process runner.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{}
}

// Name returns the runner name.
func (r *ProcessRunner) Name() string {
	return string(KindProcess)
}

// Available reports whether the shell binary of the invocation vector exists.
func (r *ProcessRunner) Available() bool {
	_, err := exec.LookPath("/bin/sh")
	return err == nil
}

// Run executes the invocation vector in a working directory with the spec's
// files staged, captures stdout for output markers, and collects declared
// output files.
func (r *ProcessRunner) Run(ctx context.Context, spec *RunSpec) (*Result, error) {
	if len(spec.Commands) == 0 {
		return nil, &ExecutionError{ExitCode: 1, Cause: errors.New("empty command vector")}
	}

	workDir, cleanup, err := spec.ensureWorkDir()
	if err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: err}
	}
	defer cleanup()

	if err := stageFiles(workDir, spec); err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: err}
	}

	cmd := exec.CommandContext(ctx, spec.Commands[0], spec.Commands[1:]...)
	cmd.Dir = workDir

	environ := os.Environ
	if r.Environ != nil {
		environ = r.Environ
	}
	cmd.Env = append(environ(), EnvToSlice(spec.Env)...)

	var stdout bytes.Buffer
	cmd.Stdout = captureWriter(&stdout, spec.Stdout)
	cmd.Stderr = spec.Stderr
	cmd.Stdin = spec.Stdin

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &ExecutionError{ExitCode: 1, Cause: fmt.Errorf("failed to start command: %w", err)}
		}
		exitCode = exitErr.ExitCode()
	}

	return buildResult(exitCode, &stdout, workDir, spec)
}

// captureWriter tees command stdout into the capture buffer and, when the
// caller asked for pass-through, the spec's stdout writer.
func captureWriter(buf *bytes.Buffer, passthrough io.Writer) io.Writer {
	if passthrough == nil {
		return buf
	}
	return io.MultiWriter(buf, passthrough)
}

// buildResult turns a finished run into a Result: parse captured markers,
// collect declared output files. Collection failures are runner-level errors
// that still carry the vars captured so far.
func buildResult(exitCode int, stdout *bytes.Buffer, workDir string, spec *RunSpec) (*Result, error) {
	vars, err := ParseOutputVars(stdout)
	if err != nil {
		return nil, &ExecutionError{ExitCode: exitCode, Vars: vars, Cause: err}
	}

	outputs, outputDir, err := collectOutputFiles(workDir, spec.OutputFiles, spec.OutputDir)
	if err != nil {
		return nil, &ExecutionError{ExitCode: exitCode, Vars: vars, Cause: err}
	}

	return &Result{ExitCode: exitCode, Vars: vars, OutputFiles: outputs, OutputDir: outputDir}, nil
}
