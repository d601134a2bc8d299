// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualRunner executes the script with the mvdan/sh interpreter instead of
// spawning a shell binary. It behaves like ProcessRunner (host environment
// inherited, spec environment on top) but works on systems without /bin/sh.
type VirtualRunner struct {
	// Environ returns the host environment. When nil, os.Environ() is used.
	Environ func() []string
}

// NewVirtualRunner creates a new virtual runner.
func NewVirtualRunner() *VirtualRunner {
	return &VirtualRunner{}
}

// Name returns the runner name.
func (r *VirtualRunner) Name() string {
	return string(KindVirtual)
}

// Available reports true: the interpreter is built in.
func (r *VirtualRunner) Available() bool {
	return true
}

// Run interprets the spec's script in a working directory with the spec's
// files staged, with the same capture and collection semantics as the other
// runners.
func (r *VirtualRunner) Run(ctx context.Context, spec *RunSpec) (*Result, error) {
	script := spec.Script()
	if script == "" {
		return nil, &ExecutionError{ExitCode: 1, Cause: errors.New("empty command vector")}
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "task")
	if err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: fmt.Errorf("failed to parse script: %w", err)}
	}

	workDir, cleanup, err := spec.ensureWorkDir()
	if err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: err}
	}
	defer cleanup()

	if err := stageFiles(workDir, spec); err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: err}
	}

	environ := os.Environ
	if r.Environ != nil {
		environ = r.Environ
	}
	env := append(environ(), EnvToSlice(spec.Env)...)

	var stdout bytes.Buffer
	shell, err := interp.New(
		interp.Dir(workDir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(spec.Stdin, captureWriter(&stdout, spec.Stdout), spec.Stderr),
	)
	if err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: fmt.Errorf("failed to create interpreter: %w", err)}
	}

	exitCode := 0
	if err := shell.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if !errors.As(err, &exitStatus) {
			return nil, &ExecutionError{ExitCode: 1, Cause: fmt.Errorf("script execution failed: %w", err)}
		}
		exitCode = int(exitStatus)
	}

	return buildResult(exitCode, &stdout, workDir, spec)
}
