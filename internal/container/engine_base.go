// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ExecCommandFunc is the function signature for creating exec.Cmd.
// It allows injection of mock implementations for testing.
type ExecCommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// BaseCLIEngine implements the CLI plumbing shared by Docker and Podman:
// argument construction, command creation, and result mapping. The concrete
// engines embed it and keep only their naming and availability probes.
type BaseCLIEngine struct {
	binaryPath  string
	execCommand ExecCommandFunc
}

// BaseCLIEngineOption customizes a BaseCLIEngine.
type BaseCLIEngineOption func(*BaseCLIEngine)

// WithExecCommand sets a custom exec.Cmd factory. Used by tests to intercept
// engine invocations.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.execCommand = fn }
}

// NewBaseCLIEngine creates a base engine around the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the engine binary path ("" when not found).
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// CreateCommand creates an exec.Cmd for the engine binary with the given args.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandWithOutput runs an engine command and returns its combined stdout.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	out, err := e.CreateCommand(ctx, args...).Output()
	return string(out), err
}

// RunCommandStatus runs an engine command and returns only its error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	return e.CreateCommand(ctx, args...).Run()
}

// RunArgs constructs the argument vector for a container run invocation.
// Env vars are emitted in sorted key order so the produced command line is
// deterministic and testable.
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	if opts.Stdin != nil {
		args = append(args, "-i")
	}

	// nil means "leave the image entrypoint alone"; a non-nil empty slice
	// clears it so the command vector controls execution.
	if opts.Entrypoint != nil {
		if len(opts.Entrypoint) == 0 {
			args = append(args, "--entrypoint", "")
		} else {
			args = append(args, "--entrypoint", opts.Entrypoint[0])
		}
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	for _, volume := range opts.Volumes {
		args = append(args, "-v", volume)
	}

	args = append(args, opts.Image)

	// Remaining entrypoint elements become the head of the command vector,
	// matching how the engines treat multi-element entrypoints.
	if len(opts.Entrypoint) > 1 {
		args = append(args, opts.Entrypoint[1:]...)
	}
	args = append(args, opts.Command...)

	return args
}

// Run executes a container and maps the process status into a RunResult.
// A non-zero exit of the containerized command is reported through
// RunResult.ExitCode, not through the error return.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	err := cmd.Run()

	result := &RunResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = err
		}
	}

	return result, nil
}

// ImageExists checks whether an image is present locally.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "inspect", image)
	return err == nil, nil
}

// Pull pulls an image from its registry.
func (e *BaseCLIEngine) Pull(ctx context.Context, image string) error {
	if err := e.RunCommandStatus(ctx, "pull", image); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	return nil
}

// versionOutput normalizes a version probe's output.
func versionOutput(out string, err error, engine string) (string, error) {
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", engine, err)
	}
	return strings.TrimSpace(out), nil
}
