// SPDX-License-Identifier: MPL-2.0

// Package runner provides the task runner contract and implementations.
//
// A Runner takes a fully prepared RunSpec (shell invocation vector,
// environment, file staging instructions) and executes it in its own
// environment: a container, a host process, or the in-process virtual shell.
// Runners own everything the execution adapter does not: staging input and
// namespace files, merging the host environment where that applies, capturing
// stdout, parsing output-variable markers, and collecting declared output
// files.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// Runner kind constants for the provided implementations.
const (
	KindContainer Kind = "container"
	KindProcess   Kind = "process"
	KindVirtual   Kind = "virtual"
)

// ErrExecutionFailed is the sentinel error wrapped by ExecutionError.
var ErrExecutionFailed = errors.New("task execution failed")

type (
	// Kind identifies a runner implementation.
	Kind string

	// RunSpec contains everything a runner needs for one invocation. It is
	// constructed fresh per invocation and never reused.
	RunSpec struct {
		// Commands is the shell invocation vector (e.g. ["/bin/sh", "-c", script]).
		Commands []string

		// Env is the task environment mapping. Container runners pass it as
		// the complete environment; process-based runners append it to the
		// host environment.
		Env map[string]string

		// WorkDir is the host working directory. When empty, the runner
		// creates a per-invocation temporary directory and removes it after
		// the run.
		WorkDir string

		// InputFiles maps relative paths to content materialized into the
		// working directory before execution.
		InputFiles map[string]string

		// Namespace declares namespace files to copy into the working
		// directory before execution. nil means none.
		Namespace *NamespaceSpec

		// OutputFiles declares files (or globs, relative to the working
		// directory) collected after the run. Empty means nothing is staged
		// back.
		OutputFiles []string

		// OutputDir pins the directory collected output files are staged
		// into. When empty, a temporary directory is created and reported
		// through Result.OutputDir.
		OutputDir string

		// Image is the container image. Only used by container runners.
		Image string

		// Entrypoint overrides the container entrypoint. nil means unset;
		// an empty non-nil slice clears the image entrypoint.
		Entrypoint []string

		// User is the container user. Only used by container runners.
		User string

		// Volumes are extra container volume mounts. Only used by container
		// runners.
		Volumes []string

		// Stdin is the standard input, usually nil for task invocations.
		Stdin io.Reader

		// Stdout, when set, receives a copy of the command's standard
		// output in addition to marker capture.
		Stdout io.Writer

		// Stderr, when set, receives the command's standard error.
		Stderr io.Writer
	}

	// NamespaceSpec declares which files from a host-provided namespace
	// directory are staged into the working directory.
	NamespaceSpec struct {
		// Root is the host directory namespace files come from.
		Root string
		// Include filters files by glob pattern. Empty means all.
		Include []string
		// Exclude removes matching files after Include is applied.
		Exclude []string
	}

	// Result is the outcome of one invocation. Created fresh per run,
	// consumed once by the caller, never persisted.
	Result struct {
		// ExitCode is the exit code of the shell invocation.
		ExitCode int
		// Vars holds output variables captured from stdout markers.
		Vars map[string]string
		// OutputFiles maps collected declared output files (relative to the
		// working directory) to their staged host paths.
		OutputFiles map[string]string

		// OutputDir is the directory holding the staged copies in
		// OutputFiles. The caller owns it and removes it when the files are
		// no longer needed, unless it pinned RunSpec.OutputDir. Empty when
		// nothing was collected.
		OutputDir string
	}

	// Runner executes a prepared RunSpec in its environment.
	Runner interface {
		// Name returns the runner name.
		Name() string
		// Available reports whether this runner can execute on this system.
		Available() bool
		// Run executes the spec. A non-zero exit of the task commands is
		// reported through Result.ExitCode; the error return is reserved
		// for runner-level failures.
		Run(ctx context.Context, spec *RunSpec) (*Result, error)
	}

	// ExecutionError reports a runner-level failure. It carries the exit
	// code and any output variables captured before the failure.
	ExecutionError struct {
		// ExitCode is the exit code at the point of failure (conventionally
		// 1 for failures before the command ran).
		ExitCode int
		// Vars holds any partially captured output variables.
		Vars map[string]string
		// Cause is the underlying failure.
		Cause error
	}

	// Registry holds the available runners keyed by kind.
	Registry struct {
		runners map[Kind]Runner
	}
)

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task execution failed (exit code %d): %v", e.ExitCode, e.Cause)
	}
	return fmt.Sprintf("task execution failed (exit code %d)", e.ExitCode)
}

// Unwrap returns the cause chained behind ErrExecutionFailed.
func (e *ExecutionError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrExecutionFailed
}

// Is reports true for ErrExecutionFailed so errors.Is works with either the
// sentinel or the cause.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

// Script returns the script argument of the shell invocation vector, i.e.
// the last element of Commands. The virtual runner interprets this directly
// instead of spawning a shell binary.
func (s *RunSpec) Script() string {
	if len(s.Commands) == 0 {
		return ""
	}
	return s.Commands[len(s.Commands)-1]
}

// EnvToSlice converts an environment map to sorted "KEY=VALUE" form.
func EnvToSlice(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// NewRegistry creates a registry with the given runners registered.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[Kind]Runner)}
}

// Register adds a runner to the registry.
func (r *Registry) Register(kind Kind, rn Runner) {
	r.runners[kind] = rn
}

// Get returns a runner by kind.
func (r *Registry) Get(kind Kind) (Runner, error) {
	rn, ok := r.runners[kind]
	if !ok {
		return nil, fmt.Errorf("runner '%s' not registered", kind)
	}
	return rn, nil
}

// Available returns the kinds of all runners usable on this system.
func (r *Registry) Available() []Kind {
	var kinds []Kind
	for kind, rn := range r.runners {
		if rn.Available() {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ensureWorkDir returns the working directory for this invocation, creating
// a temporary one (plus its cleanup) when the spec does not pin one.
func (s *RunSpec) ensureWorkDir() (string, func(), error) {
	if s.WorkDir != "" {
		if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create working directory: %w", err)
		}
		return s.WorkDir, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "dataform-task-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
