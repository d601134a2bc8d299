// SPDX-License-Identifier: MPL-2.0

// Package execute turns a task definition into one runner invocation.
//
// The adapter renders every templated field, resolves the runner spec with
// its default injection, folds the before-commands and main commands into a
// single shell session, and delegates to the selected runner. It holds no
// state between invocations.
package execute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"dataform-task/internal/container"
	"dataform-task/internal/render"
	"dataform-task/internal/runner"
	"dataform-task/pkg/taskfile"
)

// Shell invocation the normalized command list is handed to. Before-commands
// and main commands are joined with newlines into the single -c argument so
// exported variables and directory changes carry across commands.
const (
	shellBinary = "/bin/sh"
	shellFlag   = "-c"
)

// ExecutionResult is what one task invocation produced.
type ExecutionResult struct {
	// ExitCode is the shell session's exit code. Non-zero is a result,
	// not an error.
	ExitCode int

	// Vars holds the variables captured from output markers on stdout.
	Vars map[string]string

	// OutputFiles maps declared output paths to their staged copies.
	// nil when the definition declared none.
	OutputFiles map[string]string

	// OutputDir is the directory the staged copies live in. The caller
	// removes it when done, unless it pinned one with WithOutputDir.
	// Empty when nothing was collected.
	OutputDir string
}

// Adapter mediates between a task definition and the runner that executes it.
type Adapter struct {
	renderer render.Renderer
	runners  *runner.Registry

	namespaceDir string
	workDir      string
	outputDir    string
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithNamespaceDir sets the host directory namespace files are staged from.
func WithNamespaceDir(dir string) Option {
	return func(a *Adapter) { a.namespaceDir = dir }
}

// WithWorkDir pins the working directory instead of using a per-invocation
// temporary directory.
func WithWorkDir(dir string) Option {
	return func(a *Adapter) { a.workDir = dir }
}

// WithOutputDir pins the directory collected output files are staged into.
// Without it a temporary directory is created per invocation and reported
// through ExecutionResult.OutputDir for the caller to remove.
func WithOutputDir(dir string) Option {
	return func(a *Adapter) { a.outputDir = dir }
}

// WithStdio wires the task's standard streams. Stdout is still captured for
// output markers; the writer receives a pass-through copy.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(a *Adapter) {
		a.stdin = stdin
		a.stdout = stdout
		a.stderr = stderr
	}
}

// New creates an Adapter over the given renderer and runner registry.
func New(renderer render.Renderer, runners *runner.Registry, opts ...Option) *Adapter {
	a := &Adapter{renderer: renderer, runners: runners}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultRegistry builds a registry with the built-in runners. The container
// runner is registered only when an engine is reachable; process and virtual
// are always present.
func DefaultRegistry(engineType container.EngineType) *runner.Registry {
	reg := runner.NewRegistry()
	reg.Register(runner.KindProcess, runner.NewProcessRunner())
	reg.Register(runner.KindVirtual, runner.NewVirtualRunner())

	if containerRunner, err := runner.NewContainerRunner(engineType); err == nil {
		reg.Register(runner.KindContainer, containerRunner)
		slog.Debug("container runner registered", "engine", containerRunner.EngineName())
	} else {
		slog.Debug("container runner unavailable", "error", err)
	}
	return reg
}

// Execute runs one task definition to completion.
//
// Rendering is fail-fast: the first unresolved placeholder aborts before
// anything executes. A non-zero task exit code is returned in the result;
// only validation, rendering, and runner-level failures are errors.
func (a *Adapter) Execute(ctx context.Context, def *taskfile.TaskDefinition) (*ExecutionResult, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	rendered, err := a.renderDefinition(def)
	if err != nil {
		return nil, err
	}

	spec := def.ResolveRunner(rendered.image)
	r, err := a.runners.Get(runner.Kind(spec.Kind))
	if err != nil {
		return nil, err
	}

	runSpec := &runner.RunSpec{
		Commands:    shellInvocation(rendered.before, rendered.commands),
		Env:         rendered.env,
		WorkDir:     a.workDir,
		InputFiles:  rendered.inputFiles,
		OutputFiles: rendered.outputFiles,
		OutputDir:   a.outputDir,
		Image:       spec.Image,
		Entrypoint:  spec.Entrypoint,
		User:        spec.User,
		Volumes:     spec.Volumes,
		Stdin:       a.stdin,
		Stdout:      a.stdout,
		Stderr:      a.stderr,
	}
	if def.NamespaceFiles.StagingEnabled() && a.namespaceDir != "" {
		runSpec.Namespace = &runner.NamespaceSpec{
			Root:    a.namespaceDir,
			Include: def.NamespaceFiles.Include,
			Exclude: def.NamespaceFiles.Exclude,
		}
	}

	slog.Debug("executing task",
		"runner", r.Name(), "commands", len(rendered.commands), "beforeCommands", len(rendered.before))

	result, err := r.Run(ctx, runSpec)
	if err != nil {
		return nil, err
	}

	return &ExecutionResult{
		ExitCode:    result.ExitCode,
		Vars:        result.Vars,
		OutputFiles: result.OutputFiles,
		OutputDir:   result.OutputDir,
	}, nil
}

// renderedFields holds every definition field after template resolution.
type renderedFields struct {
	before      []string
	commands    []string
	env         map[string]string
	image       string
	inputFiles  map[string]string
	outputFiles []string
}

func (a *Adapter) renderDefinition(def *taskfile.TaskDefinition) (*renderedFields, error) {
	before, err := render.Slice(a.renderer, def.BeforeCommands)
	if err != nil {
		return nil, fmt.Errorf("rendering before-commands: %w", err)
	}
	commands, err := render.Slice(a.renderer, def.Commands)
	if err != nil {
		return nil, fmt.Errorf("rendering commands: %w", err)
	}
	env, err := render.Map(a.renderer, def.Env)
	if err != nil {
		return nil, fmt.Errorf("rendering env: %w", err)
	}
	image, err := render.String(a.renderer, def.ContainerImage)
	if err != nil {
		return nil, fmt.Errorf("rendering container image: %w", err)
	}
	inputFiles, err := render.Map(a.renderer, def.InputFiles)
	if err != nil {
		return nil, fmt.Errorf("rendering input files: %w", err)
	}
	outputFiles, err := render.Slice(a.renderer, def.OutputFiles)
	if err != nil {
		return nil, fmt.Errorf("rendering output files: %w", err)
	}

	return &renderedFields{
		before:      before,
		commands:    commands,
		env:         env,
		image:       image,
		inputFiles:  inputFiles,
		outputFiles: outputFiles,
	}, nil
}

// shellInvocation folds before-commands and main commands into one
// "/bin/sh -c <script>" vector. Everything runs in a single shell session.
func shellInvocation(before, commands []string) []string {
	script := make([]string, 0, len(before)+len(commands))
	script = append(script, before...)
	script = append(script, commands...)
	return []string{shellBinary, shellFlag, strings.Join(script, "\n")}
}
