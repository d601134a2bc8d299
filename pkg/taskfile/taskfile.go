// SPDX-License-Identifier: MPL-2.0

// Package taskfile defines the task descriptor for Dataform CLI invocations
// and parses CUE task files against an embedded schema.
package taskfile

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultImage is the container image used when neither the definition nor
// the runner spec names one.
const DefaultImage = "dataformco/dataform:latest"

// Runner kind constants for the supported execution environments.
const (
	RunnerContainer RunnerKind = "container"
	RunnerProcess   RunnerKind = "process"
	RunnerVirtual   RunnerKind = "virtual"
)

// ErrNoCommands is the sentinel error wrapped by ValidationError when the
// command list is empty.
var ErrNoCommands = errors.New("commands must not be empty")

type (
	// RunnerKind identifies the task runner implementation to use.
	RunnerKind string

	// TaskDefinition is the declarative descriptor for one task invocation.
	// It is owned by the host and must be treated as immutable once rendering
	// begins; everything derived from it is copied, never mutated in place.
	// All string fields may carry template placeholders that are resolved
	// before execution.
	TaskDefinition struct {
		// BeforeCommands run before the main commands, in the same shell
		// session (e.g. "npm install @dataform/core", "dataform compile").
		BeforeCommands []string `json:"beforeCommands,omitempty"`

		// Commands is the main command list. Required, non-empty.
		Commands []string `json:"commands"`

		// Env is additional environment variables for the task process.
		// Both keys and values may be templated.
		Env map[string]string `json:"env,omitempty"`

		// ContainerImage is the image for container-based runners.
		ContainerImage string `json:"containerImage,omitempty"`

		// Runner selects and configures the task runner.
		// When nil, a container runner with defaults is used.
		Runner *RunnerSpec `json:"runner,omitempty"`

		// Container is the legacy container options field.
		//
		// Deprecated: use Runner instead. Honored only when Runner is unset,
		// with the same default-injection rules.
		Container *ContainerOptions `json:"container,omitempty"`

		// NamespaceFiles declares namespace files to stage into the working
		// directory before the commands run.
		NamespaceFiles *NamespaceFiles `json:"namespaceFiles,omitempty"`

		// InputFiles maps relative paths to file content materialized into
		// the working directory before the commands run.
		InputFiles map[string]string `json:"inputFiles,omitempty"`

		// OutputFiles declares files (or globs) to stage back after the
		// commands complete. Empty means nothing is staged back.
		OutputFiles []string `json:"outputFiles,omitempty"`
	}

	// RunnerSpec configures a task runner. The zero value is not usable;
	// obtain instances from a parsed task file, DefaultRunner, or
	// TaskDefinition.ResolveRunner.
	RunnerSpec struct {
		// Kind selects the runner implementation.
		Kind RunnerKind `json:"kind"`

		// Image is the container image. Only used by container runners.
		// Unlike TaskDefinition.ContainerImage it is taken literally:
		// template placeholders here are never rendered.
		Image string `json:"image,omitempty"`

		// Entrypoint overrides the image entrypoint. nil means unset;
		// an empty non-nil slice is the canonical "no entrypoint" form and
		// makes the shell invocation control execution instead of the
		// image's built-in entrypoint.
		Entrypoint []string `json:"entrypoint,omitempty"`

		// User is the user to run as inside the container.
		User string `json:"user,omitempty"`

		// Volumes are additional volume mounts in "host:container" form.
		Volumes []string `json:"volumes,omitempty"`
	}

	// ContainerOptions is the legacy container configuration shape kept for
	// backward compatibility with older task files.
	ContainerOptions struct {
		Image      string   `json:"image,omitempty"`
		Entrypoint []string `json:"entrypoint,omitempty"`
		User       string   `json:"user,omitempty"`
		Volumes    []string `json:"volumes,omitempty"`
	}

	// NamespaceFiles declares which files from the host-provided namespace
	// directory are staged into the working directory.
	NamespaceFiles struct {
		// Enabled turns namespace file staging on. Defaults to true when the
		// block is present.
		Enabled *bool `json:"enabled,omitempty"`

		// Include filters staged files by glob. Empty means all.
		Include []string `json:"include,omitempty"`

		// Exclude removes matching files after Include is applied.
		Exclude []string `json:"exclude,omitempty"`
	}

	// ValidationError reports an invalid task definition. It is raised at
	// construction/parse time, before any execution is attempted.
	ValidationError struct {
		Field  string
		Reason string
	}
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid task definition: field '%s': %s", e.Field, e.Reason)
}

// Unwrap returns ErrNoCommands for empty-command failures so callers can use
// errors.Is without string matching.
func (e *ValidationError) Unwrap() error {
	if e.Field == "commands" {
		return ErrNoCommands
	}
	return nil
}

// New constructs a validated TaskDefinition with the given main commands.
func New(commands []string, opts ...Option) (*TaskDefinition, error) {
	def := &TaskDefinition{Commands: slices.Clone(commands)}
	for _, opt := range opts {
		opt(def)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Option customizes a TaskDefinition under construction.
type Option func(*TaskDefinition)

// WithBeforeCommands sets the setup commands.
func WithBeforeCommands(commands ...string) Option {
	return func(d *TaskDefinition) { d.BeforeCommands = commands }
}

// WithEnv sets the environment mapping.
func WithEnv(env map[string]string) Option {
	return func(d *TaskDefinition) { d.Env = env }
}

// WithContainerImage sets the container image.
func WithContainerImage(image string) Option {
	return func(d *TaskDefinition) { d.ContainerImage = image }
}

// WithRunner sets the runner spec.
func WithRunner(spec *RunnerSpec) Option {
	return func(d *TaskDefinition) { d.Runner = spec }
}

// WithContainerOptions sets the legacy container options field.
func WithContainerOptions(opts *ContainerOptions) Option {
	return func(d *TaskDefinition) { d.Container = opts }
}

// WithInputFiles sets the input file mapping.
func WithInputFiles(files map[string]string) Option {
	return func(d *TaskDefinition) { d.InputFiles = files }
}

// WithOutputFiles sets the declared output file paths.
func WithOutputFiles(paths ...string) Option {
	return func(d *TaskDefinition) { d.OutputFiles = paths }
}

// WithNamespaceFiles sets the namespace file declaration.
func WithNamespaceFiles(nf *NamespaceFiles) Option {
	return func(d *TaskDefinition) { d.NamespaceFiles = nf }
}

// Validate checks the definition invariants. Commands must be non-empty;
// every configured runner kind must be known.
func (d *TaskDefinition) Validate() error {
	if len(d.Commands) == 0 {
		return &ValidationError{Field: "commands", Reason: "must contain at least one command"}
	}
	if d.Runner != nil && !d.Runner.Kind.IsValid() {
		return &ValidationError{
			Field:  "runner.kind",
			Reason: fmt.Sprintf("unknown runner kind '%s'", d.Runner.Kind),
		}
	}
	return nil
}

// IsValid reports whether the runner kind is one of the supported kinds.
func (k RunnerKind) IsValid() bool {
	switch k {
	case RunnerContainer, RunnerProcess, RunnerVirtual:
		return true
	}
	return false
}

// DefaultRunner returns a fresh container runner spec. Callers get their own
// copy each time; the default is a template, never shared mutable state.
func DefaultRunner() *RunnerSpec {
	return &RunnerSpec{Kind: RunnerContainer}
}

// Clone returns a deep copy of the spec.
func (s *RunnerSpec) Clone() *RunnerSpec {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Entrypoint = slices.Clone(s.Entrypoint)
	clone.Volumes = slices.Clone(s.Volumes)
	return &clone
}

// ResolveRunner derives the concrete runner spec for one invocation:
// the new-style Runner field wins, the legacy Container options are the
// fallback, and a default container runner is used when neither is set.
// For container-based runners it injects the image (renderedImage, then
// DefaultImage) and normalizes an unset or empty entrypoint to the canonical
// empty form so the shell invocation controls execution. The returned spec is
// always a copy; the definition is never mutated.
func (d *TaskDefinition) ResolveRunner(renderedImage string) *RunnerSpec {
	var spec *RunnerSpec
	switch {
	case d.Runner != nil:
		spec = d.Runner.Clone()
	case d.Container != nil:
		spec = &RunnerSpec{
			Kind:       RunnerContainer,
			Image:      d.Container.Image,
			Entrypoint: slices.Clone(d.Container.Entrypoint),
			User:       d.Container.User,
			Volumes:    slices.Clone(d.Container.Volumes),
		}
	default:
		spec = DefaultRunner()
	}

	if spec.Kind != RunnerContainer {
		return spec
	}

	if spec.Image == "" {
		spec.Image = renderedImage
	}
	if spec.Image == "" {
		spec.Image = DefaultImage
	}
	if len(spec.Entrypoint) == 0 {
		spec.Entrypoint = []string{}
	}
	return spec
}

// StagingEnabled reports whether namespace files should be staged.
func (n *NamespaceFiles) StagingEnabled() bool {
	if n == nil {
		return false
	}
	if n.Enabled == nil {
		return true
	}
	return *n.Enabled
}
