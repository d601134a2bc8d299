// SPDX-License-Identifier: MPL-2.0

// Package container provides an abstraction layer for container engines
// (Docker/Podman) driven through their CLI binaries.
package container

import (
	"context"
	"fmt"
	"io"
)

// Engine defines the interface for container operations.
type Engine interface {
	// Name returns the engine name (docker or podman).
	Name() string
	// Available checks if the engine is available on the system.
	Available() bool
	// Version returns the engine version.
	Version(ctx context.Context) (string, error)
	// ImageExists checks if an image exists locally.
	ImageExists(ctx context.Context, image string) (bool, error)
	// Pull pulls an image from its registry.
	Pull(ctx context.Context, image string) error
	// Run runs a command in a container.
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)
}

// RunOptions contains options for running a container.
type RunOptions struct {
	// Image is the image to run.
	Image string
	// Command is the command vector to run.
	Command []string
	// Entrypoint overrides the image entrypoint. nil leaves the image
	// entrypoint in place; an empty non-nil slice clears it so Command
	// controls execution.
	Entrypoint []string
	// WorkDir is the working directory inside the container.
	WorkDir string
	// Env contains environment variables.
	Env map[string]string
	// Volumes are volume mounts in "host:container" format.
	Volumes []string
	// User is the user to run as inside the container.
	User string
	// Remove automatically removes the container after exit.
	Remove bool
	// Stdin is the standard input.
	Stdin io.Reader
	// Stdout is where to write standard output.
	Stdout io.Writer
	// Stderr is where to write standard error.
	Stderr io.Writer
}

// RunResult contains the result of running a container.
type RunResult struct {
	// ExitCode is the exit code of the containerized command.
	ExitCode int
	// Error contains any engine-level error (not command failure).
	Error error
}

// EngineType identifies the container engine type.
type EngineType string

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
	EngineTypeAuto   EngineType = "auto"
)

// ErrEngineNotAvailable is returned when a container engine is not available.
type ErrEngineNotAvailable struct {
	Engine string
	Reason string
}

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a container engine based on preference, falling back to
// the other engine when the preferred one is unavailable.
func NewEngine(preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		engine := NewPodmanEngine()
		if engine.Available() {
			return engine, nil
		}
		dockerEngine := NewDockerEngine()
		if dockerEngine.Available() {
			return dockerEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		engine := NewDockerEngine()
		if engine.Available() {
			return engine, nil
		}
		podmanEngine := NewPodmanEngine()
		if podmanEngine.Available() {
			return podmanEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	case EngineTypeAuto:
		return AutoDetectEngine()

	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}
}

// AutoDetectEngine tries to find an available container engine.
func AutoDetectEngine() (Engine, error) {
	docker := NewDockerEngine()
	if docker.Available() {
		return docker, nil
	}

	podman := NewPodmanEngine()
	if podman.Available() {
		return podman, nil
	}

	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
