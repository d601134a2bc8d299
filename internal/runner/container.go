// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"dataform-task/internal/container"
)

// workspaceMount is where the working directory is mounted in the container.
const workspaceMount = "/workspace"

// ContainerRunner executes the shell invocation inside a container. Only the
// spec environment is passed in; the host environment never leaks into the
// container.
type ContainerRunner struct {
	engine container.Engine
}

// NewContainerRunner creates a container runner for the preferred engine.
func NewContainerRunner(engineType container.EngineType) (*ContainerRunner, error) {
	engine, err := container.NewEngine(engineType)
	if err != nil {
		return nil, err
	}
	return &ContainerRunner{engine: engine}, nil
}

// NewContainerRunnerWithEngine creates a container runner with a specific
// engine. Used by tests to inject mock engines.
func NewContainerRunnerWithEngine(engine container.Engine) *ContainerRunner {
	return &ContainerRunner{engine: engine}
}

// Name returns the runner name.
func (r *ContainerRunner) Name() string {
	return string(KindContainer)
}

// Available reports whether the underlying engine is usable.
func (r *ContainerRunner) Available() bool {
	return r.engine != nil && r.engine.Available()
}

// EngineName returns the name of the underlying container engine.
func (r *ContainerRunner) EngineName() string {
	if r.engine == nil {
		return "none"
	}
	return r.engine.Name()
}

// Run stages the spec's files into a working directory, mounts it at
// /workspace, and runs the invocation vector in a fresh container that is
// removed after the run. Output markers are parsed from the captured stdout
// and declared output files are collected from the mounted directory.
func (r *ContainerRunner) Run(ctx context.Context, spec *RunSpec) (*Result, error) {
	if spec.Image == "" {
		return nil, &ExecutionError{ExitCode: 1, Cause: fmt.Errorf("container runner requires an image")}
	}

	if err := r.ensureImage(ctx, spec.Image); err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: err}
	}

	workDir, cleanup, err := spec.ensureWorkDir()
	if err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: err}
	}
	defer cleanup()

	if err := stageFiles(workDir, spec); err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: err}
	}

	volumes := append([]string{}, spec.Volumes...)
	volumes = append(volumes, fmt.Sprintf("%s:%s", workDir, workspaceMount))

	var stdout bytes.Buffer
	runOpts := container.RunOptions{
		Image:      spec.Image,
		Command:    spec.Commands,
		Entrypoint: spec.Entrypoint,
		WorkDir:    workspaceMount,
		Env:        spec.Env,
		Volumes:    volumes,
		User:       spec.User,
		Remove:     true,
		Stdin:      spec.Stdin,
		Stdout:     captureWriter(&stdout, spec.Stdout),
		Stderr:     spec.Stderr,
	}

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		version := "unknown"
		if v, err := r.engine.Version(ctx); err == nil {
			version = v
		}
		slog.Debug("running container task",
			"engine", r.engine.Name(), "engineVersion", version,
			"image", spec.Image, "workDir", workDir)
	}

	result, err := r.engine.Run(ctx, runOpts)
	if err != nil {
		return nil, &ExecutionError{ExitCode: 1, Cause: fmt.Errorf("failed to run container: %w", err)}
	}
	if result.Error != nil {
		vars, _ := ParseOutputVars(&stdout)
		return nil, &ExecutionError{ExitCode: result.ExitCode, Vars: vars, Cause: result.Error}
	}

	return buildResult(result.ExitCode, &stdout, workDir, spec)
}

// ensureImage pulls the image when it is not present locally.
func (r *ContainerRunner) ensureImage(ctx context.Context, image string) error {
	exists, err := r.engine.ImageExists(ctx, image)
	if err != nil {
		return fmt.Errorf("failed to check image '%s': %w", image, err)
	}
	if exists {
		return nil
	}
	slog.Info("pulling container image", "engine", r.engine.Name(), "image", image)
	return r.engine.Pull(ctx, image)
}
