// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"
)

func newTestProcessRunner(t *testing.T) *ProcessRunner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process runner tests require a POSIX shell")
	}
	r := NewProcessRunner()
	if !r.Available() {
		t.Skip("no /bin/sh available")
	}
	return r
}

func TestProcessRunner_MarkerCapture(t *testing.T) {
	r := newTestProcessRunner(t)

	spec := &RunSpec{
		Commands: []string{"/bin/sh", "-c", `echo "::{\"outputs\":{\"k\":\"v\"}}::"`},
	}

	result, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Vars["k"] != "v" {
		t.Errorf("Vars = %v, want k=v", result.Vars)
	}
}

func TestProcessRunner_EnvInjection(t *testing.T) {
	r := newTestProcessRunner(t)

	spec := &RunSpec{
		Commands: []string{"/bin/sh", "-c", `echo "::{\"outputs\":{\"customEnv\":\"$MY_KEY\"}}::"`},
		Env:      map[string]string{"MY_KEY": "MY_VALUE"},
	}

	result, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Vars["customEnv"] != "MY_VALUE" {
		t.Errorf("customEnv = %q, want MY_VALUE", result.Vars["customEnv"])
	}
}

func TestProcessRunner_SharedShellSession(t *testing.T) {
	r := newTestProcessRunner(t)

	// A before-command exporting a variable and changing directory must be
	// visible to the main command: everything runs in one shell session.
	script := "export FROM_BEFORE=staged\n" +
		"mkdir -p new_project\n" +
		"cd new_project\n" +
		`echo "::{\"outputs\":{\"fromBefore\":\"$FROM_BEFORE\",\"where\":\"$(basename $PWD)\"}}::"`

	spec := &RunSpec{Commands: []string{"/bin/sh", "-c", script}}

	result, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Vars["fromBefore"] != "staged" {
		t.Errorf("fromBefore = %q, want staged", result.Vars["fromBefore"])
	}
	if result.Vars["where"] != "new_project" {
		t.Errorf("where = %q, want new_project", result.Vars["where"])
	}
}

func TestProcessRunner_NonZeroExit(t *testing.T) {
	r := newTestProcessRunner(t)

	spec := &RunSpec{Commands: []string{"/bin/sh", "-c", "exit 3"}}

	result, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("non-zero exit should be a result, not an error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestProcessRunner_InputAndOutputFiles(t *testing.T) {
	r := newTestProcessRunner(t)

	spec := &RunSpec{
		Commands:    []string{"/bin/sh", "-c", "cat sa.json > copied.json"},
		InputFiles:  map[string]string{"sa.json": `{"projectId":"demo"}`},
		OutputFiles: []string{"copied.json"},
		OutputDir:   t.TempDir(),
	}

	result, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", result.ExitCode)
	}
	if _, ok := result.OutputFiles["copied.json"]; !ok {
		t.Errorf("OutputFiles = %v, want copied.json collected", result.OutputFiles)
	}
	if result.OutputDir != spec.OutputDir {
		t.Errorf("OutputDir = %q, want pinned %q", result.OutputDir, spec.OutputDir)
	}
}

func TestProcessRunner_NoOutputDeclaration(t *testing.T) {
	r := newTestProcessRunner(t)

	spec := &RunSpec{Commands: []string{"/bin/sh", "-c", "echo artifact > artifact.txt"}}

	result, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.OutputFiles != nil {
		t.Errorf("OutputFiles = %v, want nil without declaration", result.OutputFiles)
	}
	if result.OutputDir != "" {
		t.Errorf("OutputDir = %q, want none without declaration", result.OutputDir)
	}
}

func TestProcessRunner_StdoutPassthrough(t *testing.T) {
	r := newTestProcessRunner(t)

	var out bytes.Buffer
	spec := &RunSpec{
		Commands: []string{"/bin/sh", "-c", "echo visible"},
		Stdout:   &out,
	}

	if _, err := r.Run(context.Background(), spec); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := out.String(); got != "visible\n" {
		t.Errorf("passthrough stdout = %q", got)
	}
}

func TestProcessRunner_StartFailure(t *testing.T) {
	r := newTestProcessRunner(t)

	spec := &RunSpec{Commands: []string{"/nonexistent/shell", "-c", "true"}}

	_, err := r.Run(context.Background(), spec)
	if err == nil {
		t.Fatal("expected error for unstartable command")
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %T", err)
	}
	if !errors.Is(err, ErrExecutionFailed) {
		t.Error("expected errors.Is(err, ErrExecutionFailed)")
	}
}
