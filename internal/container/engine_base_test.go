// SPDX-License-Identifier: MPL-2.0

package container

import (
	"slices"
	"strings"
	"testing"
)

func TestRunArgs_Minimal(t *testing.T) {
	e := NewBaseCLIEngine("/usr/bin/docker")

	args := e.RunArgs(RunOptions{
		Image:   "dataformco/dataform:latest",
		Command: []string{"/bin/sh", "-c", "dataform --version"},
	})

	want := []string{"run", "dataformco/dataform:latest", "/bin/sh", "-c", "dataform --version"}
	if !slices.Equal(args, want) {
		t.Errorf("RunArgs = %v, want %v", args, want)
	}
}

func TestRunArgs_Full(t *testing.T) {
	e := NewBaseCLIEngine("/usr/bin/docker")

	args := e.RunArgs(RunOptions{
		Image:      "dataformco/dataform:latest",
		Command:    []string{"/bin/sh", "-c", "dataform compile"},
		Entrypoint: []string{},
		WorkDir:    "/workspace",
		Env:        map[string]string{"B_KEY": "2", "A_KEY": "1"},
		Volumes:    []string{"/tmp/task:/workspace"},
		User:       "dataform",
		Remove:     true,
	})

	joined := strings.Join(args, " ")
	wantOrder := []string{
		"run", "--rm", "-w", "/workspace", "-u", "dataform",
		"--entrypoint", "",
		"-e", "A_KEY=1", "-e", "B_KEY=2",
		"-v", "/tmp/task:/workspace",
		"dataformco/dataform:latest",
		"/bin/sh", "-c", "dataform compile",
	}
	if !slices.Equal(args, wantOrder) {
		t.Errorf("RunArgs = %q", joined)
	}
}

func TestRunArgs_EntrypointForms(t *testing.T) {
	e := NewBaseCLIEngine("/usr/bin/docker")

	tests := []struct {
		name       string
		entrypoint []string
		wantFlag   bool
		wantValue  string
	}{
		{"nil leaves image entrypoint", nil, false, ""},
		{"empty slice clears entrypoint", []string{}, true, ""},
		{"single element", []string{"/bin/bash"}, true, "/bin/bash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := e.RunArgs(RunOptions{
				Image:      "img",
				Command:    []string{"true"},
				Entrypoint: tt.entrypoint,
			})

			idx := slices.Index(args, "--entrypoint")
			if !tt.wantFlag {
				if idx != -1 {
					t.Errorf("unexpected --entrypoint in %v", args)
				}
				return
			}
			if idx == -1 || idx+1 >= len(args) {
				t.Fatalf("missing --entrypoint in %v", args)
			}
			if args[idx+1] != tt.wantValue {
				t.Errorf("--entrypoint value = %q, want %q", args[idx+1], tt.wantValue)
			}
		})
	}
}

func TestRunArgs_MultiElementEntrypoint(t *testing.T) {
	e := NewBaseCLIEngine("/usr/bin/docker")

	args := e.RunArgs(RunOptions{
		Image:      "img",
		Command:    []string{"compile"},
		Entrypoint: []string{"/bin/sh", "-c"},
	})

	// First element goes through --entrypoint, the rest lead the command.
	want := []string{"run", "--entrypoint", "/bin/sh", "img", "-c", "compile"}
	if !slices.Equal(args, want) {
		t.Errorf("RunArgs = %v, want %v", args, want)
	}
}

func TestNewEngine_UnknownType(t *testing.T) {
	if _, err := NewEngine("containerd"); err == nil {
		t.Fatal("expected error for unknown engine type")
	}
}

func TestErrEngineNotAvailable_Message(t *testing.T) {
	err := &ErrEngineNotAvailable{Engine: "docker", Reason: "not installed"}
	if !strings.Contains(err.Error(), "docker") || !strings.Contains(err.Error(), "not installed") {
		t.Errorf("Error() = %q", err.Error())
	}
}
