// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStageFiles_InputFiles(t *testing.T) {
	workDir := t.TempDir()

	spec := &RunSpec{
		InputFiles: map[string]string{
			"sa.json":                 `{"projectId":"demo"}`,
			".df-credentials.json":    `{"location":"us"}`,
			"definitions/example.sql": "SELECT 1",
		},
	}

	if err := stageFiles(workDir, spec); err != nil {
		t.Fatalf("stageFiles returned error: %v", err)
	}

	for path, want := range spec.InputFiles {
		content, err := os.ReadFile(filepath.Join(workDir, filepath.FromSlash(path)))
		if err != nil {
			t.Fatalf("staged file %s not readable: %v", path, err)
		}
		if string(content) != want {
			t.Errorf("file %s = %q, want %q", path, content, want)
		}
	}
}

func TestStageFiles_NamespaceFilters(t *testing.T) {
	nsRoot := t.TempDir()
	writeTestFile(t, nsRoot, "model.sqlx", "config {}")
	writeTestFile(t, nsRoot, "notes.md", "readme")
	writeTestFile(t, nsRoot, "queries/report.sqlx", "SELECT 2")

	workDir := t.TempDir()
	spec := &RunSpec{
		Namespace: &NamespaceSpec{
			Root:    nsRoot,
			Include: []string{"*.sqlx", "queries/*.sqlx"},
			Exclude: []string{"notes.md"},
		},
	}

	if err := stageFiles(workDir, spec); err != nil {
		t.Fatalf("stageFiles returned error: %v", err)
	}

	for _, path := range []string{"model.sqlx", "queries/report.sqlx"} {
		if _, err := os.Stat(filepath.Join(workDir, filepath.FromSlash(path))); err != nil {
			t.Errorf("expected %s to be staged: %v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(workDir, "notes.md")); err == nil {
		t.Error("notes.md should have been excluded")
	}
}

func TestStageFiles_InputWinsOverNamespace(t *testing.T) {
	nsRoot := t.TempDir()
	writeTestFile(t, nsRoot, "dataform.json", `{"from":"namespace"}`)

	workDir := t.TempDir()
	spec := &RunSpec{
		Namespace:  &NamespaceSpec{Root: nsRoot},
		InputFiles: map[string]string{"dataform.json": `{"from":"input"}`},
	}

	if err := stageFiles(workDir, spec); err != nil {
		t.Fatalf("stageFiles returned error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(workDir, "dataform.json"))
	if err != nil {
		t.Fatalf("staged file not readable: %v", err)
	}
	if string(content) != `{"from":"input"}` {
		t.Errorf("dataform.json = %s, want input-file content", content)
	}
}

func TestCollectOutputFiles(t *testing.T) {
	workDir := t.TempDir()
	writeTestFile(t, workDir, "compiled/graph.json", "{}")
	writeTestFile(t, workDir, "compiled/run.log", "ok")
	writeTestFile(t, workDir, "ignored.txt", "no")

	collected, stageDir, err := collectOutputFiles(workDir, []string{"compiled/*.json", "compiled/run.log"}, "")
	if err != nil {
		t.Fatalf("collectOutputFiles returned error: %v", err)
	}
	if stageDir == "" {
		t.Fatal("expected a staging directory to be reported")
	}
	t.Cleanup(func() { os.RemoveAll(stageDir) })

	if len(collected) != 2 {
		t.Fatalf("collected %d files, want 2: %v", len(collected), collected)
	}
	for rel, staged := range collected {
		if _, err := os.Stat(staged); err != nil {
			t.Errorf("staged copy for %s missing: %v", rel, err)
		}
		if !strings.HasPrefix(staged, stageDir) {
			t.Errorf("staged copy %s is outside the reported directory %s", staged, stageDir)
		}
	}
	if _, ok := collected["ignored.txt"]; ok {
		t.Error("ignored.txt should not have been collected")
	}
}

func TestCollectOutputFiles_PinnedDirectory(t *testing.T) {
	workDir := t.TempDir()
	writeTestFile(t, workDir, "report.json", "{}")

	pinned := filepath.Join(t.TempDir(), "staged")
	collected, stageDir, err := collectOutputFiles(workDir, []string{"report.json"}, pinned)
	if err != nil {
		t.Fatalf("collectOutputFiles returned error: %v", err)
	}
	if stageDir != pinned {
		t.Errorf("stage dir = %q, want pinned %q", stageDir, pinned)
	}
	if collected["report.json"] != filepath.Join(pinned, "report.json") {
		t.Errorf("collected = %v, want copy under the pinned directory", collected)
	}
}

func TestCollectOutputFiles_NoDeclaration(t *testing.T) {
	workDir := t.TempDir()
	writeTestFile(t, workDir, "something.json", "{}")

	collected, stageDir, err := collectOutputFiles(workDir, nil, "")
	if err != nil {
		t.Fatalf("collectOutputFiles returned error: %v", err)
	}
	if collected != nil {
		t.Errorf("collected = %v, want nil when nothing is declared", collected)
	}
	if stageDir != "" {
		t.Errorf("stage dir = %q, want none when nothing is declared", stageDir)
	}
}

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
