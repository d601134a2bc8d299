// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// stageFiles materializes the spec's input files and namespace files into the
// working directory. Input files win over namespace files on path collisions,
// so task-local content always takes precedence.
func stageFiles(workDir string, spec *RunSpec) error {
	if spec.Namespace != nil {
		if err := stageNamespaceFiles(workDir, spec.Namespace); err != nil {
			return err
		}
	}
	for path, content := range spec.InputFiles {
		dst := filepath.Join(workDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to stage input file '%s': %w", path, err)
		}
		if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to stage input file '%s': %w", path, err)
		}
	}
	return nil
}

// stageNamespaceFiles copies the matching files from the namespace root into
// the working directory, preserving relative paths.
func stageNamespaceFiles(workDir string, ns *NamespaceSpec) error {
	if ns.Root == "" {
		return nil
	}

	return filepath.WalkDir(ns.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk namespace files: %w", err)
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(ns.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !matchesFilters(rel, ns.Include, ns.Exclude) {
			return nil
		}

		dst := filepath.Join(workDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to stage namespace file '%s': %w", rel, err)
		}
		return copyFile(path, dst)
	})
}

// matchesFilters applies the include then exclude globs to a slash-separated
// relative path. Patterns match against the full relative path and, as a
// convenience, against the base name.
func matchesFilters(rel string, include, exclude []string) bool {
	if len(include) > 0 && !matchesAny(rel, include) {
		return false
	}
	return !matchesAny(rel, exclude)
}

func matchesAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to copy '%s': %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to copy '%s': %w", src, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy '%s': %w", src, err)
	}
	return out.Close()
}

// collectOutputFiles resolves the declared output patterns against the
// working directory after a run. Each match is staged into a directory that
// outlives the per-invocation working directory, and reported as relative
// path → staged host path. The staging directory is outputDir when pinned,
// otherwise a fresh temporary directory; either way it is returned so the
// caller owns its lifetime. No declarations means no staging, a nil map, and
// an empty directory path.
func collectOutputFiles(workDir string, patterns []string, outputDir string) (map[string]string, string, error) {
	if len(patterns) == 0 {
		return nil, "", nil
	}

	stageDir := outputDir
	if stageDir == "" {
		dir, err := os.MkdirTemp("", "dataform-task-outputs-*")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create output staging directory: %w", err)
		}
		stageDir = dir
	} else if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create output staging directory: %w", err)
	}

	fail := func(err error) (map[string]string, string, error) {
		if outputDir == "" {
			_ = os.RemoveAll(stageDir)
		}
		return nil, "", err
	}

	collected := make(map[string]string)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(workDir, filepath.FromSlash(pattern)))
		if err != nil {
			return fail(fmt.Errorf("invalid output file pattern '%s': %w", pattern, err))
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(workDir, match)
			if err != nil {
				return fail(err)
			}
			rel = filepath.ToSlash(rel)

			dst := filepath.Join(stageDir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fail(fmt.Errorf("failed to stage output file '%s': %w", rel, err))
			}
			if err := copyFile(match, dst); err != nil {
				return fail(err)
			}
			collected[rel] = dst
		}
	}

	return collected, stageDir, nil
}
