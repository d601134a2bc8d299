// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"dataform-task/internal/container"
	"dataform-task/internal/execute"
	"dataform-task/internal/render"
	"dataform-task/internal/runner"
	"dataform-task/pkg/taskfile"
)

var (
	runInputs       []string
	runRunner       string
	runImage        string
	runOutput       string
	runNamespaceDir string
	runWorkDir      string
	runOutputDir    string

	runCmd = &cobra.Command{
		Use:   "run <taskfile.cue>",
		Short: "Execute a task file",
		Long: `Execute the commands of a CUE task file in the configured runner.

Template placeholders ({{ key }}) in commands, env, image, and output-file
paths are resolved from --input pairs before anything executes. The process
exit code mirrors the task's exit code.`,
		Args: cobra.ExactArgs(1),
		RunE: runTask,
	}
)

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "render context entry as key=value (repeatable)")
	runCmd.Flags().StringVar(&runRunner, "runner", "", "override the runner kind (container, process, virtual)")
	runCmd.Flags().StringVar(&runImage, "image", "", "override the container image")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "text", "output format (text, json)")
	runCmd.Flags().StringVar(&runNamespaceDir, "namespace-dir", "", "directory to stage namespace files from")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "pin the working directory instead of a temp dir")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "directory to stage collected output files into")
}

func runTask(cobraCmd *cobra.Command, args []string) error {
	def, err := taskfile.Parse(args[0])
	if err != nil {
		return err
	}

	if err := applyOverrides(def); err != nil {
		return err
	}

	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}

	registry := execute.DefaultRegistry(container.EngineType(cfg.ContainerEngine))
	opts := []execute.Option{
		execute.WithStdio(os.Stdin, cobraCmd.OutOrStdout(), cobraCmd.ErrOrStderr()),
	}
	if runNamespaceDir != "" {
		opts = append(opts, execute.WithNamespaceDir(runNamespaceDir))
	}
	if runWorkDir != "" {
		opts = append(opts, execute.WithWorkDir(runWorkDir))
	}
	if runOutputDir != "" {
		opts = append(opts, execute.WithOutputDir(runOutputDir))
	}
	adapter := execute.New(render.NewMapRenderer(inputs), registry, opts...)

	result, err := adapter.Execute(cobraCmd.Context(), def)
	if err != nil {
		var execErr *runner.ExecutionError
		if errors.As(err, &execErr) {
			return &ExitError{Code: execErr.ExitCode, Err: err}
		}
		return err
	}

	if err := printResult(cobraCmd, result); err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &ExitError{Code: result.ExitCode}
	}
	return nil
}

// applyOverrides folds CLI flags and config defaults into the definition.
// Flags win over the task file, the task file wins over config.
func applyOverrides(def *taskfile.TaskDefinition) error {
	if runRunner != "" {
		kind := taskfile.RunnerKind(runRunner)
		if !kind.IsValid() {
			return fmt.Errorf("invalid --runner %q: must be container, process, or virtual", runRunner)
		}
		def.Runner = &taskfile.RunnerSpec{Kind: kind}
	} else if def.Runner == nil && def.Container == nil {
		def.Runner = &taskfile.RunnerSpec{Kind: taskfile.RunnerKind(cfg.DefaultRunner)}
	}

	if runImage != "" {
		def.ContainerImage = runImage
	} else if def.ContainerImage == "" {
		def.ContainerImage = cfg.DefaultImage
	}

	return def.Validate()
}

// parseInputs turns repeated key=value flags into the render context map.
func parseInputs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --input %q: expected key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}

func printResult(cobraCmd *cobra.Command, result *execute.ExecutionResult) error {
	switch runOutput {
	case "json":
		payload := struct {
			ExitCode    int               `json:"exitCode"`
			Vars        map[string]string `json:"vars"`
			OutputFiles map[string]string `json:"outputFiles,omitempty"`
			OutputDir   string            `json:"outputDir,omitempty"`
		}{result.ExitCode, result.Vars, result.OutputFiles, result.OutputDir}
		encoded, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Fprintln(cobraCmd.OutOrStdout(), string(encoded))
		return nil

	case "text":
		out := cobraCmd.ErrOrStderr()
		if result.ExitCode == 0 {
			fmt.Fprintln(out, SuccessStyle.Render("Task completed successfully"))
		} else {
			fmt.Fprintln(out, ErrorStyle.Render(fmt.Sprintf("Task exited with code %d", result.ExitCode)))
		}
		if len(result.Vars) > 0 {
			fmt.Fprintln(out, SubtitleStyle.Render("Captured variables:"))
			keys := make([]string, 0, len(result.Vars))
			for k := range result.Vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s = %s\n", ValueStyle.Render(k), result.Vars[k])
			}
		}
		if len(result.OutputFiles) > 0 {
			fmt.Fprintln(out, SubtitleStyle.Render(fmt.Sprintf("Collected files (in %s):", result.OutputDir)))
			for rel, staged := range result.OutputFiles {
				fmt.Fprintf(out, "  %s -> %s\n", ValueStyle.Render(rel), staged)
			}
		}
		return nil

	default:
		return fmt.Errorf("invalid --output %q: expected text or json", runOutput)
	}
}
