// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dataform-task/internal/issue"
	"dataform-task/pkg/taskfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate <taskfile.cue>",
	Short: "Validate a task file without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		def, err := taskfile.Parse(args[0])
		if err != nil {
			var validationErr *taskfile.ValidationError
			if errors.As(err, &validationErr) {
				return issue.NewErrorContext().
					WithOperation("validate task file").
					WithResource(args[0]).
					WithSuggestion("Check that 'commands' contains at least one command").
					WithSuggestion("Check that 'runner.kind' is container, process, or virtual").
					Wrap(err).
					BuildError()
			}
			return err
		}

		fmt.Fprintln(cobraCmd.OutOrStdout(), SuccessStyle.Render("✓")+" "+args[0]+" is valid")
		spec := def.ResolveRunner(def.ContainerImage)
		fmt.Fprintf(cobraCmd.OutOrStdout(), "  runner: %s\n", ValueStyle.Render(string(spec.Kind)))
		if spec.Kind == taskfile.RunnerContainer {
			fmt.Fprintf(cobraCmd.OutOrStdout(), "  image:  %s\n", ValueStyle.Render(spec.Image))
		}
		return nil
	},
}
