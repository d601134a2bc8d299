// SPDX-License-Identifier: MPL-2.0

package taskfile

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed taskfile_schema.cue
var taskfileSchema string

// maxTaskFileSize bounds task file size so a runaway file cannot exhaust
// memory during CUE compilation.
const maxTaskFileSize = 1 << 20

// Parse reads and parses a task file from the given path.
func Parse(path string) (*TaskDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file at %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// ParseBytes parses task file content in three steps: compile the embedded
// schema, compile the user data and unify it with the schema, then validate
// and decode into a TaskDefinition. The decoded definition is validated with
// Validate so schema-level and Go-level invariants both hold.
func ParseBytes(data []byte, path string) (*TaskDefinition, error) {
	filename := path
	if filename == "" {
		filename = "<input>"
	}
	if len(data) > maxTaskFileSize {
		return nil, fmt.Errorf("task file %s exceeds maximum size of %d bytes", filename, maxTaskFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(taskfileSchema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile task file schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(filename))
	if userValue.Err() != nil {
		return nil, formatCUEError(userValue.Err(), filename)
	}

	schemaRoot := schemaValue.LookupPath(cue.ParsePath("#TaskDefinition"))
	if schemaRoot.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition #TaskDefinition not found: %w", schemaRoot.Err())
	}

	unified := schemaRoot.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, filename)
	}

	var def TaskDefinition
	if err := unified.Decode(&def); err != nil {
		return nil, formatCUEError(err, filename)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// formatCUEError flattens a CUE error list into one readable error with the
// originating filename attached.
func formatCUEError(err error, filename string) error {
	details := cueerrors.Details(err, &cueerrors.Config{Cwd: ""})
	return fmt.Errorf("invalid task file %s:\n%s", filename, details)
}
