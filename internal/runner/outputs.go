// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
)

// outputMarkerPattern matches the stdout marker convention used to smuggle
// structured outputs out of an otherwise unstructured stream:
//
//	::{"outputs":{"key":"value"}}::
var outputMarkerPattern = regexp.MustCompile(`::(\{.*?\})::`)

// maxOutputLineSize bounds a single scanned stdout line during marker parsing.
const maxOutputLineSize = 1 << 20

// outputPayload is the JSON shape wrapped by an output marker.
type outputPayload struct {
	Outputs map[string]any `json:"outputs"`
}

// ParseOutputVars scans stdout for output markers and returns the merged
// captured variables. Later markers override earlier ones for the same key.
// Lines without a marker, and markers that do not parse as the expected JSON
// shape, are ignored: stdout is free-form and only well-formed markers
// participate in variable capture.
func ParseOutputVars(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOutputLineSize)

	for scanner.Scan() {
		for _, match := range outputMarkerPattern.FindAllStringSubmatch(scanner.Text(), -1) {
			var payload outputPayload
			if err := json.Unmarshal([]byte(match[1]), &payload); err != nil {
				continue
			}
			for k, v := range payload.Outputs {
				vars[k] = stringifyOutput(v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return vars, fmt.Errorf("failed to scan command output: %w", err)
	}

	return vars, nil
}

// stringifyOutput flattens a captured output value to its string form.
// Strings pass through untouched; other JSON values keep their JSON encoding.
func stringifyOutput(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}
