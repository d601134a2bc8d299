// SPDX-License-Identifier: MPL-2.0

// Package render provides template placeholder substitution for task fields.
//
// Rendering is a host-provided capability: the workflow host owns the
// expression language and the execution context. The Renderer interface is the
// injection point; MapRenderer is the in-repo implementation that resolves
// `{{ key }}` placeholders against a flat context map, used by the CLI and by
// tests. Hosts that pre-render task fields can inject NopRenderer.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnresolvedPlaceholder is the sentinel error wrapped by RenderError.
var ErrUnresolvedPlaceholder = errors.New("unresolved template placeholder")

// placeholderPattern matches `{{ key }}` placeholders. Keys are dotted
// identifier paths (e.g. "inputs.environmentKey").
var placeholderPattern = regexp.MustCompile(`\{\{\s*([\w.-]+)\s*\}\}`)

type (
	// Renderer resolves template placeholders in a string. Implementations
	// must be pure: same input, same output, no side effects. A failed
	// lookup is fatal (fail-fast, before any execution).
	Renderer interface {
		Render(template string) (string, error)
	}

	// RenderError is returned when a template references a placeholder that
	// cannot be resolved.
	RenderError struct {
		// Template is the full template string being rendered.
		Template string
		// Placeholder is the first unresolved placeholder key.
		Placeholder string
	}

	// MapRenderer resolves placeholders from a flat key→value context map.
	MapRenderer struct {
		Context map[string]string
	}

	// NopRenderer returns templates unchanged. For hosts that render fields
	// before handing the definition over.
	NopRenderer struct{}
)

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("unresolved template placeholder '%s' in %q", e.Placeholder, e.Template)
}

// Unwrap returns ErrUnresolvedPlaceholder so callers can use errors.Is.
func (e *RenderError) Unwrap() error { return ErrUnresolvedPlaceholder }

// NewMapRenderer creates a MapRenderer over the given context map.
func NewMapRenderer(context map[string]string) *MapRenderer {
	return &MapRenderer{Context: context}
}

// Render substitutes every `{{ key }}` placeholder with its context value.
// The first placeholder missing from the context fails the whole render.
func (r *MapRenderer) Render(template string) (string, error) {
	var renderErr *RenderError

	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		if renderErr != nil {
			return match
		}
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := r.Context[key]
		if !ok {
			renderErr = &RenderError{Template: template, Placeholder: key}
			return match
		}
		return value
	})

	if renderErr != nil {
		return "", renderErr
	}
	return rendered, nil
}

// Render returns the template unchanged.
func (NopRenderer) Render(template string) (string, error) {
	return template, nil
}

// Slice renders every element of a string slice. A nil or empty input yields
// a nil result so "absent" survives rendering.
func Slice(r Renderer, templates []string) ([]string, error) {
	if len(templates) == 0 {
		return nil, nil
	}
	rendered := make([]string, 0, len(templates))
	for _, tpl := range templates {
		s, err := r.Render(tpl)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, s)
	}
	return rendered, nil
}

// Map renders both keys and values of a string map. Env mappings may carry
// placeholders on either side, so both are resolved.
func Map(r Renderer, templates map[string]string) (map[string]string, error) {
	if len(templates) == 0 {
		return nil, nil
	}
	rendered := make(map[string]string, len(templates))
	for k, v := range templates {
		rk, err := r.Render(k)
		if err != nil {
			return nil, err
		}
		rv, err := r.Render(v)
		if err != nil {
			return nil, err
		}
		rendered[rk] = rv
	}
	return rendered, nil
}

// String renders a single template, passing empty strings through untouched.
func String(r Renderer, template string) (string, error) {
	if strings.TrimSpace(template) == "" {
		return template, nil
	}
	return r.Render(template)
}
