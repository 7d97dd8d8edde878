// Package diag defines the Blend65 middle-end's diagnostic model: a single,
// insertion-ordered stream of Error/Warning/Info records shared by every
// pass (spec.md §6 "Diagnostic format", §7 "Error Handling Design").
package diag

import (
	"fmt"

	"github.com/blendsdk/blend65-sub017/pkg/ast"
)

// Severity classifies a Diagnostic's effect on the compile's overall
// success.
type Severity int

const (
	// Error fails the compile; code emission is blocked.
	Error Severity = iota
	// Warning allows emission to proceed.
	Warning
	// Info is advisory only.
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "?"
	}
}

// Code is a stable diagnostic code string (e.g. "S030", "MODULE_NOT_FOUND").
// Codes never change meaning across compiler versions (spec.md §6).
type Code string

// Diagnostic is one record in the ordered diagnostics stream.
type Diagnostic struct {
	Code       Code
	Severity   Severity
	Message    string
	Location   ast.SourceLocation
	Suggestion string // optional; empty if none.
}

func (d Diagnostic) String() string {
	if d.Suggestion == "" {
		return fmt.Sprintf("%s[%s] %s: %s", d.Severity, d.Code, d.Location, d.Message)
	}
	return fmt.Sprintf("%s[%s] %s: %s (suggestion: %s)", d.Severity, d.Code, d.Location, d.Message, d.Suggestion)
}

// New constructs a Diagnostic with no suggestion.
func New(code Code, severity Severity, loc ast.SourceLocation, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Code: code, Severity: severity, Location: loc, Message: fmt.Sprintf(format, args...)}
}

// WithSuggestion returns a copy of d carrying the given suggestion text.
func (d Diagnostic) WithSuggestion(suggestion string) Diagnostic {
	d.Suggestion = suggestion
	return d
}
