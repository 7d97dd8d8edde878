package main

import (
	"github.com/blendsdk/blend65-sub017/pkg/ast"
)

// Frontend turns source files into the per-module ASTs Compile consumes.
// The lexer and parser are external collaborators (SPEC_FULL.md §5
// Non-goals); this interface only proves the CLI can be wired to one
// without pkg/compiler knowing anything about source text or grammar.
type Frontend interface {
	// Parse reads filenames and returns one *ast.Program per module,
	// keyed by module name.
	Parse(filenames []string) (map[string]*ast.Program, error)
}

// Backend turns a finished compiler.Result into bytes ready to run on the
// target machine: assembly emission, BASIC-stub/PRG packaging, and
// source-map writing are all external collaborators this interface only
// stands in for (SPEC_FULL.md §5 Non-goals).
type Backend interface {
	// Emit produces the final output image for result, or an error if
	// result.Success is false and the backend refuses to emit partial
	// output.
	Emit(result *Compiled) ([]byte, error)
}

// noFrontend is the zero-value Frontend: every real parser is an external
// collaborator, so the CLI ships without one until a driver replaces the
// package-level frontend variable with a real implementation.
type noFrontend struct{}

func (noFrontend) Parse(filenames []string) (map[string]*ast.Program, error) {
	return nil, errNoFrontend
}

// noBackend mirrors noFrontend for the emitter side.
type noBackend struct{}

func (noBackend) Emit(*Compiled) ([]byte, error) {
	return nil, errNoBackend
}
