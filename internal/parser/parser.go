// Package parser normalizes raw CLI output into a uniform response shape.
//
// Every supported CLI emits newline-delimited JSON (or a single JSON
// document); one shared driver walks the event stream and a small per-dialect
// table says which events carry text, which are tool calls, and which event
// terminates the run. Parsers are stateless per call and safe for reuse.
package parser

import (
	"fmt"
	"strings"

	"github.com/ariel-frischer/clink/internal/loader"
)

// Response is the normalized result of one CLI invocation.
type Response struct {
	// Content is the final answer text extracted from the output.
	Content string

	// Metadata carries the full decoded event log plus protocol-specific
	// derived fields (durations, token counts, cost, session identifier).
	Metadata map[string]any
}

// Parser converts captured stdout/stderr from a completed CLI invocation into
// a Response.
type Parser interface {
	// Name returns the parser's registry identifier (e.g. "claude_json").
	Name() string

	// Parse extracts the normalized response, or returns a *ParseError when
	// no usable content can be found.
	Parse(stdout, stderr string) (*Response, error)
}

// Factory constructs a Parser. Plugin units export symbols of this type.
type Factory func() Parser

// ParseError reports that no usable content could be extracted. Stderr, when
// non-empty, is included verbatim as a diagnostic aid.
type ParseError struct {
	Msg    string
	Stderr string
}

func (e *ParseError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s. stderr: %s", e.Msg, e.Stderr)
	}
	return e.Msg
}

var builtins = loader.NewRegistry[Factory]()

// Builtins returns the registry of builtin parser factories.
func Builtins() *loader.Registry[Factory] { return builtins }

// BuiltinNames returns the sorted names of all builtin parsers.
func BuiltinNames() []string { return builtins.Names() }

// Get returns a builtin parser by bare name (legacy lookup, case-insensitive).
func Get(name string) (Parser, error) {
	f, ok := builtins.Lookup(name)
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("no parser registered for %q (available: %s)",
			name, strings.Join(builtins.Names(), ", "))}
	}
	return f(), nil
}

// FromSpec resolves a parser spec ("builtin:<name>", "<path>:<Symbol>", or a
// bare builtin name) and instantiates it. baseDir anchors relative plugin
// paths. Unlike agents there is no generic parser to fall back to, so load
// failures are returned to the caller.
func FromSpec(spec, baseDir string) (Parser, error) {
	return FromSpecWith(loader.Default, spec, baseDir)
}

// FromSpecWith is FromSpec with an explicit loader, for tests.
func FromSpecWith(l *loader.Loader, spec, baseDir string) (Parser, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, &ParseError{Msg: "parser spec cannot be empty"}
	}
	f, err := loader.Resolve(l, builtins.Normalize(spec), builtins, baseDir)
	if err != nil {
		return nil, fmt.Errorf("parser spec %q: %w", spec, err)
	}
	return f(), nil
}
