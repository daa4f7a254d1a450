// Package agent executes resolved CLI clients and normalizes their output.
//
// An Agent owns one invocation lifecycle: build the argument vector from the
// client description and the selected role, run the executable with the
// merged environment under the client's timeout, and feed captured output
// through the client's parser. BaseAgent is the generic implementation;
// builtin agents for specific CLIs add error-recovery behavior on top.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ariel-frischer/clink/internal/parser"
	"github.com/ariel-frischer/clink/internal/registry"
)

// Output is the result of one agent run.
type Output struct {
	// RunID uniquely identifies this invocation in logs.
	RunID string

	// Response is the parsed, normalized CLI output.
	Response *parser.Response

	// Parser names the parser that produced Response.
	Parser string

	// ExitCode is the CLI process exit status. Builtin agents may return a
	// parsed Output with a nonzero code when the CLI still produced usable
	// output.
	ExitCode int

	// Stdout and Stderr are the raw captured streams.
	Stdout string
	Stderr string

	// FileContent is the output file's content when the client uses
	// output-to-file capture, "" otherwise.
	FileContent string

	Duration time.Duration
}

// Agent runs a CLI client with a role and a prompt.
type Agent interface {
	Name() string
	Run(ctx context.Context, roleName, prompt string) (*Output, error)
}

// Factory constructs an Agent for a resolved client. Plugin units export
// symbols of this type.
type Factory func(client *registry.Client) (Agent, error)

// ExitError reports a CLI process that exited nonzero with no usable output.
type ExitError struct {
	CLI      string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.CLI, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.CLI, e.ExitCode)
}

// TimeoutError reports a CLI process killed by the client's timeout.
type TimeoutError struct {
	CLI     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.CLI, e.Timeout)
}
