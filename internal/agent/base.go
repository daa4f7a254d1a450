package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	"github.com/ariel-frischer/clink/internal/parser"
	"github.com/ariel-frischer/clink/internal/registry"
)

// recoverHook decides whether a nonzero exit should still be parsed. Builtin
// agents install hooks for CLIs that report failures on stdout in their
// normal output format.
type recoverHook func(exitCode int, stdout, stderr string) bool

// BaseAgent is the generic agent: no CLI-specific behavior, a nonzero exit
// is an error.
type BaseAgent struct {
	client  *registry.Client
	recover recoverHook
}

// NewBase creates the generic agent for a client.
func NewBase(client *registry.Client) *BaseAgent {
	return &BaseAgent{client: client}
}

func (a *BaseAgent) Name() string { return a.client.Name }

// Run executes the client's CLI with the named role and prompt, then parses
// the captured output with the client's parser.
func (a *BaseAgent) Run(ctx context.Context, roleName, prompt string) (*Output, error) {
	client := a.client

	role, err := client.Role(roleName)
	if err != nil {
		return nil, err
	}

	p, err := parser.FromSpec(client.Parser, client.ConfigDir())
	if err != nil {
		return nil, err
	}

	fullPrompt, err := composePrompt(role, prompt)
	if err != nil {
		return nil, err
	}

	capturePath, captureArgs, err := prepareCapture(client.OutputToFile)
	if err != nil {
		return nil, err
	}
	if capturePath != "" && client.OutputToFile.CleanupEnabled() {
		defer os.Remove(capturePath)
	}

	argv := make([]string, 0, len(client.Executable)+len(client.InternalArgs)+
		len(client.ConfigArgs)+len(role.RoleArgs)+len(captureArgs)+1)
	argv = append(argv, client.Executable[1:]...)
	argv = append(argv, client.InternalArgs...)
	argv = append(argv, client.ConfigArgs...)
	argv = append(argv, role.RoleArgs...)
	argv = append(argv, captureArgs...)
	argv = append(argv, fullPrompt)

	runCtx := ctx
	timeout := time.Duration(client.TimeoutSeconds) * time.Second
	if client.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, client.Executable[0], argv...)
	cmd.Dir = client.WorkingDir
	cmd.Env = mergedEnv(client.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runID := uuid.NewString()
	slog.Info("running CLI client", "cli", client.Name, "role", role.Name, "run_id", runID)
	slog.Debug("CLI invocation", "run_id", runID, "executable", client.Executable[0], "args", argv)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{CLI: client.Name, Timeout: timeout}
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("cannot run %s: %w", client.Name, runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	out := &Output{
		RunID:    runID,
		Parser:   p.Name(),
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if exitCode != 0 && (a.recover == nil || !a.recover(exitCode, out.Stdout, out.Stderr)) {
		return nil, &ExitError{CLI: client.Name, ExitCode: exitCode,
			Stderr: strings.TrimSpace(out.Stderr)}
	}

	parseInput := out.Stdout
	if capturePath != "" {
		content, err := os.ReadFile(capturePath)
		if err == nil && len(bytes.TrimSpace(content)) > 0 {
			out.FileContent = string(content)
			parseInput = out.FileContent
		}
	}

	resp, err := p.Parse(parseInput, out.Stderr)
	if err != nil {
		if exitCode != 0 {
			return nil, &ExitError{CLI: client.Name, ExitCode: exitCode,
				Stderr: strings.TrimSpace(out.Stderr)}
		}
		return nil, err
	}

	out.Response = resp
	slog.Info("CLI client finished", "cli", client.Name, "run_id", runID,
		"exit_code", exitCode, "duration", duration)
	return out, nil
}

// composePrompt prepends the role's prompt file to the user prompt.
func composePrompt(role registry.Role, prompt string) (string, error) {
	data, err := os.ReadFile(role.PromptPath)
	if err != nil {
		return "", fmt.Errorf("cannot read role prompt %s: %w", role.PromptPath, err)
	}
	rolePrompt := strings.TrimSpace(string(data))
	switch {
	case rolePrompt == "":
		return prompt, nil
	case strings.TrimSpace(prompt) == "":
		return rolePrompt, nil
	}
	return rolePrompt + "\n\n" + prompt, nil
}

// prepareCapture creates the temp output file for clients that write results
// to disk and expands the manifest's flag template with its path.
func prepareCapture(capture *registry.OutputCapture) (path string, args []string, err error) {
	if capture == nil {
		return "", nil, nil
	}
	f, err := os.CreateTemp("", "clink-output-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("cannot create output capture file: %w", err)
	}
	path = f.Name()
	f.Close()

	expanded := strings.ReplaceAll(capture.FlagTemplate, "{path}", path)
	args, err = shellquote.Split(expanded)
	if err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("invalid output flag template %q: %w", capture.FlagTemplate, err)
	}
	return path, args, nil
}

// mergedEnv layers the client env over the process env; later entries win.
func mergedEnv(clientEnv map[string]string) []string {
	env := os.Environ()
	for k, v := range clientEnv {
		env = append(env, k+"="+v)
	}
	return env
}
