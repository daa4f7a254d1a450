package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariel-frischer/clink/internal/registry"
)

const opencodeOK = `printf '{"type":"text","sessionID":"s","part":{"text":"ok"}}\n{"type":"step_finish","sessionID":"s","part":{"reason":"stop"}}\n'`

// testClient builds a client around a shell-script stand-in for a real CLI.
func testClient(t *testing.T, script string) *registry.Client {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub CLIs are shell scripts")
	}

	dir := t.TempDir()
	promptPath := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("You are concise."), 0o644))

	exe := filepath.Join(dir, "fake-cli")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+script+"\n"), 0o755))

	return &registry.Client{
		Name:           "fake",
		Executable:     []string{exe},
		TimeoutSeconds: 30,
		Parser:         "builtin:opencode_json",
		Roles: map[string]registry.Role{
			"default": {Name: "default", PromptPath: promptPath},
		},
		SourcePath: filepath.Join(dir, "fake.json"),
	}
}

func TestBaseAgentRun(t *testing.T) {
	client := testClient(t, opencodeOK)
	out, err := NewBase(client).Run(context.Background(), "", "say ok")
	require.NoError(t, err)

	assert.Equal(t, "ok", out.Response.Content)
	assert.Equal(t, "opencode_json", out.Parser)
	assert.Equal(t, 0, out.ExitCode)
	assert.NotEmpty(t, out.Stdout)
	assert.Positive(t, out.Duration)

	_, err = uuid.Parse(out.RunID)
	assert.NoError(t, err, "run IDs are UUIDs")
}

func TestBaseAgentArgumentOrderAndPrompt(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	// Unit-separator between args so the multi-line prompt survives intact.
	client := testClient(t, fmt.Sprintf(`printf '%%s\037' "$@" > %q
%s`, argsFile, opencodeOK))
	client.InternalArgs = []string{"--format", "json"}
	client.ConfigArgs = []string{"--verbose"}
	client.Roles["planner"] = registry.Role{
		Name:       "planner",
		PromptPath: client.Roles["default"].PromptPath,
		RoleArgs:   []string{"--plan"},
	}

	_, err := NewBase(client).Run(context.Background(), "planner", "do the thing")
	require.NoError(t, err)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSuffix(string(data), "\x1f"), "\x1f")

	require.Len(t, args, 5)
	assert.Equal(t, []string{"--format", "json", "--verbose", "--plan"}, args[:4])
	assert.Equal(t, "You are concise.\n\ndo the thing", args[4],
		"role prompt is prepended to the user prompt as the final argument")
}

func TestBaseAgentEnvMerge(t *testing.T) {
	client := testClient(t, `printf '{"type":"text","sessionID":"s","part":{"text":"'"$FAKE_TOKEN"'"}}\n{"type":"step_finish","sessionID":"s","part":{"reason":"stop"}}\n'`)
	client.Env = map[string]string{"FAKE_TOKEN": "sekret"}

	out, err := NewBase(client).Run(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "sekret", out.Response.Content)
}

func TestBaseAgentExitError(t *testing.T) {
	client := testClient(t, `echo "boom" >&2; exit 3`)

	_, err := NewBase(client).Run(context.Background(), "", "hi")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "boom", exitErr.Stderr)
}

func TestBaseAgentTimeout(t *testing.T) {
	client := testClient(t, `sleep 5`)
	client.TimeoutSeconds = 1

	_, err := NewBase(client).Run(context.Background(), "", "hi")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "fake", timeoutErr.CLI)
}

func TestBaseAgentUnknownRole(t *testing.T) {
	client := testClient(t, opencodeOK)
	_, err := NewBase(client).Run(context.Background(), "reviewer", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `role "reviewer"`)
}

func TestBaseAgentOutputCapture(t *testing.T) {
	dir := t.TempDir()
	pathFile := filepath.Join(dir, "outpath.txt")
	script := fmt.Sprintf(`out=""
for a; do
  case "$a" in --output=*) out="${a#--output=}";; esac
done
printf '{"type":"text","sessionID":"s","part":{"text":"from file"}}\n{"type":"step_finish","sessionID":"s","part":{"reason":"stop"}}\n' > "$out"
printf '%%s' "$out" > %q`, pathFile)

	client := testClient(t, script)
	client.OutputToFile = &registry.OutputCapture{FlagTemplate: "--output={path}"}

	out, err := NewBase(client).Run(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "from file", out.Response.Content)
	assert.Contains(t, out.FileContent, "from file")
	assert.Empty(t, out.Stdout)

	capturePath, err := os.ReadFile(pathFile)
	require.NoError(t, err)
	assert.NoFileExists(t, string(capturePath), "capture file is cleaned up by default")
}

func TestRecoveringAgentParsesFailureOutput(t *testing.T) {
	client := testClient(t, `printf '{"type":"result","subtype":"success","result":"rate limited","is_error":true}\n'; exit 1`)
	client.Parser = "builtin:claude_json"

	out, err := CreateAgentByName("claude", client).Run(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "rate limited", out.Response.Content)
	assert.Equal(t, 1, out.ExitCode)
	assert.Equal(t, true, out.Response.Metadata["is_error"])
}

func TestRecoveringAgentStillFailsWithoutOutput(t *testing.T) {
	client := testClient(t, `echo "hard crash" >&2; exit 2`)
	client.Parser = "builtin:claude_json"

	_, err := CreateAgentByName("claude", client).Run(context.Background(), "", "hi")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode)
}

func TestCreateAgent(t *testing.T) {
	client := testClient(t, opencodeOK)

	t.Run("empty runner means generic agent", func(t *testing.T) {
		a := CreateAgent(client)
		base, ok := a.(*BaseAgent)
		require.True(t, ok)
		assert.Nil(t, base.recover)
	})

	t.Run("builtin runner installs recovery", func(t *testing.T) {
		client := testClient(t, opencodeOK)
		client.Runner = "builtin:claude"
		a := CreateAgent(client)
		base, ok := a.(*BaseAgent)
		require.True(t, ok)
		assert.NotNil(t, base.recover)
	})

	t.Run("load failure falls back to generic agent", func(t *testing.T) {
		client := testClient(t, opencodeOK)
		client.Runner = "builtin:does-not-exist"
		a := CreateAgent(client)
		base, ok := a.(*BaseAgent)
		require.True(t, ok)
		assert.Nil(t, base.recover)
	})

	t.Run("legacy lookup is silent for unknown names", func(t *testing.T) {
		a := CreateAgentByName("unheard-of", client)
		base, ok := a.(*BaseAgent)
		require.True(t, ok)
		assert.Nil(t, base.recover)
	})
}

func TestBuiltinNames(t *testing.T) {
	assert.Equal(t, []string{"claude", "codex", "gemini"}, BuiltinNames())
}
