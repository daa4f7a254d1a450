package agent

import (
	"log/slog"
	"strings"

	"github.com/ariel-frischer/clink/internal/loader"
	"github.com/ariel-frischer/clink/internal/registry"
)

var builtins = loader.NewRegistry[Factory]()

// Builtins returns the registry of builtin agent factories.
func Builtins() *loader.Registry[Factory] { return builtins }

// BuiltinNames returns the sorted names of all builtin agents.
func BuiltinNames() []string { return builtins.Names() }

// CreateAgent instantiates the agent named by the client's runner spec. An
// absent spec means the generic agent. Any load or construction failure is
// downgraded to a warning and the generic agent is returned: a degraded run
// beats rejecting the request.
func CreateAgent(client *registry.Client) Agent {
	return CreateAgentWith(loader.Default, client)
}

// CreateAgentWith is CreateAgent with an explicit loader, for tests.
func CreateAgentWith(l *loader.Loader, client *registry.Client) Agent {
	spec := strings.TrimSpace(client.Runner)
	if spec == "" {
		return NewBase(client)
	}

	factory, err := loader.Resolve(l, builtins.Normalize(spec), builtins, client.ConfigDir())
	if err != nil {
		slog.Warn("falling back to generic agent", "cli", client.Name, "runner", spec, "error", err)
		return NewBase(client)
	}

	agent, err := factory(client)
	if err != nil {
		slog.Warn("agent construction failed, falling back to generic agent",
			"cli", client.Name, "runner", spec, "error", err)
		return NewBase(client)
	}
	return agent
}

// CreateAgentByName is the legacy entry point: a direct case-insensitive
// builtin lookup with a silent generic fallback for unknown names.
func CreateAgentByName(name string, client *registry.Client) Agent {
	factory, ok := builtins.Lookup(name)
	if !ok {
		return NewBase(client)
	}
	agent, err := factory(client)
	if err != nil {
		slog.Warn("agent construction failed, falling back to generic agent",
			"cli", client.Name, "agent", name, "error", err)
		return NewBase(client)
	}
	return agent
}

// newRecoveringFactory builds a factory whose agent still parses stdout on a
// nonzero exit when the output looks like the CLI's structured format. The
// supported CLIs report request failures as JSON on stdout while exiting
// nonzero, so the parsed error payload is more useful than a bare exit code.
func newRecoveringFactory(marker string) Factory {
	return func(client *registry.Client) (Agent, error) {
		a := NewBase(client)
		a.recover = func(exitCode int, stdout, stderr string) bool {
			trimmed := strings.TrimSpace(stdout)
			if trimmed == "" {
				return false
			}
			if marker != "" && !strings.Contains(trimmed, marker) {
				return false
			}
			return strings.HasPrefix(trimmed, "{")
		}
		return a, nil
	}
}

func init() {
	builtins.Register("claude", newRecoveringFactory(`"type"`))
	builtins.Register("gemini", newRecoveringFactory(""))
	builtins.Register("codex", newRecoveringFactory(`"type"`))
}
