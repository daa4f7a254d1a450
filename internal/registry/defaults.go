package registry

// DefaultTimeoutSeconds applies when neither the manifest nor the internal
// defaults specify a timeout.
const DefaultTimeoutSeconds = 1800

// internalDefault carries the built-in knowledge about one supported CLI:
// how to invoke it for machine-readable output and which parser/agent
// understand it. Manifests override any of these fields.
type internalDefault struct {
	command           string
	additionalArgs    []string
	env               map[string]string
	timeoutSeconds    int
	parser            string
	runner            string
	defaultRolePrompt string
}

// internalDefaults is keyed by lowercase CLI name. A manifest whose name is
// absent here describes a custom CLI and must be self-contained.
var internalDefaults = map[string]internalDefault{
	"claude": {
		command:           "claude",
		additionalArgs:    []string{"--print", "--output-format", "json"},
		parser:            "builtin:claude_json",
		runner:            "builtin:claude",
		timeoutSeconds:    DefaultTimeoutSeconds,
		defaultRolePrompt: "conf/prompts/default.txt",
	},
	"gemini": {
		command:           "gemini",
		additionalArgs:    []string{"-o", "json"},
		parser:            "builtin:gemini_json",
		runner:            "builtin:gemini",
		timeoutSeconds:    DefaultTimeoutSeconds,
		defaultRolePrompt: "conf/prompts/default.txt",
	},
	"codex": {
		command:           "codex",
		additionalArgs:    []string{"exec", "--json"},
		parser:            "builtin:codex_jsonl",
		runner:            "builtin:codex",
		timeoutSeconds:    DefaultTimeoutSeconds,
		defaultRolePrompt: "conf/prompts/default.txt",
	},
	"cursor": {
		command:           "cursor-agent",
		additionalArgs:    []string{"--print", "--output-format", "stream-json"},
		parser:            "builtin:cursor_ndjson",
		timeoutSeconds:    DefaultTimeoutSeconds,
		defaultRolePrompt: "conf/prompts/default.txt",
	},
	"opencode": {
		command:           "opencode",
		additionalArgs:    []string{"run", "--format", "json"},
		parser:            "builtin:opencode_json",
		timeoutSeconds:    DefaultTimeoutSeconds,
		defaultRolePrompt: "conf/prompts/default.txt",
	},
}
