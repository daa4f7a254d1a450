package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/ariel-frischer/clink/internal/loader"
)

// Role is a resolved role: its prompt file exists on disk.
type Role struct {
	Name        string
	PromptPath  string
	RoleArgs    []string
	Description string
}

// Client is the canonical runtime description of one CLI client after
// merging its manifest with internal defaults. Parser is always non-empty;
// Runner may be empty, meaning the generic agent. Roles always contains
// "default".
type Client struct {
	Name           string
	Executable     []string
	WorkingDir     string
	InternalArgs   []string
	ConfigArgs     []string
	Env            map[string]string
	TimeoutSeconds int
	Parser         string
	Runner         string
	Roles          map[string]Role
	OutputToFile   *OutputCapture

	// SourcePath is the manifest file that produced this client; relative
	// plugin paths in Parser/Runner specs resolve against its directory.
	SourcePath string
}

// ConfigDir returns the directory of the manifest that defined this client,
// or "" when unknown.
func (c *Client) ConfigDir() string {
	if c.SourcePath == "" {
		return ""
	}
	return filepath.Dir(c.SourcePath)
}

// RoleNames returns the client's role names, sorted.
func (c *Client) RoleNames() []string {
	names := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Role returns the named role; an empty name selects "default".
func (c *Client) Role(name string) (Role, error) {
	key := name
	if key == "" {
		key = "default"
	}
	role, ok := c.Roles[key]
	if !ok {
		return Role{}, fmt.Errorf("role %q not configured for CLI %q (available: %s)",
			name, c.Name, strings.Join(c.RoleNames(), ", "))
	}
	return role, nil
}

// resolveClient merges a raw manifest with internal defaults into a Client.
// sourcePath is the manifest file; projectRoot anchors the fallback for
// relative prompt paths.
func resolveClient(raw *ClientConfig, sourcePath, projectRoot string) (*Client, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, &ConfigError{File: sourcePath, Field: "name", Message: "missing a 'name' field"}
	}

	defaults, known := internalDefaults[loader.CanonicalName(name)]
	isCustom := !known

	if isCustom {
		if err := validateCustomClient(raw, sourcePath); err != nil {
			return nil, err
		}
	}

	command := raw.Command
	if command == "" {
		command = defaults.command
	}
	if command == "" {
		return nil, &ConfigError{File: sourcePath, Field: "command",
			Message: fmt.Sprintf("CLI %q must specify a 'command'", name)}
	}
	executable, err := shellquote.Split(command)
	if err != nil || len(executable) == 0 {
		return nil, &ConfigError{File: sourcePath, Field: "command",
			Message: fmt.Sprintf("cannot tokenize command %q: %v", command, err)}
	}

	var internalArgs []string
	if isCustom || len(raw.InternalArgs) > 0 {
		internalArgs = append(internalArgs, raw.InternalArgs...)
	} else {
		internalArgs = append(internalArgs, defaults.additionalArgs...)
	}

	timeout := raw.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaults.timeoutSeconds
	}
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	parserSpec := raw.Parser
	if parserSpec == "" {
		parserSpec = defaults.parser
	}
	if parserSpec == "" {
		return nil, &ConfigError{File: sourcePath, Field: "parser",
			Message: fmt.Sprintf("CLI %q must define a 'parser' field or have internal defaults", name)}
	}

	runnerSpec := raw.Runner
	if runnerSpec == "" {
		runnerSpec = defaults.runner
	}

	env := make(map[string]string, len(defaults.env)+len(raw.Env))
	for k, v := range defaults.env {
		env[k] = v
	}
	for k, v := range raw.Env {
		env[k] = v
	}

	baseDir := filepath.Dir(sourcePath)

	workingDir := ""
	if raw.WorkingDir != "" {
		workingDir = resolvePath(raw.WorkingDir, baseDir, projectRoot)
	}

	defaultPrompt := raw.DefaultRolePrompt
	if defaultPrompt == "" {
		defaultPrompt = defaults.defaultRolePrompt
	}

	roles, err := resolveRoles(raw, name, defaultPrompt, baseDir, projectRoot, sourcePath)
	if err != nil {
		return nil, err
	}

	return &Client{
		Name:           name,
		Executable:     executable,
		WorkingDir:     workingDir,
		InternalArgs:   internalArgs,
		ConfigArgs:     append([]string{}, raw.AdditionalArgs...),
		Env:            env,
		TimeoutSeconds: timeout,
		Parser:         parserSpec,
		Runner:         runnerSpec,
		Roles:          roles,
		OutputToFile:   raw.OutputToFile,
		SourcePath:     sourcePath,
	}, nil
}

// validateCustomClient checks the fields a manifest must carry when its name
// has no internal defaults. All missing fields are reported in one error.
func validateCustomClient(raw *ClientConfig, sourcePath string) error {
	var missing []string
	if raw.Command == "" {
		missing = append(missing, "'command' field is required for custom CLIs")
	}
	if raw.Parser == "" {
		missing = append(missing, "'parser' field is required for custom CLIs")
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigError{File: sourcePath,
		Message: fmt.Sprintf("custom CLI %q is missing required fields: %s",
			raw.Name, strings.Join(missing, "; "))}
}

// resolveRoles materializes the role map: a "default" role is synthesized
// from the default role prompt when absent, a declared "default" without its
// own prompt is backfilled, and every prompt file must exist.
func resolveRoles(raw *ClientConfig, cliName, defaultPrompt, baseDir, projectRoot, sourcePath string) (map[string]Role, error) {
	declared := make(map[string]RoleConfig, len(raw.Roles)+1)
	for name, cfg := range raw.Roles {
		declared[name] = cfg
	}

	if def, ok := declared["default"]; !ok {
		declared["default"] = RoleConfig{PromptPath: defaultPrompt}
	} else if def.PromptPath == "" && defaultPrompt != "" {
		def.PromptPath = defaultPrompt
		declared["default"] = def
	}

	resolved := make(map[string]Role, len(declared))
	for roleName, cfg := range declared {
		promptPath := cfg.PromptPath
		if promptPath == "" {
			promptPath = defaultPrompt
		}
		if promptPath == "" {
			return nil, &ConfigError{File: sourcePath,
				Message: fmt.Sprintf("role %q for CLI %q must define a prompt_path", roleName, cliName)}
		}
		prompt := resolvePath(promptPath, baseDir, projectRoot)
		if _, err := os.Stat(prompt); err != nil {
			return nil, &ConfigError{File: sourcePath,
				Message: fmt.Sprintf("prompt file not found: %s", prompt)}
		}
		resolved[roleName] = Role{
			Name:        roleName,
			PromptPath:  prompt,
			RoleArgs:    append([]string{}, cfg.RoleArgs...),
			Description: cfg.Description,
		}
	}
	return resolved, nil
}

// resolvePath anchors a relative path at the manifest directory when the
// result exists there, falling back to the project root. Absolute paths pass
// through unchanged.
func resolvePath(candidate, baseDir, projectRoot string) string {
	if filepath.IsAbs(candidate) {
		return filepath.Clean(candidate)
	}
	local := filepath.Join(baseDir, candidate)
	if abs, err := filepath.Abs(local); err == nil {
		local = abs
	}
	if _, err := os.Stat(local); err == nil {
		return local
	}
	fallback := filepath.Join(projectRoot, candidate)
	if abs, err := filepath.Abs(fallback); err == nil {
		return abs
	}
	return fallback
}
