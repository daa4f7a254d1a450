// Package registry discovers JSON client manifests, merges them with internal
// defaults, and exposes resolved CLI client descriptions.
//
// Manifests are discovered from three places, in order: the built-in conf
// directory, an optional path from CLINK_CLIENTS_CONFIG_PATH (a .json file or
// a directory of them), and the user override directory. Later files override
// earlier ones by client name, so users can replace shipped defaults without
// editing them.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/ariel-frischer/clink/internal/loader"
)

// ConfigPathEnvVar overrides/extends manifest discovery with an extra file or
// directory.
const ConfigPathEnvVar = "CLINK_CLIENTS_CONFIG_PATH"

// Options controls where a Registry looks for manifests. Fields may also be
// set through CLINK_-prefixed environment variables (see DefaultOptions).
type Options struct {
	// ConfigDir holds the built-in manifests shipped with the application.
	ConfigDir string `koanf:"config_dir"`

	// ClientsConfigPath is an extra manifest file or directory, searched
	// between ConfigDir and UserDir.
	ClientsConfigPath string `koanf:"clients_config_path"`

	// UserDir holds per-user override manifests.
	UserDir string `koanf:"user_dir"`

	// ProjectRoot anchors relative prompt paths that do not resolve against
	// a manifest's own directory. Defaults to the working directory.
	ProjectRoot string `koanf:"project_root"`
}

// DefaultOptions returns the standard search locations with any CLINK_*
// environment overrides applied (CLINK_CONFIG_DIR, CLINK_CLIENTS_CONFIG_PATH,
// CLINK_USER_DIR, CLINK_PROJECT_ROOT).
func DefaultOptions() Options {
	opts := Options{
		ConfigDir: filepath.Join("conf", "cli_clients"),
		UserDir:   filepath.Join("~", ".clink", "cli_clients"),
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("CLINK_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CLINK_"))
	}), nil); err == nil {
		_ = k.Unmarshal("", &opts)
	}

	if opts.ProjectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.ProjectRoot = wd
		}
	}
	return opts
}

// Registry holds the resolved client map. Lookups take a read lock; Reload
// builds a complete replacement map and swaps it in only when the whole
// configuration set is valid, so a bad reload never discards a good one.
type Registry struct {
	opts Options

	mu      sync.RWMutex
	clients map[string]*Client
}

// New builds a registry and performs the initial load. A configuration set
// with zero valid clients is a fatal condition.
func New(opts Options) (*Registry, error) {
	r := &Registry{opts: opts, clients: make(map[string]*Client)}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every manifest source from disk. On any error the previous
// client map stays in place.
func (r *Registry) Reload() error {
	clients := make(map[string]*Client)

	for _, path := range r.manifestFiles() {
		raw, err := readManifest(path)
		if err != nil {
			return err
		}
		if raw == nil {
			slog.Debug("skipping empty configuration file", "path", path)
			continue
		}

		client, err := resolveClient(raw, path, r.opts.ProjectRoot)
		if err != nil {
			return err
		}

		key := loader.CanonicalName(client.Name)
		if _, exists := clients[key]; exists {
			slog.Info("overriding CLI configuration", "cli", client.Name, "path", path)
		} else {
			slog.Debug("loaded CLI configuration", "cli", client.Name, "path", path)
		}
		clients[key] = client
	}

	if len(clients) == 0 {
		return &ConfigError{Message: fmt.Sprintf(
			"no CLI clients configured: ensure %s contains at least one definition or set %s",
			r.opts.ConfigDir, ConfigPathEnvVar)}
	}

	r.mu.Lock()
	r.clients = clients
	r.mu.Unlock()
	return nil
}

// ListClients returns the display names of every configured client, sorted.
func (r *Registry) ListClients() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for _, client := range r.clients {
		names = append(names, client.Name)
	}
	sort.Strings(names)
	return names
}

// ListRoles returns the sorted role names of the named client.
func (r *Registry) ListRoles(cliName string) ([]string, error) {
	client, err := r.GetClient(cliName)
	if err != nil {
		return nil, err
	}
	return client.RoleNames(), nil
}

// GetClient looks up a client by name, case-insensitively.
func (r *Registry) GetClient(cliName string) (*Client, error) {
	r.mu.RLock()
	client, ok := r.clients[loader.CanonicalName(cliName)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("CLI %q is not configured (available clients: %s)",
			cliName, strings.Join(r.ListClients(), ", "))
	}
	return client, nil
}

// manifestFiles yields every manifest path in discovery order, with duplicate
// search bases removed. A base may be a single .json file or a directory of
// them; directories contribute their files in sorted order.
func (r *Registry) manifestFiles() []string {
	bases := []string{r.opts.ConfigDir, r.opts.ClientsConfigPath, r.opts.UserDir}

	var files []string
	seen := make(map[string]bool)
	for _, base := range bases {
		if base == "" {
			continue
		}
		base = expandHome(base)
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
		if seen[base] {
			continue
		}
		seen[base] = true

		info, err := os.Stat(base)
		if err != nil {
			slog.Debug("configuration path does not exist", "path", base)
			continue
		}

		if info.Mode().IsRegular() {
			if strings.EqualFold(filepath.Ext(base), ".json") {
				files = append(files, base)
			}
			continue
		}

		entries, err := filepath.Glob(filepath.Join(base, "*.json"))
		if err != nil {
			continue
		}
		sort.Strings(entries)
		for _, entry := range entries {
			if fi, err := os.Stat(entry); err == nil && fi.Mode().IsRegular() {
				files = append(files, entry)
			}
		}
	}
	return files
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
