// Package cli provides the Cobra command tree for clink: inspecting
// configured CLI clients (clients, roles, show, doctor), parsing captured
// output (parse), and running a client end to end (run, watch).
package cli

import (
	"github.com/spf13/cobra"

	"github.com/ariel-frischer/clink/internal/logging"
	"github.com/ariel-frischer/clink/internal/registry"
)

var (
	flagDebug       bool
	flagConfigDir   string
	flagClientsPath string
	flagUserDir     string
	flagProjectRoot string
)

var rootCmd = &cobra.Command{
	Use:   "clink",
	Short: "One uniform interface to third-party AI CLI assistants",
	Long: `clink bridges command-line AI assistants (claude, gemini, codex, cursor,
opencode, or your own) behind one uniform interface.

Clients are declared in JSON manifests. Each manifest is merged with internal
defaults into a resolved description: executable, arguments, environment,
timeout, roles, and the parser/agent implementations for its output format.`,
	Example: `  # List configured clients and their roles
  clink clients
  clink roles gemini

  # Ask a client a question
  clink run claude "Summarize the failing test output"

  # Run with a specific role
  clink run codex --role planner "Plan the refactor of internal/parser"

  # Parse previously captured CLI output
  clink parse --parser builtin:claude_json session.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(flagDebug)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "Directory of built-in client manifests")
	rootCmd.PersistentFlags().StringVar(&flagClientsPath, "clients-config", "", "Extra manifest file or directory (overrides "+registry.ConfigPathEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&flagUserDir, "user-dir", "", "Directory of user override manifests")
	rootCmd.PersistentFlags().StringVar(&flagProjectRoot, "project-root", "", "Root for resolving relative prompt paths")
}

// registryOptions layers command-line flags over the environment-derived
// defaults.
func registryOptions() registry.Options {
	opts := registry.DefaultOptions()
	if flagConfigDir != "" {
		opts.ConfigDir = flagConfigDir
	}
	if flagClientsPath != "" {
		opts.ClientsConfigPath = flagClientsPath
	}
	if flagUserDir != "" {
		opts.UserDir = flagUserDir
	}
	if flagProjectRoot != "" {
		opts.ProjectRoot = flagProjectRoot
	}
	return opts
}

func openRegistry() (*registry.Registry, error) {
	return registry.New(registryOptions())
}
