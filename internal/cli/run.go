package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ariel-frischer/clink/internal/agent"
)

var (
	runRole     string
	runShowMeta bool
)

var runCmd = &cobra.Command{
	Use:   "run <cli> <prompt>",
	Short: "Run a configured client with a prompt",
	Example: `  clink run claude "Explain this stack trace"
  clink run gemini --role planner "Plan the migration to v2"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		client, err := reg.GetClient(args[0])
		if err != nil {
			return err
		}

		a := agent.CreateAgent(client)

		var spin *spinner.Spinner
		if term.IsTerminal(int(os.Stderr.Fd())) {
			spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			// Stderr keeps the spinner out of piped stdout.
			spin.Writer = os.Stderr
			spin.Suffix = fmt.Sprintf(" running %s...", client.Name)
			spin.Start()
		}

		out, err := a.Run(cmd.Context(), runRole, args[1])
		if spin != nil {
			spin.Stop()
		}
		if err != nil {
			return err
		}

		fmt.Println(out.Response.Content)

		if runShowMeta {
			meta := color.New(color.Faint)
			meta.Fprintf(os.Stderr, "run_id=%s parser=%s exit_code=%d duration=%s\n",
				out.RunID, out.Parser, out.ExitCode, out.Duration.Round(time.Millisecond))
			if tokens, ok := out.Response.Metadata["input_tokens"]; ok {
				meta.Fprintf(os.Stderr, "input_tokens=%v output_tokens=%v\n",
					tokens, out.Response.Metadata["output_tokens"])
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runRole, "role", "r", "", "Role to run with (defaults to the client's default role)")
	runCmd.Flags().BoolVar(&runShowMeta, "meta", false, "Print run metadata to stderr")
	rootCmd.AddCommand(runCmd)
}
