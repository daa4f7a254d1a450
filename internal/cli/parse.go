package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/clink/internal/parser"
)

var (
	parseSpec   string
	parseStderr string
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse captured CLI output",
	Long: `Parse captured CLI output with a named parser and print the normalized
response as JSON. Reads from the given file, or stdin when omitted.`,
	Example: `  claude -p --output-format json "hello" | clink parse --parser builtin:claude_json
  clink parse --parser builtin:codex_jsonl codex-session.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		p, err := parser.FromSpec(parseSpec, "")
		if err != nil {
			return err
		}

		resp, err := p.Parse(string(data), parseStderr)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{
			"content":  resp.Content,
			"metadata": resp.Metadata,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseSpec, "parser", "", "Parser spec, e.g. builtin:claude_json or ./parser.so:NewParser")
	parseCmd.Flags().StringVar(&parseStderr, "stderr", "", "Captured stderr to include in parsing")
	parseCmd.MarkFlagRequired("parser")
	rootCmd.AddCommand(parseCmd)
}
