package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ariel-frischer/clink/internal/parser"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that configured clients are usable",
	Long: `Check every configured client: the executable must be on PATH, the parser
spec must resolve, and each role's prompt file must exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}

		pass := color.New(color.FgGreen).SprintFunc()
		fail := color.New(color.FgRed).SprintFunc()
		healthy := true

		for _, name := range reg.ListClients() {
			client, err := reg.GetClient(name)
			if err != nil {
				return err
			}
			fmt.Println(client.Name)

			if _, err := exec.LookPath(client.Executable[0]); err != nil {
				fmt.Printf("  %s executable %q not found in PATH\n", fail("✗"), client.Executable[0])
				healthy = false
			} else {
				fmt.Printf("  %s executable %q\n", pass("✓"), client.Executable[0])
			}

			if _, err := parser.FromSpec(client.Parser, client.ConfigDir()); err != nil {
				fmt.Printf("  %s parser %s: %v\n", fail("✗"), client.Parser, err)
				healthy = false
			} else {
				fmt.Printf("  %s parser %s\n", pass("✓"), client.Parser)
			}

			for _, roleName := range client.RoleNames() {
				role := client.Roles[roleName]
				if _, err := os.Stat(role.PromptPath); err != nil {
					fmt.Printf("  %s role %q prompt missing: %s\n", fail("✗"), roleName, role.PromptPath)
					healthy = false
				} else {
					fmt.Printf("  %s role %q\n", pass("✓"), roleName)
				}
			}
		}

		if !healthy {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
