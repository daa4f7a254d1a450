package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rolesCmd = &cobra.Command{
	Use:   "roles <cli>",
	Short: "List the roles of a configured client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		client, err := reg.GetClient(args[0])
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		for _, name := range client.RoleNames() {
			role := client.Roles[name]
			bold.Print(name)
			if role.Description != "" {
				fmt.Printf("  (%s)", role.Description)
			}
			fmt.Println()
			fmt.Printf("  prompt: %s\n", role.PromptPath)
			if len(role.RoleArgs) > 0 {
				fmt.Printf("  args:   %v\n", role.RoleArgs)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rolesCmd)
}
