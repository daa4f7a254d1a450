package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List configured CLI clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		for _, name := range reg.ListClients() {
			client, err := reg.GetClient(name)
			if err != nil {
				return err
			}
			bold.Println(client.Name)
			fmt.Printf("  command: %s\n", strings.Join(client.Executable, " "))
			fmt.Printf("  parser:  %s\n", client.Parser)
			if client.Runner != "" {
				fmt.Printf("  runner:  %s\n", client.Runner)
			}
			fmt.Printf("  roles:   %s\n", strings.Join(client.RoleNames(), ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clientsCmd)
}
