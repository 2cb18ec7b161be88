package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in GitHub account",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cmd)
		if err != nil {
			return err
		}
		if err := svc.Initialize(cmd.Context()); err != nil {
			return err
		}

		session, ok := svc.CurrentSession()
		if !ok {
			fmt.Println("Not signed in. Run 'pagelift login'.")
			return nil
		}

		fmt.Printf("Signed in as %s\n", session.User.Login)
		if session.User.Email != "" {
			fmt.Printf("  email:  %s\n", session.User.Email)
		}
		if len(session.Scopes) > 0 {
			fmt.Printf("  scopes: %s\n", strings.Join(session.Scopes, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
