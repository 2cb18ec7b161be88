package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cmd)
		if err != nil {
			return err
		}
		if err := svc.Logout(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
