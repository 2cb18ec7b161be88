package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the current GitHub API rate limit",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cmd)
		if err != nil {
			return err
		}
		if err := svc.Initialize(cmd.Context()); err != nil {
			return err
		}

		snap, err := svc.Client().GetRateLimit(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Core API: %d/%d remaining\n", snap.Remaining, snap.Limit)
		if !snap.ResetAt.IsZero() {
			fmt.Printf("Resets at %s (in %s)\n",
				snap.ResetAt.Local().Format(time.Kitchen),
				time.Until(snap.ResetAt).Round(time.Second))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)
}
