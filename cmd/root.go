package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markb/pagelift/internal/deploy"
	"github.com/markb/pagelift/internal/log"
	"github.com/markb/pagelift/internal/store"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

// defaultRedirectURI is a loopback address registered with the OAuth app.
const defaultRedirectURI = "http://127.0.0.1:8976/callback"

var rootCmd = &cobra.Command{
	Use:     "pagelift",
	Short:   "Publish generated sites to GitHub Pages",
	Long:    `Authenticates against GitHub without a client secret (PKCE or device flow) and syncs a set of files to a repository published via GitHub Pages.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		log.Init(&log.Config{Level: level, Format: format})
	},
}

// registry keeps one orchestrator per (clientId, redirectUri) so commands
// and any embedding code never construct duplicates.
var registry = deploy.NewRegistry()

func init() {
	rootCmd.SetVersionTemplate("pagelift version {{.Version}}\n")
	rootCmd.PersistentFlags().String("log-level", envOr("PAGELIFT_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", envOr("PAGELIFT_LOG_FORMAT", "text"), "log format (text, json)")
	rootCmd.PersistentFlags().String("client-id", os.Getenv("PAGELIFT_CLIENT_ID"), "GitHub OAuth app client ID")
	rootCmd.PersistentFlags().String("redirect-uri", envOr("PAGELIFT_REDIRECT_URI", defaultRedirectURI), "OAuth redirect URI (loopback)")
	rootCmd.PersistentFlags().String("state-dir", os.Getenv("PAGELIFT_STATE_DIR"), "directory for persisted auth state")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envOr returns the environment value or a default. Flag values win over
// both because the env value is the flag default.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// stateDir resolves where the session database lives.
func stateDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("state-dir"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "pagelift"), nil
}

// buildService constructs (or fetches) the orchestrator for the configured
// client ID and redirect URI, backed by the persistent store.
func buildService(cmd *cobra.Command) (*deploy.Service, error) {
	clientID, _ := cmd.Flags().GetString("client-id")
	redirectURI, _ := cmd.Flags().GetString("redirect-uri")

	dir, err := stateDir(cmd)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	st, err := store.OpenSQLite(filepath.Join(dir, "auth.db"))
	if err != nil {
		return nil, err
	}
	if err := st.CleanupExpired(); err != nil {
		log.Warn("cleanup expired auth state", "err", err)
	}

	return registry.GetOrCreate(deploy.Config{
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Store:       st,
	}), nil
}
