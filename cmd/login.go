package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/markb/pagelift/internal/deploy"
	"github.com/markb/pagelift/internal/oauth"
	"github.com/markb/pagelift/internal/server"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to GitHub",
	Long: `Signs in with the PKCE browser flow by default. Use --device on hosts
without a browser, or --with-token to paste a personal access token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cmd)
		if err != nil {
			return err
		}

		useDevice, _ := cmd.Flags().GetBool("device")
		withToken, _ := cmd.Flags().GetBool("with-token")

		ctx := cmd.Context()
		switch {
		case withToken:
			return loginWithToken(ctx, svc)
		case useDevice:
			return loginWithDeviceFlow(ctx, svc)
		default:
			return loginWithBrowser(ctx, svc, cmd)
		}
	},
}

func init() {
	loginCmd.Flags().Bool("device", false, "use the device authorization flow")
	loginCmd.Flags().Bool("with-token", false, "authenticate with a pasted personal access token")
	rootCmd.AddCommand(loginCmd)
}

func loginWithBrowser(ctx context.Context, svc *deploy.Service, cmd *cobra.Command) error {
	redirectURI, _ := cmd.Flags().GetString("redirect-uri")

	cb, err := server.New(redirectURI)
	if err != nil {
		return err
	}
	if err := cb.Start(); err != nil {
		return err
	}
	defer cb.Shutdown(context.Background())

	authURL, err := svc.AuthorizationURL()
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in your browser to sign in:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Println("Waiting for the browser redirect...")

	// The authorization attempt itself expires after five minutes; there
	// is no point waiting longer than that.
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	callbackURL, err := cb.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("no callback received: %w", err)
	}

	session, err := svc.CompleteAuthorization(ctx, callbackURL)
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s\n", session.User.Login)
	return nil
}

func loginWithDeviceFlow(ctx context.Context, svc *deploy.Service) error {
	auth, err := svc.StartDeviceLogin(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Visit %s and enter the code:\n\n", auth.VerificationURI)
	fmt.Printf("  %s\n\n", auth.UserCode)
	fmt.Printf("The code expires in %s. Waiting for authorization...\n", auth.ExpiresIn.Round(time.Second))

	session, err := svc.FinishDeviceLogin(ctx, auth)
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s\n", session.User.Login)
	return nil
}

func loginWithToken(ctx context.Context, svc *deploy.Service) error {
	var token string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Paste your personal access token (input hidden): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		token = string(raw)
	} else {
		// Piped input, e.g. `pagelift login --with-token < token.txt`.
		raw, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && raw == "" {
			return fmt.Errorf("read token from stdin: %w", err)
		}
		token = raw
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("no token provided")
	}

	session, err := svc.AdoptToken(ctx, &oauth.Token{AccessToken: token})
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s\n", session.User.Login)
	return nil
}
