package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/auth"
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Signup registers a new account with the credentials from
--email/--password or COACHAI_EMAIL/COACHAI_PASSWORD. Depending on the
auth endpoint's configuration the account is usable immediately or after
email confirmation.`,
	Args: cobra.NoArgs,
	RunE: runSignup,
}

func init() {
	rootCmd.AddCommand(signupCmd)
}

func runSignup(cmd *cobra.Command, args []string) error {
	email := flagEmail
	password := flagPassword
	if email == "" {
		email = os.Getenv("COACHAI_EMAIL")
	}
	if password == "" {
		password = os.Getenv("COACHAI_PASSWORD")
	}
	if email == "" || password == "" {
		return errors.New("signup requires --email and --password (or COACHAI_EMAIL/COACHAI_PASSWORD)")
	}

	client := auth.NewClient(cfg.AuthURL, cfg.AuthAPIKey, logger)
	sess, err := client.SignUp(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("signing up: %w", err)
	}

	if sess.AccessToken == "" {
		fmt.Println("Account created. Confirm your email, then sign in with --email/--password.")
		return nil
	}
	fmt.Printf("Account created and signed in as %s.\n", sess.UserID)
	return nil
}
