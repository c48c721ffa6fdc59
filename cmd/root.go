// Package cmd provides the CoachAI command line interface.
//
// Commands:
//   - ask: answer a question grounded in stored lessons
//   - practice: generate a practice question on a topic
//   - grade: evaluate a submitted answer to a practice question
//   - topics: list the lessons visible to the current user
//   - add, remove, publish: manage the signed-in user's lessons
//   - signup: create an account
//   - migrate: apply database migrations
//   - sweep: reclaim orphaned attachment rows
//
// Credentials may be supplied via --email/--password or the COACHAI_EMAIL
// and COACHAI_PASSWORD environment variables; without them commands run
// anonymously and only public lessons are visible.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/auth"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/config"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
)

var (
	cfg      *config.Config
	logger   log.Logger
	sessions = session.NewManager()

	flagEmail    string
	flagPassword string
	flagDebug    bool
)

var rootCmd = &cobra.Command{
	Use:   "coachai",
	Short: "CoachAI - a retrieval-grounded learning coach",
	Long: `CoachAI answers questions, generates practice material, and grades
answers, grounding every response in the lesson library stored in Postgres.

Example usage:
  coachai migrate                      # Apply database migrations
  coachai ask "what is a goroutine?"   # Ask a grounded question
  coachai practice concurrency         # Generate a practice question
  coachai add "channels" -f chan.md    # Store a lesson of your own
  coachai topics                       # List visible lessons`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Version must work even when configuration is broken.
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if flagDebug || os.Getenv("DEBUG") != "" {
			level = slog.LevelDebug
		}
		logger = log.New(log.Config{Level: level})

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		return signIn(cmd)
	},
}

// signIn authenticates when credentials are present and installs the
// resulting scope; otherwise the manager stays anonymous.
func signIn(cmd *cobra.Command) error {
	// signup consumes the credentials itself; signing in first would
	// fail against an account that does not exist yet.
	if cmd.Name() == "signup" {
		return nil
	}

	email := flagEmail
	password := flagPassword
	if email == "" {
		email = os.Getenv("COACHAI_EMAIL")
	}
	if password == "" {
		password = os.Getenv("COACHAI_PASSWORD")
	}
	if email == "" || password == "" {
		return nil
	}

	client := auth.NewClient(cfg.AuthURL, cfg.AuthAPIKey, logger)
	sess, err := client.SignIn(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	scope := sess.Scope()
	sessions.SetContext(&scope)
	logger.Debug("signed in", "user_id", sess.UserID)
	return nil
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEmail, "email", "", "account email (or COACHAI_EMAIL)")
	rootCmd.PersistentFlags().StringVar(&flagPassword, "password", "", "account password (or COACHAI_PASSWORD)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}
