package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ahmed-Ali-Salman/CoachAI/db"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/record"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		fmt.Println("Migrations applied.")
		return nil
	},
}

var sweepGrace time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim orphaned attachment rows",
	Long: `Sweep deletes attachments whose query was never written, along with
their stored blobs. Rows younger than the grace window are left alone so
in-flight writes are never reclaimed.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().DurationVar(&sweepGrace, "grace", time.Hour, "minimum age before an orphan is reclaimed")
}

func runSweep(cmd *cobra.Command, args []string) error {
	pg, cleanup, err := buildStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	recorder := record.New(pg, nil, cfg.StorageBucket, logger.With("component", "record"))

	n, err := recorder.SweepOrphans(cmd.Context(), sweepGrace)
	if err != nil {
		return fmt.Errorf("sweeping orphans: %w", err)
	}
	fmt.Printf("Reclaimed %d orphaned attachment(s).\n", n)
	return nil
}
