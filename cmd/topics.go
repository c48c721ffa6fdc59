package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the lessons visible to you",
	Long: `Topics lists every lesson the current user can see: all public lessons
plus, when signed in, the user's private ones.`,
	Args: cobra.NoArgs,
	RunE: runTopics,
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}

func runTopics(cmd *cobra.Command, args []string) error {
	pg, cleanup, err := buildStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	lessons, err := pg.ListLessons(cmd.Context(), sessions.Current())
	if err != nil {
		return fmt.Errorf("listing lessons: %w", err)
	}

	if len(lessons) == 0 {
		fmt.Println("No lessons found.")
		return nil
	}
	for _, l := range lessons {
		fmt.Printf("%s  %-10s %s\n", l.ID, l.Visibility, l.Topic)
	}
	return nil
}
