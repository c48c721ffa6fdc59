package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var practiceCmd = &cobra.Command{
	Use:   "practice <topic>",
	Short: "Generate a practice question on a topic",
	Example: `  coachai practice concurrency
  coachai practice "error handling"`,
	Args: cobra.ExactArgs(1),
	RunE: runPractice,
}

var (
	gradeQuestion string
	gradeConcept  string
)

var gradeCmd = &cobra.Command{
	Use:   "grade <answer>",
	Short: "Evaluate an answer to a practice question",
	Long: `Grade evaluates a student's answer against the question it responds to
and prints the model's feedback.

Example:
  coachai grade --question "What does a channel do?" "It passes values between goroutines"`,
	Args: cobra.ExactArgs(1),
	RunE: runGrade,
}

func init() {
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(gradeCmd)
	gradeCmd.Flags().StringVarP(&gradeQuestion, "question", "q", "", "the question being answered (required)")
	gradeCmd.Flags().StringVarP(&gradeConcept, "concept", "c", "", "concept to ground the evaluation in")
	if err := gradeCmd.MarkFlagRequired("question"); err != nil {
		panic(fmt.Sprintf("BUG: marking --question required: %v", err))
	}
}

func runPractice(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := buildService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	question, err := svc.GeneratePracticeQuestion(cmd.Context(), sessions.Current(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(question)
	return nil
}

func runGrade(cmd *cobra.Command, args []string) error {
	svc, cleanup, err := buildService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	feedback, err := svc.EvaluateAnswer(cmd.Context(), sessions.Current(), gradeQuestion, args[0], gradeConcept)
	if err != nil {
		return err
	}
	fmt.Println(feedback)
	return nil
}
