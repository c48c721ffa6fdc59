package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/prompt"
)

var askImagePath string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question grounded in your lessons",
	Long: `Ask answers a question using the most relevant lessons as grounding.
A question, an image, or both may be supplied.

Examples:
  coachai ask "what is a goroutine?"
  coachai ask --image diagram.png "explain this diagram"
  coachai ask --image diagram.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askImagePath, "image", "i", "", "path to an image attachment")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := ""
	if len(args) > 0 {
		question = args[0]
	}

	image, err := loadImage(askImagePath)
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	scope := sessions.Current()
	result, err := svc.ProcessQuery(cmd.Context(), scope, question, image)
	if err != nil {
		return err
	}

	answer, err := svc.GenerateExplanation(cmd.Context(), scope, result.Query, result.Matches, result.Image)
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}

// loadImage reads an image file and sniffs its content type. An empty path
// yields nil.
func loadImage(path string) (*prompt.ImageInput, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%s is not an image (detected %s)", path, mimeType)
	}
	return &prompt.ImageInput{Data: data, MIMEType: mimeType}, nil
}
