package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

var (
	addContent string
	addFile    string
	addSubject string
	addLevel   string
	addPublic  bool

	publishPrivate bool
)

var addCmd = &cobra.Command{
	Use:   "add <topic>",
	Short: "Add a lesson to your library",
	Long: `Add stores a new lesson under the signed-in user, embeds its content,
and makes it retrievable immediately. Lessons start private unless
--public is given.

Example:
  coachai add "worker pools" --file lessons/worker-pools.md --subject go --level intermediate`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <lesson-id>",
	Short: "Delete one of your lessons",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var publishCmd = &cobra.Command{
	Use:   "publish <lesson-id>",
	Short: "Make one of your lessons public",
	Long: `Publish makes a lesson visible to every user. With --private the
lesson is withdrawn to owner-only visibility instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(publishCmd)

	addCmd.Flags().StringVarP(&addContent, "content", "c", "", "lesson content text")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "read lesson content from a file")
	addCmd.Flags().StringVar(&addSubject, "subject", "", "subject classification")
	addCmd.Flags().StringVar(&addLevel, "level", "", "difficulty level")
	addCmd.Flags().BoolVar(&addPublic, "public", false, "make the lesson public immediately")

	publishCmd.Flags().BoolVar(&publishPrivate, "private", false, "withdraw the lesson to private visibility")
}

// requireSignIn guards lesson mutations: an anonymous scope owns nothing
// and could never manage the rows it creates.
func requireSignIn() error {
	if sessions.Current().Anonymous() {
		return errors.New("sign in required: supply --email/--password or COACHAI_EMAIL/COACHAI_PASSWORD")
	}
	return nil
}

// lessonContent resolves the add command's content from --content or
// --file, exactly one of which must yield non-blank text.
func lessonContent() (string, error) {
	if addContent != "" && addFile != "" {
		return "", errors.New("use either --content or --file, not both")
	}
	content := addContent
	if addFile != "" {
		data, err := os.ReadFile(addFile)
		if err != nil {
			return "", fmt.Errorf("reading lesson file: %w", err)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return "", errors.New("lesson content required: supply --content or --file")
	}
	return content, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	if err := requireSignIn(); err != nil {
		return err
	}
	content, err := lessonContent()
	if err != nil {
		return err
	}

	pg, cleanup, err := buildStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	vectors, err := buildEmbedder().Embed(cmd.Context(), []string{content})
	if err != nil {
		return fmt.Errorf("embedding lesson content: %w", err)
	}

	visibility := store.VisibilityPrivate
	if addPublic {
		visibility = store.VisibilityPublic
	}
	lesson := store.Lesson{
		Topic:      args[0],
		Content:    content,
		Subject:    addSubject,
		Level:      addLevel,
		Visibility: visibility,
	}
	id, err := pg.InsertLesson(cmd.Context(), sessions.Current(), lesson, vectors[0])
	if err != nil {
		return err
	}
	fmt.Printf("Added %s lesson %s: %s\n", visibility, id, lesson.Topic)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := requireSignIn(); err != nil {
		return err
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid lesson id %q: %w", args[0], err)
	}

	pg, cleanup, err := buildStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := pg.DeleteLesson(cmd.Context(), sessions.Current(), id); err != nil {
		if errors.Is(err, store.ErrNotOwner) {
			return fmt.Errorf("lesson %s does not exist or is not yours", id)
		}
		return err
	}
	fmt.Printf("Removed lesson %s.\n", id)
	return nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	if err := requireSignIn(); err != nil {
		return err
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid lesson id %q: %w", args[0], err)
	}

	pg, cleanup, err := buildStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	visibility := store.VisibilityPublic
	if publishPrivate {
		visibility = store.VisibilityPrivate
	}
	if err := pg.SetLessonVisibility(cmd.Context(), sessions.Current(), id, visibility); err != nil {
		if errors.Is(err, store.ErrNotOwner) {
			return fmt.Errorf("lesson %s does not exist or is not yours", id)
		}
		return err
	}
	fmt.Printf("Lesson %s is now %s.\n", id, visibility)
	return nil
}
