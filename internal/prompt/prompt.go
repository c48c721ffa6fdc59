// Package prompt assembles model-ready message structures from a query,
// retrieved lessons, and an optional image.
//
// Assembly is a pure function of its inputs: no randomness, clock reads, or
// map iteration feeds the output, so identical inputs always produce an
// identical prompt. The model layer consumes the result; this package never
// decodes or resizes images, it only carries the pixel-budget hints.
package prompt

import (
	"fmt"
	"strings"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Part kinds.
const (
	PartText  = "text"
	PartImage = "image"
)

// noDocumentsMarker is emitted when retrieval produced nothing; callers and
// tests rely on this exact text.
const noDocumentsMarker = "Retrieved documents: no documents available."

// systemInstruction establishes the assistant's grounding duty.
const systemInstruction = "You are an expert learning coach with advanced visual analysis capabilities. " +
	"Use the retrieved documents to ground answers and cite document IDs when relevant."

// ImageInput is an undecoded image supplied by the caller.
type ImageInput struct {
	Data     []byte
	MIMEType string
}

// Part is one typed content element of a message. Image parts carry the
// min/max pixel budget consumed by the model layer when resizing.
type Part struct {
	Kind      string
	Text      string
	Data      []byte
	MIMEType  string
	MinPixels int
	MaxPixels int
}

// Message is one turn of model input.
type Message struct {
	Role  string
	Parts []Part
}

// Assembler builds prompts with a fixed image pixel budget.
type Assembler struct {
	minPixels int
	maxPixels int
}

// NewAssembler creates an Assembler with the given image pixel budget.
func NewAssembler(minPixels, maxPixels int) *Assembler {
	return &Assembler{minPixels: minPixels, maxPixels: maxPixels}
}

// Explanation builds the grounded explanation prompt: a system turn with
// the grounding instruction and a user turn listing every retrieved lesson
// as ID / Topic / Similarity / Content (similarity to 4 decimal places),
// followed by the literal question. An image, when present, becomes the
// first content element of the user turn.
func (a *Assembler) Explanation(query string, matches []store.Match, image *ImageInput) []Message {
	var b strings.Builder
	if len(matches) > 0 {
		b.WriteString("Retrieved documents:\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "ID: %s\nTopic: %s\nSimilarity: %.4f\n%s\n---\n",
				m.Lesson.ID, m.Lesson.Topic, m.Similarity, m.Lesson.Content)
		}
	} else {
		b.WriteString(noDocumentsMarker)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nProvide a clear, educational explanation that directly uses the retrieved documents.", query)

	var parts []Part
	if image != nil {
		parts = append(parts, a.imagePart(image))
	}
	parts = append(parts, Part{Kind: PartText, Text: b.String()})

	return []Message{
		{Role: RoleSystem, Parts: []Part{{Kind: PartText, Text: systemInstruction}}},
		{Role: RoleUser, Parts: parts},
	}
}

// PracticeQuestion builds the prompt for generating one practice question
// about topic, grounded in the retrieved lessons when any exist.
func (a *Assembler) PracticeQuestion(topic string, matches []store.Match) []Message {
	var b strings.Builder
	if len(matches) > 0 {
		b.WriteString("Using the following materials:\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "- %s: %s\n", m.Lesson.Topic, truncate(m.Lesson.Content, 200))
		}
		fmt.Fprintf(&b, "\nCreate one practice question about %s.", topic)
	} else {
		fmt.Fprintf(&b, "Create one practice question about %s.", topic)
	}
	b.WriteString(" Make it challenging but appropriate. Provide only the question.")

	return []Message{
		{Role: RoleUser, Parts: []Part{{Kind: PartText, Text: b.String()}}},
	}
}

// AnswerEvaluation builds the prompt for grading a student answer against
// a key concept, citing retrieved documents when any exist.
func (a *Assembler) AnswerEvaluation(question, studentAnswer, concept string, matches []store.Match) []Message {
	var b strings.Builder
	if len(matches) > 0 {
		b.WriteString("Retrieved documents:\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "ID:%s Topic:%s\n%s\n", m.Lesson.ID, m.Lesson.Topic, truncate(m.Lesson.Content, 300))
		}
		b.WriteString("\nEvaluate this student answer in the context of the retrieved documents.\n")
	} else {
		b.WriteString("Evaluate this student answer.\n")
	}
	fmt.Fprintf(&b, "Question: %s\nAnswer: %s\nKey Concept: %s\n", question, studentAnswer, concept)
	if len(matches) > 0 {
		b.WriteString("Provide a score and brief feedback citing any documents used.")
	} else {
		b.WriteString("Provide a score and brief feedback.")
	}

	return []Message{
		{Role: RoleUser, Parts: []Part{{Kind: PartText, Text: b.String()}}},
	}
}

func (a *Assembler) imagePart(image *ImageInput) Part {
	mime := image.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return Part{
		Kind:      PartImage,
		Data:      image.Data,
		MIMEType:  mime,
		MinPixels: a.minPixels,
		MaxPixels: a.maxPixels,
	}
}

// truncate cuts s to at most n bytes. Lesson content is ASCII-heavy enough
// that a byte cut matches the original behavior.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
