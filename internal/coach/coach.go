// Package coach is the orchestration facade: it validates incoming
// questions, retrieves grounding material, assembles prompts, calls the
// model, and records the interaction.
//
// Persistence is strictly best-effort here. The synchronous answer the
// user is waiting on is never blocked or failed by a write that did not
// land; those outcomes are logged and discarded.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/model"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/prompt"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/record"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/retrieval"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

// ErrNoInput indicates a query with neither text nor image.
var ErrNoInput = errors.New("no question text or image provided")

// Retriever finds lessons relevant to a query.
type Retriever interface {
	FindRelevant(ctx context.Context, scope session.Scope, query string, opts ...retrieval.SearchOption) ([]store.Match, error)
}

// Recorder persists interactions after the response is produced.
type Recorder interface {
	StoreUserQuery(ctx context.Context, scope session.Scope, text string, attachments []record.Upload) (uuid.UUID, error)
	StoreGeneratedQuestion(ctx context.Context, lessonID, queryID *uuid.UUID, questionText, authorModel string) (uuid.UUID, error)
	RecordAnswer(ctx context.Context, scope session.Scope, questionID *uuid.UUID, userAnswer, modelAnswer string) (uuid.UUID, error)
	ResolveLessonByTopic(ctx context.Context, scope session.Scope, topic string) *uuid.UUID
}

// Service wires retrieval, prompting, generation, and recording together.
type Service struct {
	retriever Retriever
	generator model.Generator
	recorder  Recorder
	assembler *prompt.Assembler
	modelName string
	logger    log.Logger
}

// New creates the facade. recorder may be nil when persistence is not
// configured; interactions are then simply not recorded.
func New(retriever Retriever, generator model.Generator, recorder Recorder, assembler *prompt.Assembler, modelName string, logger log.Logger) (*Service, error) {
	if retriever == nil {
		return nil, errors.New("coach: retriever is required")
	}
	if generator == nil {
		return nil, errors.New("coach: generator is required")
	}
	if assembler == nil {
		return nil, errors.New("coach: assembler is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		recorder:  recorder,
		assembler: assembler,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// QueryResult holds the validated query and retrieval output of
// ProcessQuery, ready to be handed to GenerateExplanation.
type QueryResult struct {
	Query   string
	Image   *prompt.ImageInput
	Matches []store.Match
}

// ProcessQuery validates an incoming question and retrieves grounding
// material for it. Text and image are both optional but not both absent.
func (s *Service) ProcessQuery(ctx context.Context, scope session.Scope, text string, image *prompt.ImageInput) (*QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return nil, ErrNoInput
	}

	query := text
	if query == "" {
		query = "Explain the content of this image."
	}

	matches, err := s.retriever.FindRelevant(ctx, scope, query)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	return &QueryResult{Query: query, Image: image, Matches: matches}, nil
}

// GenerateExplanation produces a grounded answer for a query. matches may
// be nil, in which case retrieval runs here. An empty match set does not
// short-circuit: the model is still invoked and told no documents are
// available.
func (s *Service) GenerateExplanation(ctx context.Context, scope session.Scope, query string, matches []store.Match, image *prompt.ImageInput) (string, error) {
	if matches == nil {
		found, err := s.retriever.FindRelevant(ctx, scope, query)
		if err != nil {
			return "", fmt.Errorf("retrieving context: %w", err)
		}
		matches = found
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	messages := s.assembler.Explanation(query, matches, image)
	answer, err := s.generator.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generating explanation: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.recordQuery(ctx, scope, query, image)
	return answer, nil
}

// GeneratePracticeQuestion produces one practice question on a topic,
// grounded in the lessons visible to the scope.
func (s *Service) GeneratePracticeQuestion(ctx context.Context, scope session.Scope, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrNoInput
	}

	matches, err := s.retriever.FindRelevant(ctx, scope, topic)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	messages := s.assembler.PracticeQuestion(topic, matches)
	question, err := s.generator.Generate(ctx, messages,
		model.WithMaxTokens(256),
		model.WithTemperature(0.8))
	if err != nil {
		return "", fmt.Errorf("generating practice question: %w", err)
	}

	if s.recorder != nil {
		lessonID := s.recorder.ResolveLessonByTopic(ctx, scope, topic)
		if _, err := s.recorder.StoreGeneratedQuestion(ctx, lessonID, nil, question, s.modelName); err != nil {
			s.logger.Warn("failed to store generated question", "topic", topic, "error", err)
		}
	}

	return question, nil
}

// EvaluateAnswer grades a student's answer to a practice question and
// returns the model's feedback.
func (s *Service) EvaluateAnswer(ctx context.Context, scope session.Scope, question, studentAnswer, concept string) (string, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(studentAnswer) == "" {
		return "", ErrNoInput
	}

	// Grounding follows the question itself; the key concept serves only
	// as a fallback query when no question text is available.
	groundingQuery := strings.TrimSpace(question)
	if groundingQuery == "" {
		groundingQuery = concept
	}
	matches, err := s.retriever.FindRelevant(ctx, scope, groundingQuery)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	messages := s.assembler.AnswerEvaluation(question, studentAnswer, concept, matches)
	feedback, err := s.generator.Generate(ctx, messages, model.WithMaxTokens(512))
	if err != nil {
		return "", fmt.Errorf("evaluating answer: %w", err)
	}

	if s.recorder != nil {
		if _, err := s.recorder.RecordAnswer(ctx, scope, nil, studentAnswer, feedback); err != nil {
			s.logger.Warn("failed to record answer", "error", err)
		}
	}

	return feedback, nil
}

// recordQuery persists the interaction after the answer was produced. The
// outcome never affects the caller.
func (s *Service) recordQuery(ctx context.Context, scope session.Scope, query string, image *prompt.ImageInput) {
	if s.recorder == nil {
		return
	}

	var uploads []record.Upload
	if image != nil {
		uploads = append(uploads, record.Upload{Data: image.Data, ContentType: image.MIMEType})
	}

	if _, err := s.recorder.StoreUserQuery(ctx, scope, query, uploads); err != nil {
		s.logger.Warn("failed to record query", "error", err)
	}
}
