package coach

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/model"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/prompt"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/record"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/retrieval"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

type stubRetriever struct {
	matches   []store.Match
	err       error
	calls     int
	lastQuery string
}

func (r *stubRetriever) FindRelevant(_ context.Context, _ session.Scope, query string, _ ...retrieval.SearchOption) ([]store.Match, error) {
	r.calls++
	r.lastQuery = query
	return r.matches, r.err
}

type stubGenerator struct {
	output  string
	err     error
	calls   int
	lastMsg []prompt.Message
}

func (g *stubGenerator) Generate(_ context.Context, msgs []prompt.Message, _ ...model.GenerateOption) (string, error) {
	g.calls++
	g.lastMsg = msgs
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

type stubRecorder struct {
	queryErr     error
	queries      int
	questions    int
	answers      int
	lessonID     *uuid.UUID
	gotQuestion  string
	gotModelName string
}

func (r *stubRecorder) StoreUserQuery(_ context.Context, _ session.Scope, _ string, _ []record.Upload) (uuid.UUID, error) {
	r.queries++
	if r.queryErr != nil {
		return uuid.Nil, r.queryErr
	}
	return uuid.New(), nil
}

func (r *stubRecorder) StoreGeneratedQuestion(_ context.Context, lessonID, _ *uuid.UUID, questionText, authorModel string) (uuid.UUID, error) {
	r.questions++
	r.gotQuestion = questionText
	r.gotModelName = authorModel
	return uuid.New(), nil
}

func (r *stubRecorder) RecordAnswer(_ context.Context, _ session.Scope, _ *uuid.UUID, _, _ string) (uuid.UUID, error) {
	r.answers++
	return uuid.New(), nil
}

func (r *stubRecorder) ResolveLessonByTopic(_ context.Context, _ session.Scope, _ string) *uuid.UUID {
	return r.lessonID
}

func newService(t *testing.T, retriever *stubRetriever, generator *stubGenerator, recorder Recorder) *Service {
	t.Helper()
	svc, err := New(retriever, generator, recorder, prompt.NewAssembler(100, 200), "gemini-2.0-flash", log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestProcessQueryNoInput(t *testing.T) {
	svc := newService(t, &stubRetriever{}, &stubGenerator{}, nil)

	for _, text := range []string{"", "   "} {
		_, err := svc.ProcessQuery(context.Background(), session.Scope{}, text, nil)
		if !errors.Is(err, ErrNoInput) {
			t.Errorf("ProcessQuery(%q, nil image) = %v, want ErrNoInput", text, err)
		}
	}
}

func TestProcessQueryImageOnly(t *testing.T) {
	retr := &stubRetriever{}
	svc := newService(t, retr, &stubGenerator{}, nil)

	img := &prompt.ImageInput{Data: []byte{1}, MIMEType: "image/png"}
	result, err := svc.ProcessQuery(context.Background(), session.Scope{}, "", img)
	if err != nil {
		t.Fatalf("ProcessQuery() failed: %v", err)
	}
	if result.Query == "" {
		t.Error("image-only query produced no retrieval query text")
	}
	if result.Image != img {
		t.Error("image dropped from result")
	}
	if retr.calls != 1 {
		t.Errorf("retriever calls = %d, want 1", retr.calls)
	}
}

func TestProcessQueryRetrievalError(t *testing.T) {
	retr := &stubRetriever{err: errors.New("store down")}
	svc := newService(t, retr, &stubGenerator{}, nil)

	if _, err := svc.ProcessQuery(context.Background(), session.Scope{}, "q", nil); err == nil {
		t.Error("expected retrieval error to propagate")
	}
}

func TestGenerateExplanationReusesMatches(t *testing.T) {
	retr := &stubRetriever{}
	gen := &stubGenerator{output: "because channels synchronize"}
	svc := newService(t, retr, gen, nil)

	matches := []store.Match{{Lesson: store.Lesson{ID: uuid.New(), Topic: "channels"}, Similarity: 0.9}}
	answer, err := svc.GenerateExplanation(context.Background(), session.Scope{}, "why?", matches, nil)
	if err != nil {
		t.Fatalf("GenerateExplanation() failed: %v", err)
	}
	if answer != "because channels synchronize" {
		t.Errorf("answer = %q", answer)
	}
	if retr.calls != 0 {
		t.Errorf("retriever called %d times with matches supplied, want 0", retr.calls)
	}
}

func TestGenerateExplanationRetrievesWhenMatchesNil(t *testing.T) {
	retr := &stubRetriever{matches: []store.Match{
		{Lesson: store.Lesson{ID: uuid.New(), Topic: "slices"}, Similarity: 0.8},
	}}
	gen := &stubGenerator{output: "answer"}
	svc := newService(t, retr, gen, nil)

	if _, err := svc.GenerateExplanation(context.Background(), session.Scope{}, "q", nil, nil); err != nil {
		t.Fatalf("GenerateExplanation() failed: %v", err)
	}
	if retr.calls != 1 {
		t.Errorf("retriever calls = %d, want 1", retr.calls)
	}
}

func TestGenerateExplanationEmptyStoreStillGenerates(t *testing.T) {
	// An empty lesson library is not an error: the model runs and is told
	// no documents are available.
	gen := &stubGenerator{output: "general answer"}
	svc := newService(t, &stubRetriever{}, gen, nil)

	answer, err := svc.GenerateExplanation(context.Background(), session.Scope{}, "q", []store.Match{}, nil)
	if err != nil {
		t.Fatalf("GenerateExplanation() failed: %v", err)
	}
	if answer != "general answer" {
		t.Errorf("answer = %q", answer)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}

	var text string
	for _, m := range gen.lastMsg {
		for _, p := range m.Parts {
			text += p.Text
		}
	}
	if !strings.Contains(text, "no documents available") {
		t.Error("prompt missing no-documents marker")
	}
}

func TestGenerateExplanationRecorderFailureIgnored(t *testing.T) {
	rec := &stubRecorder{queryErr: errors.New("db down")}
	gen := &stubGenerator{output: "answer"}
	svc := newService(t, &stubRetriever{}, gen, rec)

	answer, err := svc.GenerateExplanation(context.Background(), session.Scope{UserID: "u"}, "q", []store.Match{}, nil)
	if err != nil {
		t.Fatalf("recorder failure leaked: %v", err)
	}
	if answer != "answer" {
		t.Errorf("answer = %q", answer)
	}
	if rec.queries != 1 {
		t.Errorf("recorder calls = %d, want 1", rec.queries)
	}
}

func TestGenerateExplanationModelError(t *testing.T) {
	rec := &stubRecorder{}
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	svc := newService(t, &stubRetriever{}, gen, rec)

	if _, err := svc.GenerateExplanation(context.Background(), session.Scope{}, "q", []store.Match{}, nil); err == nil {
		t.Fatal("expected model error to propagate")
	}
	if rec.queries != 0 {
		t.Error("interaction recorded despite failed generation")
	}
}

func TestGenerateExplanationCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newService(t, &stubRetriever{}, &stubGenerator{output: "x"}, nil)
	if _, err := svc.GenerateExplanation(ctx, session.Scope{}, "q", []store.Match{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("GenerateExplanation() = %v, want context.Canceled", err)
	}
}

func TestGeneratePracticeQuestion(t *testing.T) {
	lessonID := uuid.New()
	rec := &stubRecorder{lessonID: &lessonID}
	gen := &stubGenerator{output: "What does select do?"}
	svc := newService(t, &stubRetriever{}, gen, rec)

	question, err := svc.GeneratePracticeQuestion(context.Background(), session.Scope{}, "select statements")
	if err != nil {
		t.Fatalf("GeneratePracticeQuestion() failed: %v", err)
	}
	if question != "What does select do?" {
		t.Errorf("question = %q", question)
	}
	if rec.questions != 1 {
		t.Errorf("stored questions = %d, want 1", rec.questions)
	}
	if rec.gotQuestion != question {
		t.Errorf("stored text = %q", rec.gotQuestion)
	}
	if rec.gotModelName != "gemini-2.0-flash" {
		t.Errorf("stored author model = %q", rec.gotModelName)
	}
}

func TestGeneratePracticeQuestionEmptyTopic(t *testing.T) {
	svc := newService(t, &stubRetriever{}, &stubGenerator{}, nil)

	if _, err := svc.GeneratePracticeQuestion(context.Background(), session.Scope{}, "  "); !errors.Is(err, ErrNoInput) {
		t.Errorf("empty topic = %v, want ErrNoInput", err)
	}
}

func TestEvaluateAnswer(t *testing.T) {
	rec := &stubRecorder{}
	retr := &stubRetriever{}
	gen := &stubGenerator{output: "8/10, cite the worker pool lesson"}
	svc := newService(t, retr, gen, rec)

	feedback, err := svc.EvaluateAnswer(context.Background(), session.Scope{UserID: "u"},
		"What is a worker pool?", "a group of goroutines", "concurrency")
	if err != nil {
		t.Fatalf("EvaluateAnswer() failed: %v", err)
	}
	if feedback == "" {
		t.Error("empty feedback")
	}
	if retr.lastQuery != "What is a worker pool?" {
		t.Errorf("retrieval query = %q, want the question text", retr.lastQuery)
	}
	if rec.answers != 1 {
		t.Errorf("recorded answers = %d, want 1", rec.answers)
	}
}

func TestEvaluateAnswerGroundsOnQuestion(t *testing.T) {
	// Retrieval runs even without a key concept, grounded on the
	// question text itself.
	retr := &stubRetriever{matches: []store.Match{
		{Lesson: store.Lesson{ID: uuid.New(), Topic: "channels"}, Similarity: 0.85},
	}}
	gen := &stubGenerator{output: "correct"}
	svc := newService(t, retr, gen, nil)

	_, err := svc.EvaluateAnswer(context.Background(), session.Scope{},
		"what is a channel?", "a pipe", "")
	if err != nil {
		t.Fatalf("EvaluateAnswer() failed: %v", err)
	}
	if retr.calls != 1 {
		t.Fatalf("retriever calls = %d, want 1", retr.calls)
	}
	if retr.lastQuery != "what is a channel?" {
		t.Errorf("retrieval query = %q, want the question text", retr.lastQuery)
	}
}

func TestEvaluateAnswerNoInput(t *testing.T) {
	svc := newService(t, &stubRetriever{}, &stubGenerator{}, nil)

	if _, err := svc.EvaluateAnswer(context.Background(), session.Scope{}, "", "answer", ""); !errors.Is(err, ErrNoInput) {
		t.Errorf("missing question = %v, want ErrNoInput", err)
	}
	if _, err := svc.EvaluateAnswer(context.Background(), session.Scope{}, "question", "", ""); !errors.Is(err, ErrNoInput) {
		t.Errorf("missing answer = %v, want ErrNoInput", err)
	}
}

func TestNewValidation(t *testing.T) {
	assembler := prompt.NewAssembler(1, 2)
	gen := &stubGenerator{}
	retr := &stubRetriever{}

	if _, err := New(nil, gen, nil, assembler, "m", log.NewNop()); err == nil {
		t.Error("expected error for nil retriever")
	}
	if _, err := New(retr, nil, nil, assembler, "m", log.NewNop()); err == nil {
		t.Error("expected error for nil generator")
	}
	if _, err := New(retr, gen, nil, nil, "m", log.NewNop()); err == nil {
		t.Error("expected error for nil assembler")
	}
}
