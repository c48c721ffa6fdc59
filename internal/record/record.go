// Package record persists user interactions: queries, attachments,
// generated questions, and answer evaluations.
//
// Every write path is best-effort by contract, but failure is explicit, not
// swallowed: each method returns an error the orchestration layer is free
// to discard after logging. Nothing here ever blocks or aborts the
// synchronous response the user is waiting on.
package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

var (
	// ErrStoreUnavailable indicates no store connection is configured.
	ErrStoreUnavailable = errors.New("no store connection")

	// ErrNotAuthenticated indicates the scope carries no principal and the
	// write requires one.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// sourceTableUserQueries keys the embedding side index rows written for
// submitted queries.
const sourceTableUserQueries = "user_queries"

// Embedder generates vectors for the embedding side index.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the persistence surface the recorder needs.
type Store interface {
	UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (store.BlobInfo, error)
	InsertAttachment(ctx context.Context, a store.Attachment) (uuid.UUID, error)
	InsertUserQuery(ctx context.Context, q store.UserQuery) error
	UpsertSourceEmbedding(ctx context.Context, sourceTable string, sourceID uuid.UUID, vec []float32, metadata map[string]any) error
	InsertGeneratedQuestion(ctx context.Context, q store.GeneratedQuestion) (uuid.UUID, error)
	InsertAnswer(ctx context.Context, rec store.AnswerRecord) (uuid.UUID, error)
	ListLessons(ctx context.Context, scope session.Scope) ([]store.Lesson, error)
	SweepOrphanAttachments(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Upload is one binary attachment supplied with a query.
type Upload struct {
	Data        []byte
	ContentType string
}

// Recorder writes interaction records. A nil store is tolerated: every
// method then returns ErrStoreUnavailable instead of recording.
type Recorder struct {
	store    Store
	embedder Embedder
	bucket   string
	logger   log.Logger
}

// New creates a Recorder.
func New(st Store, embedder Embedder, bucket string, logger log.Logger) *Recorder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Recorder{store: st, embedder: embedder, bucket: bucket, logger: logger}
}

// StoreUserQuery persists a submitted question and its attachments.
//
// The query ID is generated up front, so attachment rows carry their
// query_id and positional index at creation time instead of being
// back-filled afterwards. If the user_queries insert still fails after
// attachments were uploaded, the orphaned rows are reclaimed later by
// SweepOrphans; nothing here retries.
//
// Not idempotent: each call creates new rows. Callers must not blindly
// retry on failure.
func (r *Recorder) StoreUserQuery(ctx context.Context, scope session.Scope, text string, attachments []Upload) (uuid.UUID, error) {
	if r.store == nil {
		return uuid.Nil, ErrStoreUnavailable
	}
	if scope.Anonymous() {
		return uuid.Nil, ErrNotAuthenticated
	}
	userID, err := uuid.Parse(scope.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", scope.UserID, err)
	}

	queryID := uuid.New()

	attachmentIDs := make([]uuid.UUID, 0, len(attachments))
	for i, up := range attachments {
		contentType := up.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		path := fmt.Sprintf("attachments/%s_%d.png", hexID(), i)

		if _, err := r.store.UploadBlob(ctx, r.bucket, path, up.Data, contentType); err != nil {
			return uuid.Nil, fmt.Errorf("uploading attachment %d: %w", i, err)
		}

		qid := queryID
		attachmentID, err := r.store.InsertAttachment(ctx, store.Attachment{
			OwnerUserID: userID,
			StoragePath: path,
			ContentType: contentType,
			QueryID:     &qid,
			Metadata: map[string]any{
				"source":       "user_query",
				"query_id":     queryID.String(),
				"user_id":      userID.String(),
				"index":        i,
				"content_type": contentType,
			},
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("recording attachment %d: %w", i, err)
		}
		attachmentIDs = append(attachmentIDs, attachmentID)
	}

	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return uuid.Nil, fmt.Errorf("embedding query text: %w", err)
	}

	if err := r.store.InsertUserQuery(ctx, store.UserQuery{
		ID:                 queryID,
		UserID:             userID,
		TextQuery:          text,
		ImageAttachmentIDs: attachmentIDs,
	}); err != nil {
		return uuid.Nil, fmt.Errorf("inserting user query: %w", err)
	}

	// Side index write is best-effort: the query row already landed and the
	// interaction's primary value is the synchronous response.
	if len(vectors) > 0 {
		if err := r.store.UpsertSourceEmbedding(ctx, sourceTableUserQueries, queryID, vectors[0],
			map[string]any{"source": "user_query"}); err != nil {
			r.logger.Warn("failed to index query embedding", "query_id", queryID, "error", err)
		}
	}

	return queryID, nil
}

// StoreGeneratedQuestion persists a practice question. LessonID and QueryID
// may be nil.
func (r *Recorder) StoreGeneratedQuestion(ctx context.Context, lessonID, queryID *uuid.UUID, questionText, authorModel string) (uuid.UUID, error) {
	if r.store == nil {
		return uuid.Nil, ErrStoreUnavailable
	}

	id, err := r.store.InsertGeneratedQuestion(ctx, store.GeneratedQuestion{
		LessonID:     lessonID,
		QueryID:      queryID,
		AuthorModel:  authorModel,
		QuestionText: questionText,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("storing generated question: %w", err)
	}
	return id, nil
}

// RecordAnswer persists an answer evaluation. Requires both a store
// connection and an authenticated principal; either missing yields an
// error the caller discards, never a partial write.
func (r *Recorder) RecordAnswer(ctx context.Context, scope session.Scope, questionID *uuid.UUID, userAnswer, modelAnswer string) (uuid.UUID, error) {
	if r.store == nil {
		return uuid.Nil, ErrStoreUnavailable
	}
	if scope.Anonymous() {
		return uuid.Nil, ErrNotAuthenticated
	}
	userID, err := uuid.Parse(scope.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", scope.UserID, err)
	}

	id, err := r.store.InsertAnswer(ctx, store.AnswerRecord{
		QuestionID:  questionID,
		UserID:      userID,
		UserAnswer:  userAnswer,
		ModelAnswer: modelAnswer,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("recording answer: %w", err)
	}
	return id, nil
}

// ResolveLessonByTopic returns the ID of the first lesson visible to the
// scope whose topic matches case-insensitively, or nil when none does.
// Best-effort: lookup failures resolve to nil.
func (r *Recorder) ResolveLessonByTopic(ctx context.Context, scope session.Scope, topic string) *uuid.UUID {
	if r.store == nil {
		return nil
	}
	lessons, err := r.store.ListLessons(ctx, scope)
	if err != nil {
		r.logger.Warn("lesson lookup failed", "topic", topic, "error", err)
		return nil
	}

	want := strings.ToLower(strings.TrimSpace(topic))
	for _, l := range lessons {
		if strings.ToLower(strings.TrimSpace(l.Topic)) == want {
			id := l.ID
			return &id
		}
	}
	return nil
}

// SweepOrphans reclaims attachments whose user_queries insert never landed.
// olderThan is the grace window protecting in-flight two-phase writes.
func (r *Recorder) SweepOrphans(ctx context.Context, olderThan time.Duration) (int64, error) {
	if r.store == nil {
		return 0, ErrStoreUnavailable
	}
	return r.store.SweepOrphanAttachments(ctx, olderThan)
}

// hexID returns a compact hex object name component.
func hexID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
