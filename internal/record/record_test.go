package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

const testUserID = "66666666-6666-6666-6666-666666666666"

func authScope() session.Scope {
	return session.Scope{UserID: testUserID, AccessToken: "tok"}
}

type fakeStore struct {
	blobs       []string
	attachments []store.Attachment
	queries     []store.UserQuery
	embeddings  []uuid.UUID
	questions   []store.GeneratedQuestion
	answers     []store.AnswerRecord
	lessons     []store.Lesson

	insertQueryErr error
	listLessonsErr error
	embedUpsertErr error
	sweepCount     int64
	gotSweepOlder  time.Duration
}

func (f *fakeStore) UploadBlob(_ context.Context, bucket, path string, data []byte, contentType string) (store.BlobInfo, error) {
	f.blobs = append(f.blobs, path)
	return store.BlobInfo{ID: uuid.New(), Path: path}, nil
}

func (f *fakeStore) InsertAttachment(_ context.Context, a store.Attachment) (uuid.UUID, error) {
	a.ID = uuid.New()
	f.attachments = append(f.attachments, a)
	return a.ID, nil
}

func (f *fakeStore) InsertUserQuery(_ context.Context, q store.UserQuery) error {
	if f.insertQueryErr != nil {
		return f.insertQueryErr
	}
	f.queries = append(f.queries, q)
	return nil
}

func (f *fakeStore) UpsertSourceEmbedding(_ context.Context, _ string, sourceID uuid.UUID, _ []float32, _ map[string]any) error {
	if f.embedUpsertErr != nil {
		return f.embedUpsertErr
	}
	f.embeddings = append(f.embeddings, sourceID)
	return nil
}

func (f *fakeStore) InsertGeneratedQuestion(_ context.Context, q store.GeneratedQuestion) (uuid.UUID, error) {
	q.ID = uuid.New()
	f.questions = append(f.questions, q)
	return q.ID, nil
}

func (f *fakeStore) InsertAnswer(_ context.Context, rec store.AnswerRecord) (uuid.UUID, error) {
	f.answers = append(f.answers, rec)
	return uuid.New(), nil
}

func (f *fakeStore) ListLessons(_ context.Context, _ session.Scope) ([]store.Lesson, error) {
	if f.listLessonsErr != nil {
		return nil, f.listLessonsErr
	}
	return f.lessons, nil
}

func (f *fakeStore) SweepOrphanAttachments(_ context.Context, olderThan time.Duration) (int64, error) {
	f.gotSweepOlder = olderThan
	return f.sweepCount, nil
}

type fixedEmbedder struct {
	err error
}

func (e *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestStoreUserQueryLinksAttachmentsAtCreation(t *testing.T) {
	fs := &fakeStore{}
	r := New(fs, &fixedEmbedder{}, "attachments", log.NewNop())

	uploads := []Upload{
		{Data: []byte("a"), ContentType: "image/png"},
		{Data: []byte("b"), ContentType: "image/jpeg"},
	}
	queryID, err := r.StoreUserQuery(context.Background(), authScope(), "what is this?", uploads)
	if err != nil {
		t.Fatalf("StoreUserQuery() failed: %v", err)
	}
	if queryID == uuid.Nil {
		t.Fatal("returned nil query ID")
	}

	if len(fs.attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(fs.attachments))
	}
	for i, a := range fs.attachments {
		// Every attachment row carries its query linkage from the start;
		// there is no backfill step that can be missed.
		if a.QueryID == nil || *a.QueryID != queryID {
			t.Errorf("attachment %d query_id = %v, want %s", i, a.QueryID, queryID)
		}
		if idx, ok := a.Metadata["index"].(int); !ok || idx != i {
			t.Errorf("attachment %d metadata index = %v, want %d", i, a.Metadata["index"], i)
		}
		if a.Metadata["query_id"] != queryID.String() {
			t.Errorf("attachment %d metadata query_id = %v", i, a.Metadata["query_id"])
		}
		if a.OwnerUserID.String() != testUserID {
			t.Errorf("attachment %d owner = %s", i, a.OwnerUserID)
		}
	}

	if len(fs.queries) != 1 {
		t.Fatalf("got %d query rows, want 1", len(fs.queries))
	}
	q := fs.queries[0]
	if q.ID != queryID {
		t.Errorf("query row ID = %s, want %s", q.ID, queryID)
	}
	if len(q.ImageAttachmentIDs) != 2 {
		t.Errorf("query row has %d attachment IDs, want 2", len(q.ImageAttachmentIDs))
	}

	if len(fs.embeddings) != 1 || fs.embeddings[0] != queryID {
		t.Errorf("source embedding rows = %v, want [%s]", fs.embeddings, queryID)
	}
}

func TestStoreUserQueryEmbedFailure(t *testing.T) {
	fs := &fakeStore{}
	r := New(fs, &fixedEmbedder{err: errors.New("timeout")}, "attachments", log.NewNop())

	uploads := []Upload{{Data: []byte("a"), ContentType: "image/png"}}
	_, err := r.StoreUserQuery(context.Background(), authScope(), "q", uploads)
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}

	// The attachment was already uploaded; the query row must not exist.
	// These orphans are what SweepOrphans reclaims.
	if len(fs.attachments) != 1 {
		t.Errorf("got %d attachments, want 1 orphan", len(fs.attachments))
	}
	if len(fs.queries) != 0 {
		t.Errorf("query row written despite embed failure")
	}
}

func TestStoreUserQueryInsertFailure(t *testing.T) {
	fs := &fakeStore{insertQueryErr: errors.New("deadlock")}
	r := New(fs, &fixedEmbedder{}, "attachments", log.NewNop())

	_, err := r.StoreUserQuery(context.Background(), authScope(), "q", nil)
	if err == nil {
		t.Fatal("expected insert error to surface")
	}
	if len(fs.embeddings) != 0 {
		t.Error("embedding row written despite failed query insert")
	}
}

func TestStoreUserQueryEmbeddingIndexBestEffort(t *testing.T) {
	fs := &fakeStore{embedUpsertErr: errors.New("index unavailable")}
	r := New(fs, &fixedEmbedder{}, "attachments", log.NewNop())

	queryID, err := r.StoreUserQuery(context.Background(), authScope(), "q", nil)
	if err != nil {
		t.Fatalf("side index failure must not fail the write: %v", err)
	}
	if queryID == uuid.Nil {
		t.Error("returned nil query ID")
	}
	if len(fs.queries) != 1 {
		t.Error("query row missing")
	}
}

func TestStoreUserQueryRequiresPrincipal(t *testing.T) {
	r := New(&fakeStore{}, &fixedEmbedder{}, "attachments", log.NewNop())

	_, err := r.StoreUserQuery(context.Background(), session.Scope{}, "q", nil)
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous StoreUserQuery() = %v, want ErrNotAuthenticated", err)
	}
}

func TestNilStore(t *testing.T) {
	r := New(nil, &fixedEmbedder{}, "attachments", log.NewNop())

	if _, err := r.StoreUserQuery(context.Background(), authScope(), "q", nil); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("StoreUserQuery() = %v, want ErrStoreUnavailable", err)
	}
	if _, err := r.StoreGeneratedQuestion(context.Background(), nil, nil, "q", "m"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("StoreGeneratedQuestion() = %v, want ErrStoreUnavailable", err)
	}
	if _, err := r.RecordAnswer(context.Background(), authScope(), nil, "a", "m"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("RecordAnswer() = %v, want ErrStoreUnavailable", err)
	}
	if id := r.ResolveLessonByTopic(context.Background(), authScope(), "t"); id != nil {
		t.Errorf("ResolveLessonByTopic() = %v, want nil", id)
	}
}

func TestRecordAnswerRequiresPrincipal(t *testing.T) {
	r := New(&fakeStore{}, &fixedEmbedder{}, "attachments", log.NewNop())

	_, err := r.RecordAnswer(context.Background(), session.Scope{}, nil, "a", "feedback")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous RecordAnswer() = %v, want ErrNotAuthenticated", err)
	}
}

func TestRecordAnswer(t *testing.T) {
	fs := &fakeStore{}
	r := New(fs, &fixedEmbedder{}, "attachments", log.NewNop())

	qid := uuid.New()
	id, err := r.RecordAnswer(context.Background(), authScope(), &qid, "my answer", "good job")
	if err != nil {
		t.Fatalf("RecordAnswer() failed: %v", err)
	}
	if id == uuid.Nil {
		t.Error("returned nil answer ID")
	}
	if len(fs.answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(fs.answers))
	}
	if fs.answers[0].QuestionID == nil || *fs.answers[0].QuestionID != qid {
		t.Error("question linkage lost")
	}
}

func TestStoreGeneratedQuestion(t *testing.T) {
	fs := &fakeStore{}
	r := New(fs, &fixedEmbedder{}, "attachments", log.NewNop())

	lessonID := uuid.New()
	id, err := r.StoreGeneratedQuestion(context.Background(), &lessonID, nil, "What is a mutex?", "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("StoreGeneratedQuestion() failed: %v", err)
	}
	if id == uuid.Nil {
		t.Error("returned nil question ID")
	}
	if len(fs.questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(fs.questions))
	}
	q := fs.questions[0]
	if q.LessonID == nil || *q.LessonID != lessonID {
		t.Error("lesson linkage lost")
	}
	if q.AuthorModel != "gemini-2.0-flash" {
		t.Errorf("author model = %q", q.AuthorModel)
	}
}

func TestResolveLessonByTopic(t *testing.T) {
	want := uuid.New()
	fs := &fakeStore{lessons: []store.Lesson{
		{ID: uuid.New(), Topic: "Channels"},
		{ID: want, Topic: "Goroutines"},
	}}
	r := New(fs, &fixedEmbedder{}, "attachments", log.NewNop())

	tests := []struct {
		topic string
		want  *uuid.UUID
	}{
		{"goroutines", &want},
		{"GOROUTINES", &want},
		{"  Goroutines  ", &want},
		{"monads", nil},
	}
	for _, tt := range tests {
		got := r.ResolveLessonByTopic(context.Background(), authScope(), tt.topic)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ResolveLessonByTopic(%q) = %v, want nil", tt.topic, got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("ResolveLessonByTopic(%q) = %v, want %v", tt.topic, got, *tt.want)
		}
	}
}

func TestResolveLessonByTopicLookupFailure(t *testing.T) {
	fs := &fakeStore{listLessonsErr: errors.New("connection refused")}
	r := New(fs, &fixedEmbedder{}, "attachments", log.NewNop())

	if got := r.ResolveLessonByTopic(context.Background(), authScope(), "anything"); got != nil {
		t.Errorf("lookup failure should resolve to nil, got %v", got)
	}
}

func TestSweepOrphans(t *testing.T) {
	fs := &fakeStore{sweepCount: 4}
	r := New(fs, nil, "attachments", log.NewNop())

	n, err := r.SweepOrphans(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("SweepOrphans() failed: %v", err)
	}
	if n != 4 {
		t.Errorf("reclaimed = %d, want 4", n)
	}
	if fs.gotSweepOlder != time.Hour {
		t.Errorf("grace window = %v, want 1h", fs.gotSweepOlder)
	}
}
