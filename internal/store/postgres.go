// Package store implements the CoachAI knowledge store on PostgreSQL with
// pgvector similarity search.
//
// Every read and mutation on user-owned rows is scoped by the session.Scope
// passed per call: anonymous scopes see only public lessons, and mutations
// require a matching owner. Row-level filtering happens in SQL, never in
// application code, so a forgotten filter cannot leak another tenant's rows.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
)

// ErrNotOwner indicates a mutation targeted a row the scope does not own.
var ErrNotOwner = errors.New("row not found or not owned by principal")

// DB is the database interface used by Postgres. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is the pgx-backed knowledge store.
// Safe for concurrent use; no locks are held across queries.
type Postgres struct {
	db     DB
	logger log.Logger
}

// NewPostgres creates a Postgres store. Migrations are managed separately
// via the db package.
func NewPostgres(db DB, logger log.Logger) *Postgres {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

// NewPool creates a pgxpool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	return pool, nil
}

// ownerParam converts a scope's user ID to a nullable SQL parameter.
// Anonymous or malformed IDs become NULL, which never matches owner_id.
func ownerParam(scope session.Scope) any {
	if scope.Anonymous() {
		return nil
	}
	id, err := uuid.Parse(scope.UserID)
	if err != nil {
		return nil
	}
	return id
}

const lessonCols = `id, topic, content, subject, level, owner_id, visibility, created_at`

// SearchLessons returns the topK lessons most similar to vec, descending by
// cosine similarity. Visibility scoping: public lessons plus the scope's
// own rows. Ties break in store-native order.
func (s *Postgres) SearchLessons(ctx context.Context, scope session.Scope, vec []float32, topK int) ([]Match, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}

	// The <=> operator is cosine distance; similarity = 1 - distance.
	query := `
		SELECT ` + lessonCols + `, 1 - (embedding <=> $1) AS similarity
		FROM lessons
		WHERE embedding IS NOT NULL
		  AND (visibility = 'public' OR owner_id = $2)
		ORDER BY embedding <=> $1
		LIMIT $3`

	rows, err := s.db.Query(ctx, query, pgvector.NewVector(vec), ownerParam(scope), topK)
	if err != nil {
		return nil, fmt.Errorf("searching lessons: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := scanLesson(rows, &m.Lesson, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning lesson: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching lessons: %w", err)
	}
	return matches, nil
}

// InsertLesson adds a lesson owned by the scope's principal, together with
// its content embedding. Returns the generated lesson ID.
func (s *Postgres) InsertLesson(ctx context.Context, scope session.Scope, l Lesson, vec []float32) (uuid.UUID, error) {
	const query = `
		INSERT INTO lessons (topic, content, subject, level, owner_id, visibility, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	visibility := l.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}

	var id uuid.UUID
	err := s.db.QueryRow(ctx, query,
		l.Topic, l.Content, l.Subject, l.Level,
		ownerParam(scope), visibility, pgvector.NewVector(vec),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting lesson: %w", err)
	}
	return id, nil
}

// ListLessons returns lessons visible to the scope: public rows plus the
// principal's own, newest first. An anonymous scope sees only public rows.
func (s *Postgres) ListLessons(ctx context.Context, scope session.Scope) ([]Lesson, error) {
	query := `
		SELECT ` + lessonCols + `
		FROM lessons
		WHERE visibility = 'public' OR owner_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, ownerParam(scope))
	if err != nil {
		return nil, fmt.Errorf("listing lessons: %w", err)
	}
	defer rows.Close()

	var lessons []Lesson
	for rows.Next() {
		var l Lesson
		if err := scanLesson(rows, &l, nil); err != nil {
			return nil, fmt.Errorf("scanning lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing lessons: %w", err)
	}
	return lessons, nil
}

// SetLessonVisibility updates a lesson's visibility. Only the owner may
// change it; returns ErrNotOwner otherwise.
func (s *Postgres) SetLessonVisibility(ctx context.Context, scope session.Scope, id uuid.UUID, visibility string) error {
	if visibility != VisibilityPrivate && visibility != VisibilityPublic {
		return fmt.Errorf("invalid visibility %q", visibility)
	}

	const query = `UPDATE lessons SET visibility = $1 WHERE id = $2 AND owner_id = $3`
	tag, err := s.db.Exec(ctx, query, visibility, id, ownerParam(scope))
	if err != nil {
		return fmt.Errorf("updating lesson visibility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOwner
	}
	return nil
}

// DeleteLesson removes a lesson owned by the scope's principal.
func (s *Postgres) DeleteLesson(ctx context.Context, scope session.Scope, id uuid.UUID) error {
	const query = `DELETE FROM lessons WHERE id = $1 AND owner_id = $2`
	tag, err := s.db.Exec(ctx, query, id, ownerParam(scope))
	if err != nil {
		return fmt.Errorf("deleting lesson: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOwner
	}
	return nil
}

// InsertUserQuery inserts a query row with a caller-generated ID, so that
// attachments can reference the query before this insert happens.
func (s *Postgres) InsertUserQuery(ctx context.Context, q UserQuery) error {
	const query = `
		INSERT INTO user_queries (id, user_id, text_query, image_attachment_ids)
		VALUES ($1, $2, $3, $4)`

	ids := q.ImageAttachmentIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	if _, err := s.db.Exec(ctx, query, q.ID, q.UserID, q.TextQuery, ids); err != nil {
		return fmt.Errorf("inserting user query: %w", err)
	}
	return nil
}

// UploadBlob stores binary content in the given bucket and returns its
// object ID and path. Re-uploading the same path replaces the content.
func (s *Postgres) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (BlobInfo, error) {
	const query = `
		INSERT INTO storage_objects (bucket, path, content_type, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bucket, path) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			data = EXCLUDED.data
		RETURNING id`

	var id uuid.UUID
	if err := s.db.QueryRow(ctx, query, bucket, path, contentType, data).Scan(&id); err != nil {
		return BlobInfo{}, fmt.Errorf("uploading blob %q: %w", path, err)
	}
	return BlobInfo{ID: id, Path: path}, nil
}

// InsertAttachment creates an attachment row and returns its ID. QueryID
// and metadata may already carry the owning query when the caller generated
// the query ID up front.
func (s *Postgres) InsertAttachment(ctx context.Context, a Attachment) (uuid.UUID, error) {
	metadata, err := json.Marshal(emptyMap(a.Metadata))
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal attachment metadata: %w", err)
	}

	const query = `
		INSERT INTO attachments (owner_user_id, storage_path, content_type, query_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id uuid.UUID
	err = s.db.QueryRow(ctx, query,
		a.OwnerUserID, a.StoragePath, a.ContentType, a.QueryID, metadata,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting attachment: %w", err)
	}
	return id, nil
}

// UpdateAttachmentLink back-fills an attachment's query reference and
// metadata. Kept for stores that cannot issue client-generated query IDs.
func (s *Postgres) UpdateAttachmentLink(ctx context.Context, id, queryID uuid.UUID, metadata map[string]any) error {
	md, err := json.Marshal(emptyMap(metadata))
	if err != nil {
		return fmt.Errorf("marshal attachment metadata: %w", err)
	}

	const query = `UPDATE attachments SET query_id = $1, metadata = $2 WHERE id = $3`
	tag, err := s.db.Exec(ctx, query, queryID, md, id)
	if err != nil {
		return fmt.Errorf("updating attachment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attachment %s not found", id)
	}
	return nil
}

// GetAttachment fetches an attachment owned by the scope's principal.
func (s *Postgres) GetAttachment(ctx context.Context, scope session.Scope, id uuid.UUID) (*Attachment, error) {
	const query = `
		SELECT id, owner_user_id, storage_path, content_type, query_id, metadata, created_at
		FROM attachments
		WHERE id = $1 AND owner_user_id = $2`

	var a Attachment
	var md []byte
	err := s.db.QueryRow(ctx, query, id, ownerParam(scope)).Scan(
		&a.ID, &a.OwnerUserID, &a.StoragePath, &a.ContentType, &a.QueryID, &md, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting attachment %s: %w", id, err)
	}
	if err := json.Unmarshal(md, &a.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal attachment metadata: %w", err)
	}
	return &a, nil
}

// UpsertSourceEmbedding writes a row in the (source_table, source_id) keyed
// side index so past queries remain retrievable as context.
func (s *Postgres) UpsertSourceEmbedding(ctx context.Context, sourceTable string, sourceID uuid.UUID, vec []float32, metadata map[string]any) error {
	md, err := json.Marshal(emptyMap(metadata))
	if err != nil {
		return fmt.Errorf("marshal embedding metadata: %w", err)
	}

	const query = `
		INSERT INTO source_embeddings (source_table, source_id, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_table, source_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`

	if _, err := s.db.Exec(ctx, query, sourceTable, sourceID, pgvector.NewVector(vec), md); err != nil {
		return fmt.Errorf("upserting source embedding (%s, %s): %w", sourceTable, sourceID, err)
	}
	return nil
}

// InsertGeneratedQuestion persists a practice question and returns its ID.
func (s *Postgres) InsertGeneratedQuestion(ctx context.Context, q GeneratedQuestion) (uuid.UUID, error) {
	const query = `
		INSERT INTO generated_questions (lesson_id, query_id, author_model, question_text)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, q.LessonID, q.QueryID, q.AuthorModel, q.QuestionText).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting generated question: %w", err)
	}
	return id, nil
}

// InsertAnswer persists an answer evaluation record and returns its ID.
func (s *Postgres) InsertAnswer(ctx context.Context, rec AnswerRecord) (uuid.UUID, error) {
	const query = `
		INSERT INTO answers (question_id, user_id, user_answer, model_answer, grade, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id uuid.UUID
	err := s.db.QueryRow(ctx, query,
		rec.QuestionID, rec.UserID, rec.UserAnswer, rec.ModelAnswer, rec.Grade, rec.Feedback,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting answer: %w", err)
	}
	return id, nil
}

// SweepOrphanAttachments deletes attachments (and their blobs) whose query
// insert never landed: rows older than olderThan referencing a query_id
// with no user_queries row, or carrying no query_id at all. Returns the
// number of attachments removed.
func (s *Postgres) SweepOrphanAttachments(ctx context.Context, olderThan time.Duration) (int64, error) {
	interval := fmt.Sprintf("%d seconds", int64(olderThan.Seconds()))

	const orphanCond = `
		created_at < now() - $1::interval
		AND (query_id IS NULL
		     OR NOT EXISTS (SELECT 1 FROM user_queries q WHERE q.id = attachments.query_id))`

	// Blobs first: a blob without its attachment row is unreachable anyway,
	// while an attachment without its blob would dangle.
	const deleteBlobs = `
		DELETE FROM storage_objects
		WHERE path IN (SELECT storage_path FROM attachments WHERE` + orphanCond + `)`
	if _, err := s.db.Exec(ctx, deleteBlobs, interval); err != nil {
		return 0, fmt.Errorf("sweeping orphan blobs: %w", err)
	}

	const deleteAttachments = `DELETE FROM attachments WHERE` + orphanCond
	tag, err := s.db.Exec(ctx, deleteAttachments, interval)
	if err != nil {
		return 0, fmt.Errorf("sweeping orphan attachments: %w", err)
	}
	s.logger.Debug("swept orphan attachments", "removed", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// scanLesson scans a lesson row, optionally with a trailing similarity
// column when sim is non-nil.
func scanLesson(row pgx.Row, l *Lesson, sim *float32) error {
	dest := []any{&l.ID, &l.Topic, &l.Content, &l.Subject, &l.Level, &l.OwnerID, &l.Visibility, &l.CreatedAt}
	if sim != nil {
		dest = append(dest, sim)
	}
	return row.Scan(dest...)
}

// emptyMap returns m if non-nil, otherwise an empty non-nil map. This
// ensures JSON marshalling produces "{}" instead of "null".
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
