package store

import (
	"time"

	"github.com/google/uuid"
)

// Lesson visibility values.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Lesson is a knowledge entry. OwnerID is nil for system-seeded lessons.
type Lesson struct {
	ID         uuid.UUID
	Topic      string
	Content    string
	Subject    string
	Level      string
	OwnerID    *uuid.UUID
	Visibility string
	CreatedAt  time.Time
}

// Match is a lesson paired with its similarity to a query vector.
// Similarity is cosine similarity in [0, 1], descending in search results.
type Match struct {
	Lesson     Lesson
	Similarity float32
}

// UserQuery is one submitted question. ImageAttachmentIDs preserves the
// order attachments were supplied in.
type UserQuery struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	TextQuery          string
	ImageAttachmentIDs []uuid.UUID
	CreatedAt          time.Time
}

// Attachment is an uploaded binary linked to a UserQuery. QueryID is set at
// creation when the owning query ID is known up front, and back-filled via
// UpdateAttachmentLink otherwise.
type Attachment struct {
	ID          uuid.UUID
	OwnerUserID uuid.UUID
	StoragePath string
	ContentType string
	QueryID     *uuid.UUID
	Metadata    map[string]any
	CreatedAt   time.Time
}

// BlobInfo identifies an uploaded storage object.
type BlobInfo struct {
	ID   uuid.UUID
	Path string
}

// GeneratedQuestion is a practice question produced by the model.
// LessonID is resolved best-effort by topic match and may be nil.
type GeneratedQuestion struct {
	ID           uuid.UUID
	LessonID     *uuid.UUID
	QueryID      *uuid.UUID
	AuthorModel  string
	QuestionText string
}

// AnswerRecord captures a student answer and the model's evaluation.
// Grade and Feedback are nil until a later grading pass fills them in.
type AnswerRecord struct {
	QuestionID  *uuid.UUID
	UserID      uuid.UUID
	UserAnswer  string
	ModelAnswer string
	Grade       *string
	Feedback    *string
}
