// Package records persists document and chat session records.
package records

import (
	"context"
	"errors"
	"time"
)

// Status is the ingestion state of a document.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("document status already final")
)

// Document is the record of one uploaded PDF.
type Document struct {
	ID           string    `bson:"_id" json:"id"`
	Filename     string    `bson:"filename" json:"filename"`
	OriginalName string    `bson:"originalName" json:"originalName"`
	FileSize     int64     `bson:"fileSize" json:"fileSize"`
	CollectionID string    `bson:"vectorStoreId" json:"vectorStoreId"`
	ChunksCount  int       `bson:"chunksCount" json:"chunksCount"`
	Status       Status    `bson:"status" json:"status"`
	Error        string    `bson:"error,omitempty" json:"error,omitempty"`
	PageCount    int       `bson:"pageCount" json:"pageCount"`
	WordCount    int       `bson:"wordCount" json:"wordCount"`
	Title        string    `bson:"title,omitempty" json:"title,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Outcome is the final result of ingesting a document. A nil Err marks the
// document ready; anything else marks it as failed.
type Outcome struct {
	ChunksCount int
	PageCount   int
	WordCount   int
	Title       string
	Err         error
}

// Status returns the status the outcome transitions a document to.
func (o Outcome) Status() Status {
	if o.Err != nil {
		return StatusError
	}
	return StatusReady
}

// Message is one chat turn.
type Message struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Session is a conversation over a set of documents.
type Session struct {
	ID          string    `bson:"_id" json:"id"`
	Title       string    `bson:"title" json:"title"`
	DocumentIDs []string  `bson:"documentIds" json:"documentIds"`
	Messages    []Message `bson:"messages" json:"messages"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// DocumentStore persists document records.
type DocumentStore interface {
	// CreateDocument inserts doc in processing state, assigning an ID and
	// timestamps when they are unset.
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]*Document, error)
	// Finalize moves a processing document to ready or error. It fails with
	// ErrInvalidTransition if the document was already finalized.
	Finalize(ctx context.Context, id string, outcome Outcome) error
	DeleteDocument(ctx context.Context, id string) error
}

// SessionStore persists chat sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns all sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]*Session, error)
	AppendMessages(ctx context.Context, id string, msgs ...Message) error
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
