package records

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents and sessions in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*Document
	sessions  map[string]*Session
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*Document),
		sessions:  make(map[string]*Session),
		now:       time.Now,
	}
}

// CreateDocument implements DocumentStore.
func (m *MemoryStore) CreateDocument(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := m.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Status = StatusProcessing

	stored := *doc
	m.documents[doc.ID] = &stored
	return nil
}

// GetDocument implements DocumentStore.
func (m *MemoryStore) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	out := *doc
	return &out, nil
}

// ListDocuments implements DocumentStore.
func (m *MemoryStore) ListDocuments(_ context.Context) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]*Document, 0, len(m.documents))
	for _, d := range m.documents {
		out := *d
		docs = append(docs, &out)
	}
	slices.SortFunc(docs, func(a, b *Document) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return docs, nil
}

// Finalize implements DocumentStore.
func (m *MemoryStore) Finalize(_ context.Context, id string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	if doc.Status != StatusProcessing {
		return ErrInvalidTransition
	}

	doc.Status = outcome.Status()
	doc.Error = errorText(outcome.Err)
	doc.ChunksCount = outcome.ChunksCount
	doc.PageCount = outcome.PageCount
	doc.WordCount = outcome.WordCount
	doc.Title = outcome.Title
	doc.UpdatedAt = m.now()
	return nil
}

// DeleteDocument implements DocumentStore.
func (m *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(m.documents, id)
	return nil
}

// CreateSession implements SessionStore.
func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	m.sessions[s.ID] = cloneSession(s)
	return nil
}

// GetSession implements SessionStore.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// ListSessions implements SessionStore.
func (m *MemoryStore) ListSessions(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, cloneSession(s))
	}
	slices.SortFunc(sessions, func(a, b *Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return sessions, nil
}

// AppendMessages implements SessionStore.
func (m *MemoryStore) AppendMessages(_ context.Context, id string, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = m.now()
	return nil
}

func cloneSession(s *Session) *Session {
	out := *s
	out.DocumentIDs = slices.Clone(s.DocumentIDs)
	out.Messages = slices.Clone(s.Messages)
	return &out
}
