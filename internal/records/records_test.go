package records

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// store is what both implementations provide.
type store interface {
	DocumentStore
	SessionStore
}

func runDocumentContract(t *testing.T, s store) {
	ctx := context.Background()

	t.Run("create assigns id and processing status", func(t *testing.T) {
		doc := &Document{Filename: "a.pdf", OriginalName: "A.pdf", FileSize: 42, Status: StatusReady}
		require.NoError(t, s.CreateDocument(ctx, doc))

		assert.NotEmpty(t, doc.ID)
		got, err := s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Equal(t, "A.pdf", got.OriginalName)
		assert.Equal(t, int64(42), got.FileSize)
	})

	t.Run("finalize ready then reject second transition", func(t *testing.T) {
		doc := &Document{Filename: "b.pdf"}
		require.NoError(t, s.CreateDocument(ctx, doc))

		require.NoError(t, s.Finalize(ctx, doc.ID, Outcome{ChunksCount: 7, PageCount: 2, WordCount: 300, Title: "B"}))

		got, err := s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusReady, got.Status)
		assert.Equal(t, 7, got.ChunksCount)
		assert.Equal(t, 2, got.PageCount)
		assert.Equal(t, 300, got.WordCount)
		assert.Equal(t, "B", got.Title)
		assert.Empty(t, got.Error)

		err = s.Finalize(ctx, doc.ID, Outcome{Err: errors.New("late failure")})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		got, err = s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusReady, got.Status, "status must not change after finalization")
	})

	t.Run("finalize error records message", func(t *testing.T) {
		doc := &Document{Filename: "c.pdf"}
		require.NoError(t, s.CreateDocument(ctx, doc))

		require.NoError(t, s.Finalize(ctx, doc.ID, Outcome{Err: errors.New("embedding failed")}))

		got, err := s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusError, got.Status)
		assert.Equal(t, "embedding failed", got.Error)
	})

	t.Run("missing documents", func(t *testing.T) {
		_, err := s.GetDocument(ctx, "missing")
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.ErrorIs(t, s.Finalize(ctx, "missing", Outcome{}), ErrDocumentNotFound)
		assert.ErrorIs(t, s.DeleteDocument(ctx, "missing"), ErrDocumentNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		doc := &Document{Filename: "d.pdf"}
		require.NoError(t, s.CreateDocument(ctx, doc))
		require.NoError(t, s.DeleteDocument(ctx, doc.ID))

		_, err := s.GetDocument(ctx, doc.ID)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		base := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
		older := &Document{Filename: "older.pdf", CreatedAt: base}
		newer := &Document{Filename: "newer.pdf", CreatedAt: base.Add(time.Minute)}
		require.NoError(t, s.CreateDocument(ctx, older))
		require.NoError(t, s.CreateDocument(ctx, newer))

		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(docs), 2)
		assert.Equal(t, newer.ID, docs[0].ID)
		assert.Equal(t, older.ID, docs[1].ID)
	})
}

func runSessionContract(t *testing.T, s store) {
	ctx := context.Background()

	session := &Session{Title: "Biology notes", DocumentIDs: []string{"d1", "d2"}}
	require.NoError(t, s.CreateSession(ctx, session))
	require.NotEmpty(t, session.ID)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.AppendMessages(ctx, session.ID,
		Message{Role: RoleUser, Content: "What is ATP?", Timestamp: now},
		Message{Role: RoleAssistant, Content: "An energy carrier.", Timestamp: now},
	))
	require.NoError(t, s.AppendMessages(ctx, session.ID,
		Message{Role: RoleUser, Content: "Where is it made?", Timestamp: now},
	))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Biology notes", got.Title)
	assert.Equal(t, []string{"d1", "d2"}, got.DocumentIDs)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "An energy carrier.", got.Messages[1].Content)
	assert.Equal(t, "Where is it made?", got.Messages[2].Content)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.AppendMessages(ctx, "missing", Message{Role: RoleUser}), ErrSessionNotFound)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sessions)
}

func TestMemoryStore_Documents(t *testing.T) {
	runDocumentContract(t, NewMemoryStore())
}

func TestMemoryStore_Sessions(t *testing.T) {
	runSessionContract(t, NewMemoryStore())
}

func TestMemoryStore_FinalizeExactlyOnceUnderContention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := &Document{Filename: "race.pdf"}
	require.NoError(t, s.CreateDocument(ctx, doc))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := Outcome{ChunksCount: i}
			if i%2 == 1 {
				outcome.Err = errors.New("failed")
			}
			if err := s.Finalize(ctx, doc.ID, outcome); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := &Session{Title: "t", DocumentIDs: []string{"a"}}
	require.NoError(t, s.CreateSession(ctx, session))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	got.DocumentIDs[0] = "mutated"
	got.Title = "mutated"

	again, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Title)
	assert.Equal(t, []string{"a"}, again.DocumentIDs)
}

func TestOutcome_Status(t *testing.T) {
	assert.Equal(t, StatusReady, Outcome{}.Status())
	assert.Equal(t, StatusError, Outcome{Err: errors.New("x")}.Status())
}
