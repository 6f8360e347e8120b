//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestBackend creates a Qdrant backend on a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestBackend(t *testing.T) *QdrantBackend {
	ctx := context.Background()
	backend, err := NewQdrantBackend(ctx, QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "pdf_chunks_test_" + uuid.NewString()[:8],
		Dimension:  testDimension,
	}, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	require.NoError(t, backend.EnsureCollection(ctx), "Failed to ensure collection")
	t.Cleanup(func() {
		_ = backend.client.DeleteCollection(context.Background(), backend.collection)
		backend.Close()
	})
	return backend
}

func TestQdrant_UpsertQueryRoundTrip(t *testing.T) {
	backend := setupTestBackend(t)
	store := NewStore(backend, &bagOfWords{}, nil, WithDimension(testDimension))
	ctx := context.Background()
	collection := CollectionID(uuid.NewString())

	metadatas := make([]map[string]any, len(sampleChunks))
	for i := range metadatas {
		metadatas[i] = map[string]any{"title": "Sample", "totalPages": 2}
	}
	require.NoError(t, store.Upsert(ctx, collection, sampleChunks, metadatas))

	results, err := store.Query(ctx, collection, sampleChunks[1], 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, sampleChunks[1], top.Text)
	assert.Equal(t, collection, top.Metadata[MetaDocumentID])
	assert.Equal(t, 1, top.Metadata[MetaChunkIndex])
	assert.Equal(t, "Sample", top.Metadata["title"])
	assert.Equal(t, 2, top.Metadata["totalPages"])
	assert.InDelta(t, 1-top.Score, top.Distance, 1e-9)
}

func TestQdrant_FilterIsolatesCollections(t *testing.T) {
	backend := setupTestBackend(t)
	store := NewStore(backend, &bagOfWords{}, nil)
	ctx := context.Background()
	a, b := CollectionID(uuid.NewString()), CollectionID(uuid.NewString())

	require.NoError(t, store.Upsert(ctx, a, sampleChunks[:2], nil))
	require.NoError(t, store.Upsert(ctx, b, sampleChunks[2:], nil))

	results, err := store.Query(ctx, a, sampleChunks[3], 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, a, r.Metadata[MetaDocumentID])
	}

	require.NoError(t, store.Delete(ctx, a))

	countA, err := store.Count(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, countA)

	countB, err := store.Count(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 2, countB)
}

func TestQdrant_ReupsertOverwrites(t *testing.T) {
	backend := setupTestBackend(t)
	store := NewStore(backend, &bagOfWords{}, nil)
	ctx := context.Background()
	collection := CollectionID(uuid.NewString())

	require.NoError(t, store.Upsert(ctx, collection, sampleChunks, nil))
	require.NoError(t, store.Upsert(ctx, collection, sampleChunks, nil))

	count, err := store.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, len(sampleChunks), count)
}

func TestQdrant_DimensionValidation(t *testing.T) {
	backend := setupTestBackend(t)

	_, err := backend.Query(context.Background(), make([]float32, testDimension+1), 3, "doc_x")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrant_Health(t *testing.T) {
	backend := setupTestBackend(t)
	assert.NoError(t, backend.Health(context.Background()))
}
