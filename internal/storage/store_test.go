package storage

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 64

// bagOfWords embeds text by hashing each word into a fixed-size vector, so
// identical texts map to identical vectors and shared words raise similarity.
type bagOfWords struct {
	fail error
}

func (b *bagOfWords) vector(text string) []float32 {
	v := make([]float32, testDimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%testDimension]++
	}
	v[testDimension-1] += 0.01 // never all zero
	return v
}

func (b *bagOfWords) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.vector(t)
	}
	return out, nil
}

func (b *bagOfWords) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	return b.vector(text), nil
}

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend, err := NewMemoryBackend("")
	require.NoError(t, err)
	return NewStore(backend, &bagOfWords{}, nil, WithDimension(testDimension)), backend
}

var sampleChunks = []string{
	"Photosynthesis converts sunlight into chemical energy in plants.",
	"The French Revolution began in 1789 with the storming of the Bastille.",
	"Quarterly revenue grew twelve percent driven by subscription sales.",
	"Mitochondria are the powerhouse of the cell and produce ATP.",
}

func TestStore_QueryOwnTextRanksFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	collection := CollectionID("doc-1")

	require.NoError(t, store.Upsert(ctx, collection, sampleChunks, nil))

	for i, chunk := range sampleChunks {
		results, err := store.Query(ctx, collection, chunk, 3)
		require.NoError(t, err)
		require.NotEmpty(t, results)

		assert.Equal(t, chunk, results[0].Text, "chunk %d should rank first for its own text", i)
		assert.Equal(t, i, results[0].Metadata[MetaChunkIndex])
		assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	}
}

func TestStore_DistanceIsOneMinusScore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	collection := CollectionID("doc-distance")

	require.NoError(t, store.Upsert(ctx, collection, sampleChunks, nil))

	results, err := store.Query(ctx, collection, "energy in the cell", 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for _, r := range results {
		assert.InDelta(t, 1-r.Score, r.Distance, 1e-9)
	}
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results ordered by score")
	}
}

func TestStore_MetadataMerge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	collection := CollectionID("doc-meta")

	metadatas := []map[string]any{
		{"totalPages": 3, "title": "Biology", MetaText: "caller text is overridden"},
		{"totalPages": 3, "title": "Biology", MetaDocumentID: "spoofed"},
	}
	require.NoError(t, store.Upsert(ctx, collection, sampleChunks[:2], metadatas))

	results, err := store.Query(ctx, collection, sampleChunks[0], 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	meta := results[0].Metadata
	assert.Equal(t, sampleChunks[0], meta[MetaText])
	assert.Equal(t, collection, meta[MetaDocumentID])
	assert.Equal(t, 0, meta[MetaChunkIndex])
	assert.Equal(t, RecordKey(collection, 0), meta[MetaRecordKey])
	assert.Equal(t, 3, meta["totalPages"])
	assert.Equal(t, "Biology", meta["title"])

	count, err := store.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "spoofed documentId must not move a record")
}

func TestStore_ReupsertOverwrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	collection := CollectionID("doc-overwrite")

	require.NoError(t, store.Upsert(ctx, collection, sampleChunks, nil))
	replaced := append([]string{"Replacement text about volcanoes and lava."}, sampleChunks[1:]...)
	require.NoError(t, store.Upsert(ctx, collection, replaced, nil))

	count, err := store.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, len(sampleChunks), count)

	results, err := store.Query(ctx, collection, "volcanoes and lava", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, replaced[0], results[0].Text)
}

func TestStore_CollectionsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	a, b := CollectionID("a"), CollectionID("b")

	require.NoError(t, store.Upsert(ctx, a, sampleChunks[:2], nil))
	require.NoError(t, store.Upsert(ctx, b, sampleChunks[2:], nil))

	results, err := store.Query(ctx, a, sampleChunks[2], 5)
	require.NoError(t, err)
	require.Len(t, results, 2, "topK is capped at the collection size")
	for _, r := range results {
		assert.Equal(t, a, r.Metadata[MetaDocumentID])
	}

	require.NoError(t, store.Delete(ctx, a))

	results, err = store.Query(ctx, a, sampleChunks[0], 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	countB, err := store.Count(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 2, countB, "deleting one collection leaves the other intact")
}

func TestStore_BatchesLargeUpserts(t *testing.T) {
	backend := &recordingBackend{}
	store := NewStore(backend, &bagOfWords{}, nil)

	chunks := make([]string, 250)
	for i := range chunks {
		chunks[i] = "chunk text"
	}
	require.NoError(t, store.Upsert(context.Background(), "doc_big", chunks, nil))

	assert.Equal(t, []int{100, 100, 50}, backend.batches)
}

func TestStore_RecordIDsAreDeterministicAndUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, collection := range []string{"doc_a", "doc_b"} {
		for i := 0; i < 50; i++ {
			key := RecordKey(collection, i)
			id := RecordID(key)
			assert.Equal(t, id, RecordID(key))
			assert.False(t, seen[id], "duplicate id for %s", key)
			seen[id] = true
		}
	}
	assert.Equal(t, "doc_a_7", RecordKey("doc_a", 7))
}

func TestStore_Errors(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Upsert(ctx, "", sampleChunks, nil), ErrEmptyCollectionID)
	assert.ErrorIs(t, store.Upsert(ctx, "doc_x", sampleChunks, []map[string]any{{}}), ErrMetadataMismatch)

	_, err := store.Query(ctx, "", "anything", 3)
	assert.ErrorIs(t, err, ErrEmptyCollectionID)

	boom := errors.New("embedding down")
	failing := NewStore(&recordingBackend{}, &bagOfWords{fail: boom}, nil)
	assert.ErrorIs(t, failing.Upsert(ctx, "doc_x", sampleChunks, nil), boom)
}

func TestStore_DimensionMismatch(t *testing.T) {
	backend, err := NewMemoryBackend("")
	require.NoError(t, err)
	store := NewStore(backend, &bagOfWords{}, nil, WithDimension(384))

	err = store.Upsert(context.Background(), "doc_dim", sampleChunks, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStore_EmptyUpsertIsNoop(t *testing.T) {
	backend := &recordingBackend{}
	store := NewStore(backend, &bagOfWords{}, nil)

	require.NoError(t, store.Upsert(context.Background(), "doc_empty", nil, nil))
	assert.Empty(t, backend.batches)
}

// recordingBackend records upsert batch sizes.
type recordingBackend struct {
	batches []int
}

func (r *recordingBackend) Upsert(_ context.Context, records []Record) error {
	r.batches = append(r.batches, len(records))
	return nil
}

func (r *recordingBackend) Query(context.Context, []float32, int, string) ([]Match, error) {
	return nil, nil
}
func (r *recordingBackend) DeleteCollection(context.Context, string) error { return nil }
func (r *recordingBackend) Count(context.Context, string) (int, error)     { return 0, nil }
func (r *recordingBackend) Health(context.Context) error                   { return nil }
func (r *recordingBackend) Close() error                                   { return nil }
