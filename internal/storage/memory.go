package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

// MemoryBackend is an in-process Backend built on chromem-go. It keeps all
// chunks in a single collection and filters by documentId like Qdrant does.
type MemoryBackend struct {
	collection *chromem.Collection

	mu       sync.RWMutex
	metadata map[string]map[string]any // record id -> typed metadata
	owners   map[string]string         // record id -> collection id
	counts   map[string]int            // collection id -> record count
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(name string) (*MemoryBackend, error) {
	if name == "" {
		name = DefaultCollectionName
	}
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}
	return &MemoryBackend{
		collection: collection,
		metadata:   make(map[string]map[string]any),
		owners:     make(map[string]string),
		counts:     make(map[string]int),
	}, nil
}

// noEmbedding is installed as the collection's embedding function. Vectors
// always arrive precomputed, so it is never expected to run.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("memory backend requires precomputed embeddings")
}

// Upsert implements Backend.
func (m *MemoryBackend) Upsert(ctx context.Context, records []Record) error {
	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		owner, _ := rec.Metadata[MetaDocumentID].(string)
		text, _ := rec.Metadata[MetaText].(string)
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   text,
			Embedding: rec.Vector,
			Metadata: map[string]string{
				MetaDocumentID: owner,
				MetaChunkIndex: stringify(rec.Metadata[MetaChunkIndex]),
			},
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		owner, _ := rec.Metadata[MetaDocumentID].(string)
		if prev, ok := m.owners[rec.ID]; ok {
			m.counts[prev]--
		}
		m.owners[rec.ID] = owner
		m.counts[owner]++
		m.metadata[rec.ID] = maps.Clone(rec.Metadata)
	}
	return nil
}

// Query implements Backend.
func (m *MemoryBackend) Query(ctx context.Context, vector []float32, topK int, collectionID string) ([]Match, error) {
	m.mu.RLock()
	n := m.counts[collectionID]
	m.mu.RUnlock()

	// chromem rejects nResults larger than the number of candidates.
	if n == 0 {
		return []Match{}, nil
	}
	if topK > n {
		topK = n
	}

	results, err := m.collection.QueryEmbedding(ctx, vector, topK, map[string]string{MetaDocumentID: collectionID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		meta := maps.Clone(m.metadata[r.ID])
		if meta == nil {
			meta = map[string]any{MetaText: r.Content, MetaDocumentID: collectionID}
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: meta,
		})
	}
	return matches, nil
}

// DeleteCollection implements Backend.
func (m *MemoryBackend) DeleteCollection(ctx context.Context, collectionID string) error {
	if err := m.collection.Delete(ctx, map[string]string{MetaDocumentID: collectionID}, nil); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, owner := range m.owners {
		if owner == collectionID {
			delete(m.owners, id)
			delete(m.metadata, id)
		}
	}
	delete(m.counts, collectionID)
	return nil
}

// Count implements Backend.
func (m *MemoryBackend) Count(_ context.Context, collectionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[collectionID], nil
}

// Health implements Backend. The in-memory index is always available.
func (m *MemoryBackend) Health(context.Context) error { return nil }

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
