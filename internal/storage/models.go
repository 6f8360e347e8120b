package storage

import (
	"strconv"

	"github.com/google/uuid"
)

// Record is one embedded chunk as stored in the vector backend.
type Record struct {
	ID       string         // UUIDv5 derived from Key
	Key      string         // "<collectionId>_<index>"
	Vector   []float32
	Metadata map[string]any // always carries text, documentId, chunkIndex
}

// Match is a raw nearest-neighbour hit returned by a Backend.
type Match struct {
	ID       string
	Score    float64 // cosine similarity, higher is closer
	Metadata map[string]any
}

// QueryResult is one retrieved chunk.
type QueryResult struct {
	Text     string
	Score    float64
	Distance float64 // 1 - Score
	Metadata map[string]any
}

// Metadata keys written on every record. They override caller metadata.
const (
	MetaText       = "text"
	MetaDocumentID = "documentId"
	MetaChunkIndex = "chunkIndex"
	MetaRecordKey  = "recordKey"
)

// DefaultCollectionName is the single backend collection holding every document's chunks.
const DefaultCollectionName = "pdf_chunks"

// BatchSize is the number of records sent per upsert request.
const BatchSize = 100

// recordNamespace scopes record ids so the same key always maps to the same UUID.
var recordNamespace = uuid.MustParse("6f1c2a7e-3b8d-5c4e-9a1f-0d2e4b6c8a10")

// CollectionID returns the vector collection id for a document.
func CollectionID(documentID string) string {
	return "doc_" + documentID
}

// RecordKey returns the human readable key of a chunk record.
func RecordKey(collectionID string, index int) string {
	return collectionID + "_" + strconv.Itoa(index)
}

// RecordID returns the backend id for a record key. Qdrant only accepts
// UUIDs or integers as point ids, so the key is hashed into a UUIDv5.
func RecordID(key string) string {
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}
