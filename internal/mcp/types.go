// Package mcp exposes PDF ingestion and question answering as MCP tools.
package mcp

import (
	"time"

	"github.com/mike-a-ellis/pdf-rag/internal/records"
	"github.com/mike-a-ellis/pdf-rag/internal/retrieval"
)

// IngestPDFInput defines the input parameters for the ingest_pdf tool.
// Exactly one of Path and ContentBase64 must be set.
type IngestPDFInput struct {
	// Path is a PDF file readable by the server process.
	Path string `json:"path,omitempty" jsonschema:"Path of a PDF file on the server"`
	// ContentBase64 is the PDF itself, base64 encoded.
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"Base64-encoded PDF bytes, used when path is empty"`
	// Filename names an inline upload.
	Filename string `json:"filename,omitempty" jsonschema:"Original file name of an inline upload"`
}

// IngestPDFOutput describes the ingested document.
type IngestPDFOutput struct {
	Document DocumentInfo `json:"document"`
	Message  string       `json:"message"`
}

// AskDocumentsInput defines the input parameters for the ask_documents tool.
type AskDocumentsInput struct {
	Question    string   `json:"question" jsonschema:"The question to answer from the documents"`
	DocumentIDs []string `json:"document_ids" jsonschema:"IDs of ready documents to search"`
	SessionID   string   `json:"session_id,omitempty" jsonschema:"Chat session to continue; omit to start a new one"`
}

// AskDocumentsOutput is the generated answer.
type AskDocumentsOutput struct {
	Answer       string             `json:"answer"`
	SessionID    string             `json:"session_id,omitempty"`
	SessionTitle string             `json:"session_title,omitempty"`
	NoContext    bool               `json:"no_context"`
	Sources      []retrieval.Source `json:"sources"`
}

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput lists every document, newest first.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	ID string `json:"id" jsonschema:"ID of the document to delete"`
}

// DeleteDocumentOutput reports whether the document existed.
type DeleteDocumentOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// StatusInput defines the input parameters for the get_index_status tool.
type StatusInput struct {
	DocumentID string `json:"document_id,omitempty" jsonschema:"Limit the report to one document"`
}

// StatusOutput summarizes the index.
type StatusOutput struct {
	TotalDocs     int            `json:"total_docs"`
	ByStatus      map[string]int `json:"by_status"`
	TotalChunks   int            `json:"total_chunks"`
	IndexedChunks int            `json:"indexed_chunks"`
	VectorBackend string         `json:"vector_backend"`
	Document      *DocumentInfo  `json:"document,omitempty"`
}

// DocumentInfo is the tool-facing view of a document record.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Title     string    `json:"title,omitempty"`
	Pages     int       `json:"pages"`
	Words     int       `json:"words"`
	Chunks    int       `json:"chunks"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDocumentInfo(d *records.Document) DocumentInfo {
	return DocumentInfo{
		ID:        d.ID,
		Name:      d.OriginalName,
		Status:    string(d.Status),
		Error:     d.Error,
		Title:     d.Title,
		Pages:     d.PageCount,
		Words:     d.WordCount,
		Chunks:    d.ChunksCount,
		SizeBytes: d.FileSize,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
