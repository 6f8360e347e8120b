package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/pdf-rag/internal/indexer"
	"github.com/mike-a-ellis/pdf-rag/internal/records"
	"github.com/mike-a-ellis/pdf-rag/internal/retrieval"
)

// makeIngestHandler creates the ingest_pdf tool handler.
// The upload is read from disk or decoded from base64, validated, then run
// through the ingestion pipeline synchronously.
func makeIngestHandler(pipeline Ingester, maxBytes int64) func(
	context.Context, *mcp.CallToolRequest, IngestPDFInput,
) (*mcp.CallToolResult, IngestPDFOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestPDFInput) (
		*mcp.CallToolResult, IngestPDFOutput, error,
	) {
		upload, err := readUpload(input, maxBytes)
		if err != nil {
			return nil, IngestPDFOutput{}, err
		}

		doc, err := pipeline.Ingest(ctx, upload)
		if doc == nil {
			return nil, IngestPDFOutput{}, fmt.Errorf("failed to ingest %s: %w", upload.Filename, err)
		}

		out := IngestPDFOutput{Document: toDocumentInfo(doc)}
		if err != nil {
			out.Message = fmt.Sprintf("Processing failed: %v", err)
		} else {
			out.Message = fmt.Sprintf("Indexed %d chunks from %d pages.", doc.ChunksCount, doc.PageCount)
		}
		return nil, out, nil
	}
}

func readUpload(input IngestPDFInput, maxBytes int64) (indexer.Upload, error) {
	switch {
	case input.Path != "" && input.ContentBase64 != "":
		return indexer.Upload{}, errors.New("set either path or content_base64, not both")
	case input.Path != "":
		info, err := os.Stat(input.Path)
		if err != nil {
			return indexer.Upload{}, fmt.Errorf("failed to read %s: %w", input.Path, err)
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			return indexer.Upload{}, fmt.Errorf("%w: %d bytes, limit %d", indexer.ErrTooLarge, info.Size(), maxBytes)
		}
		data, err := os.ReadFile(input.Path)
		if err != nil {
			return indexer.Upload{}, fmt.Errorf("failed to read %s: %w", input.Path, err)
		}
		return indexer.Upload{Filename: filepath.Base(input.Path), Data: data}, nil
	case input.ContentBase64 != "":
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(input.ContentBase64))
		if err != nil {
			return indexer.Upload{}, fmt.Errorf("invalid content_base64: %w", err)
		}
		name := input.Filename
		if name == "" {
			name = "upload.pdf"
		}
		return indexer.Upload{Filename: name, Data: data}, nil
	default:
		return indexer.Upload{}, errors.New("path or content_base64 is required")
	}
}

// makeAskHandler creates the ask_documents tool handler.
func makeAskHandler(asker Asker) func(
	context.Context, *mcp.CallToolRequest, AskDocumentsInput,
) (*mcp.CallToolResult, AskDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskDocumentsInput) (
		*mcp.CallToolResult, AskDocumentsOutput, error,
	) {
		answer, err := asker.Ask(ctx, retrieval.Request{
			Question:    input.Question,
			DocumentIDs: input.DocumentIDs,
			SessionID:   input.SessionID,
		})
		if err != nil {
			return nil, AskDocumentsOutput{}, fmt.Errorf("failed to answer: %w", err)
		}

		sources := answer.Sources
		if sources == nil {
			sources = []retrieval.Source{} // Ensure non-nil for JSON marshaling
		}
		return nil, AskDocumentsOutput{
			Answer:       answer.Response,
			SessionID:    answer.SessionID,
			SessionTitle: answer.SessionTitle,
			NoContext:    answer.NoContext,
			Sources:      sources,
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(documents records.DocumentStore) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := documents.ListDocuments(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		infos := make([]DocumentInfo, 0, len(docs))
		for _, d := range docs {
			infos = append(infos, toDocumentInfo(d))
		}
		return nil, ListDocumentsOutput{Documents: infos, Count: len(infos)}, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler.
// Deleting an unknown document is reported, not treated as a failure.
func makeDeleteHandler(pipeline Ingester) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		if input.ID == "" {
			return nil, DeleteDocumentOutput{}, errors.New("id is required")
		}
		err := pipeline.DeleteDocument(ctx, input.ID)
		if errors.Is(err, records.ErrDocumentNotFound) {
			return nil, DeleteDocumentOutput{ID: input.ID, Deleted: false}, nil
		}
		if err != nil {
			return nil, DeleteDocumentOutput{}, fmt.Errorf("failed to delete document: %w", err)
		}
		return nil, DeleteDocumentOutput{ID: input.ID, Deleted: true}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// Reports record counts per status, the chunk count recorded at ingestion
// and the chunk count the vector backend actually holds.
func makeStatusHandler(documents records.DocumentStore, vectors VectorStatus) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		out := StatusOutput{ByStatus: map[string]int{}, VectorBackend: "connected"}
		if err := vectors.Health(ctx); err != nil {
			out.VectorBackend = "disconnected"
		}

		var docs []*records.Document
		if input.DocumentID != "" {
			doc, err := documents.GetDocument(ctx, input.DocumentID)
			if err != nil {
				return nil, StatusOutput{}, fmt.Errorf("failed to get document: %w", err)
			}
			info := toDocumentInfo(doc)
			out.Document = &info
			docs = []*records.Document{doc}
		} else {
			all, err := documents.ListDocuments(ctx)
			if err != nil {
				return nil, StatusOutput{}, fmt.Errorf("failed to list documents: %w", err)
			}
			docs = all
		}

		out.TotalDocs = len(docs)
		for _, d := range docs {
			out.ByStatus[string(d.Status)]++
			out.TotalChunks += d.ChunksCount
			if out.VectorBackend != "connected" || d.Status != records.StatusReady {
				continue
			}
			n, err := vectors.Count(ctx, d.CollectionID)
			if err != nil {
				out.VectorBackend = "disconnected"
				continue
			}
			out.IndexedChunks += n
		}
		return nil, out, nil
	}
}
