package indexer

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxUploadBytes is the largest accepted PDF.
const DefaultMaxUploadBytes = 10 << 20

var (
	ErrEmptyUpload = errors.New("upload is empty")
	ErrNotPDF      = errors.New("only PDF files are allowed")
	ErrTooLarge    = errors.New("file exceeds size limit")
)

var pdfMagic = []byte("%PDF")

// headerWindow is how far into the file the PDF header may start.
const headerWindow = 1024

// Upload is a PDF handed to the pipeline.
type Upload struct {
	Filename string // name as supplied by the caller
	Data     []byte
}

// ValidateUpload checks that data looks like a PDF and is at most maxBytes
// long. A maxBytes of zero or less selects DefaultMaxUploadBytes.
func ValidateUpload(u Upload, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if len(u.Data) == 0 {
		return ErrEmptyUpload
	}
	if int64(len(u.Data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(u.Data), maxBytes)
	}
	if !hasPDFHeader(u.Data) {
		return ErrNotPDF
	}
	if ext := strings.ToLower(filepath.Ext(u.Filename)); ext != "" && ext != ".pdf" {
		return fmt.Errorf("%w: %s", ErrNotPDF, u.Filename)
	}
	return nil
}

// hasPDFHeader reports whether %PDF appears within the first headerWindow
// bytes, allowing leading junk or a byte order mark.
func hasPDFHeader(data []byte) bool {
	if len(data) > headerWindow {
		data = data[:headerWindow]
	}
	return bytes.Contains(data, pdfMagic)
}

// storedName derives a filesystem-safe name from the uploaded one.
func storedName(id, original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || name == "." || name == "_" {
		name = "document.pdf"
	}
	return id + "-" + name
}
