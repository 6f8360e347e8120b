// Package extract recovers plain text from PDF bytes, including malformed or
// protection-hostile files that a structured parser rejects.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// MethodStructured marks text produced by the structured PDF parser.
	MethodStructured = "structured"

	// MethodNone marks the sentinel result returned when nothing was recovered.
	MethodNone = "none"

	// FailureTitle is the title of the sentinel result.
	FailureTitle = "Extraction Failed"

	// FailureMessage is the text of the sentinel result. It becomes the single
	// chunk indexed for the document.
	FailureMessage = "Text could not be extracted from this PDF. The file may be scanned, " +
		"image-only, encrypted or damaged. Please upload a text-based PDF to ask questions about it."
)

// ErrMalformedPDF is returned by the structured parser when the file cannot be read.
var ErrMalformedPDF = errors.New("malformed pdf")

// Result is the text extracted from one PDF.
type Result struct {
	Text      string
	PageCount int
	WordCount int
	Title     string // empty when the document carries no title
	Method    string // strategy that produced Text
}

// Failed reports whether r is the sentinel produced when every strategy failed.
func (r *Result) Failed() bool {
	return r.Method == MethodNone
}

// Extractor runs the structured parser first and the raw strategies after it.
type Extractor struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewExtractor creates an extractor using the default fallback chain.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		strategies: FallbackStrategies(),
		logger:     logger,
	}
}

// Extract returns the text of data. It never fails: when no strategy recovers
// any text the sentinel result is returned.
func (e *Extractor) Extract(data []byte) *Result {
	structured, err := parseStructured(data)
	if err != nil {
		e.logger.Debug("Structured parse failed, trying raw strategies", "error", err)
	} else if text := cleanText(structured.Text, false); text != "" {
		structured.Text = text
		structured.WordCount = countWords(text)
		if structured.Title == "" {
			structured.Title = extractTitle(data)
		}
		return structured
	}

	for _, strategy := range e.strategies {
		text := cleanText(strategy.Extract(data), true)
		if text == "" {
			e.logger.Debug("Strategy recovered no text", "strategy", strategy.Name)
			continue
		}
		e.logger.Info("Recovered text with raw strategy", "strategy", strategy.Name, "chars", len(text))
		return &Result{
			Text:      text,
			PageCount: estimatePageCount(data),
			WordCount: countWords(text),
			Title:     extractTitle(data),
			Method:    strategy.Name,
		}
	}

	e.logger.Warn("All extraction strategies failed", "bytes", len(data))
	return failureResult()
}

func failureResult() *Result {
	return &Result{
		Text:      FailureMessage,
		PageCount: 1,
		WordCount: 0,
		Title:     FailureTitle,
		Method:    MethodNone,
	}
}

// parseStructured reads the document with ledongthuc/pdf. The library panics
// on some broken cross-reference tables, so panics become ErrMalformedPDF.
func parseStructured(data []byte) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrMalformedPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPDF, err)
	}

	pages := reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	title := ""
	if info := reader.Trailer().Key("Info"); !info.IsNull() {
		title = strings.TrimSpace(info.Key("Title").Text())
	}

	if pages < 1 {
		pages = 1
	}
	return &Result{
		Text:      b.String(),
		PageCount: pages,
		Title:     title,
		Method:    MethodStructured,
	}, nil
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
