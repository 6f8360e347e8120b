// Package chunker splits extracted document text into overlapping,
// sentence-aligned chunks sized for embedding.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the maximum chunk length in characters.
	DefaultSize = 1000
	// DefaultOverlap controls how much context is carried between chunks.
	DefaultOverlap = 100
)

// Chunk is one piece of a document.
type Chunk struct {
	Index int    // Position in document (0, 1, 2...)
	Text  string // Trimmed, never empty
}

// Chunker splits text at sentence boundaries with a fixed size and overlap.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. A non-positive size selects DefaultSize and a
// negative overlap is treated as zero.
func NewChunker(size, overlap int) *Chunker {
	size, overlap = normalize(size, overlap)
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the configured maximum chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the indexed chunks of text.
func (c *Chunker) Split(text string) []Chunk {
	parts := Split(text, c.size, c.overlap)
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{Index: i, Text: p}
	}
	return chunks
}

// Split breaks text into overlapping, sentence-aligned chunks.
//
// Sentences are packed greedily up to size characters. When a sentence does
// not fit, the current chunk is closed and the next one starts with the last
// overlap/10 words of the closed chunk followed by that sentence, even when
// the result is longer than size. A sentence longer than size with nothing
// buffered is cut once: its first size characters become a chunk and the
// buffer continues from offset size-overlap.
func Split(text string, size, overlap int) []string {
	size, overlap = normalize(size, overlap)
	seedWords := overlap / 10

	var (
		chunks []string
		buffer string
	)
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, sentence := range SplitSentences(text) {
		sentenceLen := utf8.RuneCountInString(sentence)

		if buffer == "" {
			if sentenceLen <= size {
				buffer = sentence
				continue
			}
			runes := []rune(sentence)
			emit(string(runes[:size]))
			buffer = string(runes[cutOffset(size, overlap):])
			continue
		}

		if utf8.RuneCountInString(buffer)+1+sentenceLen <= size {
			buffer += " " + sentence
			continue
		}

		emit(buffer)
		if seed := lastWords(buffer, seedWords); seed != "" {
			buffer = seed + " " + sentence
		} else {
			buffer = sentence
		}
	}
	emit(buffer)

	return chunks
}

// cutOffset is where the buffer resumes after a hard cut. It always moves
// forward by at least one rune.
func cutOffset(size, overlap int) int {
	if size-overlap < 1 {
		return 1
	}
	return size - overlap
}

// SplitSentences collapses whitespace and splits text after '.', '!' or '?'
// when followed by whitespace. Terminal punctuation stays with its sentence.
func SplitSentences(text string) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(normalized)-1; i++ {
		switch normalized[i] {
		case '.', '!', '?':
			if normalized[i+1] == ' ' {
				sentences = append(sentences, normalized[start:i+1])
				start = i + 2
				i++
			}
		}
	}
	if start < len(normalized) {
		sentences = append(sentences, normalized[start:])
	}
	return sentences
}

func lastWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return size, overlap
}
