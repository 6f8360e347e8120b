package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

// TestSplit_ShortSentences tests that text smaller than one chunk stays whole.
func TestSplit_ShortSentences(t *testing.T) {
	input := "The cat sat. The dog ran! Did the bird fly?"

	chunks := Split(input, 1000, 100)

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != input {
		t.Errorf("Chunk text: expected %q, got %q", input, chunks[0])
	}
}

// TestSplit_NormalizesWhitespace tests that newlines and runs of spaces collapse.
func TestSplit_NormalizesWhitespace(t *testing.T) {
	chunks := Split("  First line.\n\nSecond   line.\t ", 1000, 0)

	if len(chunks) != 1 || chunks[0] != "First line. Second line." {
		t.Errorf("Unexpected chunks: %q", chunks)
	}
}

// TestSplit_SeedCarriedPastSize tests that the seed is kept even when the seeded chunk exceeds size.
func TestSplit_SeedCarriedPastSize(t *testing.T) {
	input := "Alpha beta gamma delta. Epsilon zeta eta theta. Iota kappa lambda mu."

	chunks := Split(input, 30, 20)

	expected := []string{
		"Alpha beta gamma delta.",
		"gamma delta. Epsilon zeta eta theta.",
		"eta theta. Iota kappa lambda mu.",
	}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}
}

// TestSplit_SeedBeforeLongSentence tests that an oversize sentence following a buffer is seeded, not cut.
func TestSplit_SeedBeforeLongSentence(t *testing.T) {
	long := strings.Repeat("x", 40) + "."

	chunks := Split("Alpha beta gamma delta. "+long, 45, 20)

	expected := []string{"Alpha beta gamma delta.", "gamma delta. " + long}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}

	long = strings.Repeat("y", 60) + "."
	chunks = Split("Short one here. "+long, 30, 20)

	expected = []string{"Short one here.", "one here. " + long}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}
}

// TestSplit_SeedWords tests seeding when the seed fits.
func TestSplit_SeedWords(t *testing.T) {
	input := "One two three. Four five six. Seven eight."

	chunks := Split(input, 30, 20)

	expected := []string{
		"One two three. Four five six.",
		"five six. Seven eight.",
	}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}
}

// TestSplit_ZeroSeedWords tests that overlap below 10 carries nothing over.
func TestSplit_ZeroSeedWords(t *testing.T) {
	input := "One two three. Four five six. Seven eight."

	chunks := Split(input, 30, 9)

	expected := []string{
		"One two three. Four five six.",
		"Seven eight.",
	}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}
}

// TestSplit_LongSentence tests the single hard cut of an oversize first sentence.
func TestSplit_LongSentence(t *testing.T) {
	input := strings.Repeat("a", 25)

	chunks := Split(input, 10, 2)

	// One cut at 10 runes; the buffer resumes at offset 8 and is flushed whole.
	expected := []string{
		strings.Repeat("a", 10),
		strings.Repeat("a", 17),
	}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}
}

// TestSplit_LongSentenceRemainderClosedByOverflow tests that the cut remainder is emitted when the next sentence overflows.
func TestSplit_LongSentenceRemainderClosedByOverflow(t *testing.T) {
	input := strings.Repeat("a", 25) + ". Next one."

	chunks := Split(input, 10, 2)

	expected := []string{
		strings.Repeat("a", 10),
		strings.Repeat("a", 17) + ".",
		"Next one.",
	}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}
}

// TestSplit_OverlapNotSmallerThanSize tests that the hard cut always advances.
func TestSplit_OverlapNotSmallerThanSize(t *testing.T) {
	chunks := Split(strings.Repeat("c", 20), 5, 50)

	expected := []string{strings.Repeat("c", 5), strings.Repeat("c", 19)}
	if !reflect.DeepEqual(chunks, expected) {
		t.Errorf("Chunks: expected %q, got %q", expected, chunks)
	}
}

// TestSplit_Empty tests that blank input produces no chunks.
func TestSplit_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t\n"} {
		if chunks := Split(input, 100, 10); len(chunks) != 0 {
			t.Errorf("Input %q: expected no chunks, got %q", input, chunks)
		}
	}
}

// TestSplit_OverlapProperties tests chunk bounds and seeding over a long input.
func TestSplit_OverlapProperties(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("x", i%9))
		b.WriteString(" ends here. ")
	}
	sentences := SplitSentences(b.String())
	longest := 0
	for _, s := range sentences {
		longest = max(longest, utf8.RuneCountInString(s))
	}

	for _, size := range []int{40, 100, 1000} {
		for _, overlap := range []int{0, 10, 100} {
			chunks := Split(b.String(), size, overlap)
			for i, chunk := range chunks {
				if strings.TrimSpace(chunk) == "" {
					t.Errorf("size=%d overlap=%d: blank chunk", size, overlap)
				}
				if n := utf8.RuneCountInString(chunk); n > size+overlap+longest {
					t.Errorf("size=%d overlap=%d: chunk %d has %d runes", size, overlap, i, n)
				}
				if i == 0 {
					continue
				}
				if seed := lastWords(chunks[i-1], overlap/10); !strings.HasPrefix(chunk, seed) {
					t.Errorf("size=%d overlap=%d: chunk %d does not start with %q", size, overlap, i, seed)
				}
			}
		}
	}
}

// TestSplit_Deterministic tests identical output for identical input.
func TestSplit_Deterministic(t *testing.T) {
	input := strings.Repeat("Repeatable text for chunking. Another line follows! ", 80)

	first := Split(input, 200, 50)
	second := Split(input, 200, 50)

	if !reflect.DeepEqual(first, second) {
		t.Error("Split is not deterministic")
	}
}

// TestSplit_CountsRunes tests that multi-byte text is measured in characters.
func TestSplit_CountsRunes(t *testing.T) {
	input := "Ünïcödé wörds. Ärger über Öl."

	chunks := Split(input, 30, 0)

	if len(chunks) != 1 {
		t.Errorf("Expected 1 chunk, got %d: %q", len(chunks), chunks)
	}
}

// TestChunker_Split tests indices and defaults of the Chunker wrapper.
func TestChunker_Split(t *testing.T) {
	c := NewChunker(0, -5)
	if c.Size() != DefaultSize || c.Overlap() != 0 {
		t.Errorf("Defaults: got size=%d overlap=%d", c.Size(), c.Overlap())
	}

	c = NewChunker(25, 0)
	chunks := c.Split("First sentence here. Second sentence here. Third one.")
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("Chunk %d index: got %d", i, chunk.Index)
		}
	}
}

// TestSplitSentences tests sentence boundaries.
func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Dr.Who is here. Really? Yes! version 1.2 works")
	expected := []string{"Dr.Who is here.", "Really?", "Yes!", "version 1.2 works"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Sentences: expected %q, got %q", expected, got)
	}
}
