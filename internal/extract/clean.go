package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	structuralKeywords = regexp.MustCompile(`\b(?:endobj|endstream|obj|stream)\b`)
	horizontalSpace    = regexp.MustCompile(`[ \t]+`)
	spaceAroundNewline = regexp.MustCompile(` *\n *`)
	excessNewlines     = regexp.MustCompile(`\n{3,}`)
)

// cleanText normalizes extracted text: line endings are unified, control
// characters dropped, runs of whitespace collapsed. Raw strategies also strip
// leaked structural keywords.
func cleanText(text string, stripStructure bool) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == unicode.ReplacementChar:
			return -1
		case unicode.IsSpace(r):
			return ' '
		case !unicode.IsPrint(r):
			return -1
		}
		return r
	}, text)

	if stripStructure {
		text = structuralKeywords.ReplaceAllString(text, "")
	}

	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spaceAroundNewline.ReplaceAllString(text, "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
