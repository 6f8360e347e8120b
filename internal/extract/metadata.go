package extract

import (
	"bytes"
	"regexp"
	"strings"
)

var (
	pageObjectPattern = regexp.MustCompile(`/Type\s*/Page\b`)
	literalTitle      = regexp.MustCompile(`/Title\s*\(((?:[^()\\]|\\[\s\S])*)\)`)
	hexTitle          = regexp.MustCompile(`/Title\s*<([0-9A-Fa-f\s]*)>`)
	xmpTitle          = regexp.MustCompile(`(?s)<dc:title>(.*?)</dc:title>`)
	xmlTag            = regexp.MustCompile(`<[^>]*>`)
)

// estimatePageCount counts page objects in the raw bytes. It is at least 1.
func estimatePageCount(data []byte) int {
	count := len(pageObjectPattern.FindAllIndex(data, -1))
	if kids := bytes.Count(data, []byte("/Kids [")); kids > count {
		count = kids
	}
	if count < 1 {
		count = 1
	}
	return count
}

// extractTitle looks for a document title in the Info dictionary, then in
// XMP metadata. It returns "" when none is found.
func extractTitle(data []byte) string {
	if m := literalTitle.FindSubmatch(data); m != nil {
		if title := cleanText(decodePDFString(decodeEscapes(m[1])), false); title != "" {
			return title
		}
	}
	if m := hexTitle.FindSubmatch(data); m != nil {
		raw, _ := readHex(append(append([]byte{'<'}, m[1]...), '>'), 0)
		if title := cleanText(decodePDFString(raw), false); title != "" {
			return title
		}
	}
	if m := xmpTitle.FindSubmatch(data); m != nil {
		title := xmlTag.ReplaceAllString(string(m[1]), " ")
		if title = cleanText(strings.ReplaceAll(title, "\n", " "), false); title != "" {
			return title
		}
	}
	return ""
}
