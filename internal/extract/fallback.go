package extract

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Strategy is one raw text recovery technique. Extract must be pure.
type Strategy struct {
	Name    string
	Extract func(data []byte) string
}

// FallbackStrategies returns the raw strategies in the order they are tried.
func FallbackStrategies() []Strategy {
	return []Strategy{
		{Name: "text-operators", Extract: ScanTextOperators},
		{Name: "stream-blocks", Extract: ScanStreamBlocks},
		{Name: "parenthetical", Extract: ScanParentheticals},
		{Name: "readable-ascii", Extract: ScanReadableASCII},
	}
}

// maxInflatedStream caps the size of a single decompressed stream.
const maxInflatedStream = 32 << 20

// kerningSpace is the TJ displacement (thousandths of an em) beyond which a
// gap is treated as a word break.
const kerningSpace = -200

var (
	streamPattern      = regexp.MustCompile(`(?s)\bstream\r?\n(.*?)endstream`)
	textObjectPattern  = regexp.MustCompile(`(?s)\bBT\b(.*?)\bET\b`)
	parenRunPattern    = regexp.MustCompile(`\(((?:[^()\\]|\\[\s\S])+)\)`)
	printableRun       = regexp.MustCompile(`[\x20-\x7E]{4,}`)
	structuralWords    = regexp.MustCompile(`\b(?:endobj|obj|endstream|stream|xref|trailer|startxref)\b|%%EOF|%PDF-[0-9.]*`)
	containsLetter     = regexp.MustCompile(`[A-Za-z]`)
	lineBreakOperators = map[string]bool{"T*": true, "ET": true, "Tm": true}
)

// ScanTextOperators decodes the string operands of the text-showing operators
// Tj, ', " and TJ. Each stream is scanned on its own, inflated when
// compressed. The whole file is scanned only when no stream yields text.
func ScanTextOperators(data []byte) string {
	parts := scanShowSources(streamPayloads(data))
	if len(parts) == 0 {
		parts = scanShowSources([][]byte{data})
	}
	return strings.Join(parts, "\n")
}

func scanShowSources(sources [][]byte) []string {
	var parts []string
	for _, src := range sources {
		if text := scanShowOperators(src); strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return parts
}

// ScanStreamBlocks extracts parenthesized strings found inside BT/ET text
// objects of each stream.
func ScanStreamBlocks(data []byte) string {
	var blocks []string
	for _, payload := range streamPayloads(data) {
		for _, m := range textObjectPattern.FindAllSubmatch(payload, -1) {
			var words []string
			for _, s := range literalStrings(m[1]) {
				if strings.TrimSpace(s) != "" {
					words = append(words, s)
				}
			}
			if len(words) > 0 {
				blocks = append(blocks, strings.Join(words, " "))
			}
		}
	}
	return strings.Join(blocks, "\n")
}

// ScanParentheticals keeps every parenthesized run longer than one character
// that contains at least one letter.
func ScanParentheticals(data []byte) string {
	var parts []string
	for _, m := range parenRunPattern.FindAllSubmatch(data, -1) {
		text := strings.TrimSpace(decodePDFString(decodeEscapes(m[1])))
		if len([]rune(text)) > 1 && containsLetter.MatchString(text) {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// ScanReadableASCII keeps printable runs of four or more characters that are
// not PDF structure.
func ScanReadableASCII(data []byte) string {
	var parts []string
	for _, run := range printableRun.FindAll(data, -1) {
		text := strings.TrimSpace(string(run))
		if isStructural(text) {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

func isStructural(text string) bool {
	stripped := structuralWords.ReplaceAllString(text, "")
	for _, r := range stripped {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// streamPayloads returns each stream body, inflated when it is compressed.
func streamPayloads(data []byte) [][]byte {
	var payloads [][]byte
	for _, m := range streamPattern.FindAllSubmatch(data, -1) {
		if inflated := inflate(m[1]); len(inflated) > 0 {
			payloads = append(payloads, inflated)
			continue
		}
		payloads = append(payloads, m[1])
	}
	return payloads
}

// inflate decodes a FlateDecode payload. Truncated streams still return what
// was decoded before the error.
func inflate(payload []byte) []byte {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	defer r.Close()
	out, _ := io.ReadAll(io.LimitReader(r, maxInflatedStream))
	return out
}

// operand is the last value pushed before an operator.
type operand struct {
	kind byte // 's' string, 'a' array, 'o' other
	text string
}

// scanShowOperators tokenizes a content stream and emits the text of every
// show operator.
func scanShowOperators(src []byte) string {
	var (
		out   strings.Builder
		last  operand
		sep   = ""
		array *strings.Builder
	)
	emit := func(text string) {
		if text == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteString(sep)
		}
		out.WriteString(text)
		sep = " "
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case isWhite(c):
			i++
		case c == '%':
			for i < len(src) && src[i] != '\n' && src[i] != '\r' {
				i++
			}
		case c == '(':
			raw, end := readLiteral(src, i)
			text := decodePDFString(decodeEscapes(raw))
			if array != nil {
				array.WriteString(text)
			} else {
				last = operand{kind: 's', text: text}
			}
			i = end
		case c == '<' && i+1 < len(src) && src[i+1] == '<':
			last = operand{kind: 'o'}
			i += 2
		case c == '<':
			raw, end := readHex(src, i)
			text := decodePDFString(raw)
			if array != nil {
				array.WriteString(text)
			} else {
				last = operand{kind: 's', text: text}
			}
			i = end
		case c == '[':
			array = &strings.Builder{}
			i++
		case c == ']':
			if array != nil {
				last = operand{kind: 'a', text: array.String()}
				array = nil
			}
			i++
		case isDelimiter(c):
			i++
		default:
			start := i
			for i < len(src) && !isWhite(src[i]) && !isDelimiter(src[i]) {
				i++
			}
			token := string(src[start:i])
			if array != nil {
				if n, err := strconv.ParseFloat(token, 64); err == nil && n < kerningSpace {
					array.WriteString(" ")
				}
				continue
			}
			switch token {
			case "Tj":
				if last.kind == 's' {
					emit(last.text)
				}
			case "'", "\"":
				if last.kind == 's' {
					sep = "\n"
					emit(last.text)
				}
			case "TJ":
				if last.kind == 'a' {
					emit(last.text)
				}
			default:
				if lineBreakOperators[token] && out.Len() > 0 {
					sep = "\n"
				}
				if _, err := strconv.ParseFloat(token, 64); err == nil || strings.HasPrefix(token, "/") {
					// Numbers and names are operands; keep the pending string
					// for operators such as `aw ac (str) "`.
					if last.kind != 's' {
						last = operand{kind: 'o'}
					}
					continue
				}
			}
			last = operand{kind: 'o'}
		}
	}
	return out.String()
}

// literalStrings returns the decoded text of every literal string in src.
func literalStrings(src []byte) []string {
	var out []string
	for i := 0; i < len(src); i++ {
		if src[i] != '(' {
			continue
		}
		raw, end := readLiteral(src, i)
		out = append(out, decodePDFString(decodeEscapes(raw)))
		i = end - 1
	}
	return out
}

// readLiteral reads a balanced literal string starting at src[start] == '('.
// It returns the raw body (escapes intact) and the index after the closing
// parenthesis, or len(src) when the string is unterminated.
func readLiteral(src []byte, start int) ([]byte, int) {
	depth := 1
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return src[start+1 : i], i + 1
			}
		}
	}
	return src[start+1:], len(src)
}

// readHex reads a hex string starting at src[start] == '<'.
func readHex(src []byte, start int) ([]byte, int) {
	var digits []byte
	i := start + 1
	for ; i < len(src) && src[i] != '>'; i++ {
		if isHexDigit(src[i]) {
			digits = append(digits, src[i])
		}
	}
	if i < len(src) {
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for j := range out {
		out[j] = hexValue(digits[2*j])<<4 | hexValue(digits[2*j+1])
	}
	return out, i
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
