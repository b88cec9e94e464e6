// Package extract isolates marker-delimited spans ("*like this*") from a chat
// message and splits them into word tokens.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMarker delimits the spans that are considered for detection.
const DefaultMarker = "*"

// separators is the split set: space, slash, hyphen, pipe, ASCII and Arabic
// comma, semicolon, colon.
const separators = " /-|,،;:"

var splitRe = regexp.MustCompile(`[\s/\-|,،;:]+`)

// Extractor pulls tokens out of marker-delimited spans.
type Extractor struct {
	marker string
	spanRe *regexp.Regexp
}

// New creates an Extractor for the given marker. An empty marker uses DefaultMarker.
func New(marker string) *Extractor {
	if marker == "" {
		marker = DefaultMarker
	}
	q := regexp.QuoteMeta(marker)
	return &Extractor{
		marker: marker,
		spanRe: regexp.MustCompile(`(?s)` + q + `(.*?)` + q),
	}
}

var defaultExtractor = New(DefaultMarker)

// Tokens extracts tokens using the default "*" marker.
func Tokens(text string) []string {
	return defaultExtractor.Tokens(text)
}

// Marker returns the configured delimiter.
func (e *Extractor) Marker() string { return e.marker }

// Spans returns the raw substrings between paired markers, first-to-first.
// A trailing unpaired marker contributes nothing.
func (e *Extractor) Spans(text string) []string {
	matches := e.spanRe.FindAllStringSubmatch(text, -1)
	spans := make([]string, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, m[1])
	}
	return spans
}

// Tokens returns the ordered word tokens found inside marker pairs. A message
// without any marker pair yields an empty slice.
func (e *Extractor) Tokens(text string) []string {
	spans := e.Spans(text)
	if len(spans) == 0 {
		return []string{}
	}
	cleaned := Clean(strings.Join(spans, " "))

	tokens := []string{}
	for _, tok := range splitRe.Split(cleaned, -1) {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Clean drops emoji and symbol runes, then anything outside the allow-list
// (Arabic blocks, Arabic presentation forms, ASCII letters, whitespace and
// the separator set).
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isEmojiOrSymbol(r) {
			continue
		}
		if allowed(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isEmojiOrSymbol(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji, pictographs, flags
		return true
	case r >= 0x2300 && r <= 0x23FF, r >= 0x2600 && r <= 0x27BF, r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r == 0x200D, r == 0x20E3: // variation selectors, ZWJ, keycap
		return true
	case r >= 0xE0000 && r <= 0xE007F: // tag sequences
		return true
	}
	return unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r)
}

func allowed(r rune) bool {
	switch {
	case r >= 0x0600 && r <= 0x06FF, r >= 0x0750 && r <= 0x077F, r >= 0x08A0 && r <= 0x08FF:
		return true
	case r >= 0xFB50 && r <= 0xFDFF, r >= 0xFE70 && r <= 0xFEFF:
		return r != 0xFEFF
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(separators, r)
}
