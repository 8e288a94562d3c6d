// Package sentence splits source text into synthesizable chunks and derives
// the spoken projection of each chunk.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinLength is the shortest spoken segment that is sent on its own.
// Shorter segments are merged into the segment that follows them.
const DefaultMinLength = 20

// Span is a half-open byte range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Split breaks text into contiguous spans that cover all of it.
//
// A segment ends after a run of sentence terminators (optionally followed by
// closing quotes or brackets) that is followed by whitespace or the end of the
// text, or after a line break that follows non-blank text. The whitespace run
// after a boundary stays with the segment before it. A segment whose trimmed
// length is below minLength is merged into the next one; the final segment is
// always kept, however short.
func Split(text string, minLength int) []Span {
	if text == "" {
		return nil
	}
	if minLength < 0 {
		minLength = 0
	}

	segments := findSegments(text)
	spans := make([]Span, 0, len(segments))

	pending := -1
	for i, seg := range segments {
		start := seg.Start
		if pending >= 0 {
			start = pending
		}

		last := i == len(segments)-1
		spoken := strings.TrimSpace(text[start:seg.End])
		if !last && utf8.RuneCountInString(spoken) < minLength {
			pending = start
			continue
		}

		spans = append(spans, Span{Start: start, End: seg.End})
		pending = -1
	}

	return spans
}

// findSegments returns the raw, unmerged sentence segments of text.
func findSegments(text string) []Span {
	var segments []Span
	segStart := 0
	hasContent := false

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		switch {
		case isTerminator(r):
			end := skipTerminators(text, i)
			if !isBoundary(text, i, end) {
				i = end
				hasContent = true
				continue
			}
			end = skipSpace(text, end)
			segments = append(segments, Span{Start: segStart, End: end})
			segStart = end
			hasContent = false
			i = end

		case r == '\n' && hasContent:
			end := skipSpace(text, i)
			segments = append(segments, Span{Start: segStart, End: end})
			segStart = end
			hasContent = false
			i = end

		default:
			if !unicode.IsSpace(r) {
				hasContent = true
			}
			i += size
		}
	}

	if segStart < len(text) {
		if len(segments) > 0 && strings.TrimSpace(text[segStart:]) == "" {
			segments[len(segments)-1].End = len(text)
		} else {
			segments = append(segments, Span{Start: segStart, End: len(text)})
		}
	}

	return segments
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

// skipTerminators returns the byte offset just past the terminator run
// starting at pos and any closing quotes or brackets after it.
func skipTerminators(text string, pos int) int {
	i := pos
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminator(r) {
			break
		}
		i += size
	}
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isCloser(r) {
			break
		}
		i += size
	}
	return i
}

func skipSpace(text string, pos int) int {
	i := pos
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

// isBoundary reports whether the terminator run text[pos:end] ends a sentence.
func isBoundary(text string, pos, end int) bool {
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if !unicode.IsSpace(r) {
			return false
		}
	}

	run := strings.TrimRightFunc(text[pos:end], isCloser)
	if strings.HasPrefix(run, "..") {
		// ellipsis
		return false
	}
	if run == "." && isAbbreviation(wordBefore(text, pos)) {
		return false
	}
	return true
}

// wordBefore returns the lower-cased word that ends at pos.
func wordBefore(text string, pos int) string {
	start := pos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsSpace(r) || r == '(' || r == '"' {
			break
		}
		start -= size
	}
	return strings.ToLower(text[start:pos])
}

func isAbbreviation(word string) bool {
	if word == "" {
		return false
	}
	if abbreviations[word] {
		return true
	}
	// Multi-part abbreviations like "U.S" or "e.g".
	if !strings.Contains(word, ".") {
		return false
	}
	letters := strings.ReplaceAll(word, ".", "")
	return utf8.RuneCountInString(letters) <= 3 && strings.IndexFunc(letters, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) < 0
}

var abbreviations = func() map[string]bool {
	m := make(map[string]bool)
	for _, a := range []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st",
		"inc", "ltd", "co", "corp", "etc", "vs", "cf", "al",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"vol", "fig", "approx",
	} {
		m[a] = true
	}
	return m
}()
