package tts

import (
	"unicode/utf8"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
)

// Edit is one atomic text change, in the form the timeline consumes.
type Edit struct {
	Offset int
	Kind   audiotext.EditKind
	Text   string
}

// DiffEdits describes the change from before to after as at most one
// removal followed by one insertion at the same offset. The changed region
// is the span between the longest common prefix and suffix, widened to
// whole runes.
func DiffEdits(before, after string) []Edit {
	if before == after {
		return nil
	}

	limit := min(len(before), len(after))
	prefix := 0
	for prefix < limit && before[prefix] == after[prefix] {
		prefix++
	}
	for prefix > 0 && (!runeStartAt(before, prefix) || !runeStartAt(after, prefix)) {
		prefix--
	}

	limit -= prefix
	suffix := 0
	for suffix < limit && before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}
	for suffix > 0 && !utf8.RuneStart(before[len(before)-suffix]) {
		suffix--
	}

	var edits []Edit
	if removed := before[prefix : len(before)-suffix]; removed != "" {
		edits = append(edits, Edit{Offset: prefix, Kind: audiotext.Remove, Text: removed})
	}
	if added := after[prefix : len(after)-suffix]; added != "" {
		edits = append(edits, Edit{Offset: prefix, Kind: audiotext.Add, Text: added})
	}
	return edits
}

// runeStartAt reports whether i is a rune boundary of s. The end of s is.
func runeStartAt(s string, i int) bool {
	return i >= len(s) || utf8.RuneStart(s[i])
}
