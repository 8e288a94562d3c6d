package tts

import (
	"reflect"
	"testing"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
)

func TestDiffEdits(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
		want   []Edit
	}{
		{
			name:   "unchanged",
			before: "Hello there.",
			after:  "Hello there.",
			want:   nil,
		},
		{
			name:   "insertion",
			before: "The cat sat.",
			after:  "The black cat sat.",
			want:   []Edit{{Offset: 4, Kind: audiotext.Add, Text: "black "}},
		},
		{
			name:   "deletion",
			before: "The black cat sat.",
			after:  "The cat sat.",
			want:   []Edit{{Offset: 4, Kind: audiotext.Remove, Text: "black "}},
		},
		{
			name:   "replacement",
			before: "The cat sat.",
			after:  "The dog sat.",
			want: []Edit{
				{Offset: 4, Kind: audiotext.Remove, Text: "cat"},
				{Offset: 4, Kind: audiotext.Add, Text: "dog"},
			},
		},
		{
			name:   "append",
			before: "One.",
			after:  "One. Two.",
			want:   []Edit{{Offset: 4, Kind: audiotext.Add, Text: " Two."}},
		},
		{
			name:   "from empty",
			before: "",
			after:  "Hi.",
			want:   []Edit{{Offset: 0, Kind: audiotext.Add, Text: "Hi."}},
		},
		{
			name:   "to empty",
			before: "Hi.",
			after:  "",
			want:   []Edit{{Offset: 0, Kind: audiotext.Remove, Text: "Hi."}},
		},
		{
			// é and ê share their first byte; the edit must not split it.
			name:   "multibyte prefix",
			before: "café",
			after:  "cafê",
			want: []Edit{
				{Offset: 3, Kind: audiotext.Remove, Text: "é"},
				{Offset: 3, Kind: audiotext.Add, Text: "ê"},
			},
		},
		{
			// é and ũ share their last byte.
			name:   "multibyte suffix",
			before: "aé",
			after:  "aũ",
			want: []Edit{
				{Offset: 1, Kind: audiotext.Remove, Text: "é"},
				{Offset: 1, Kind: audiotext.Add, Text: "ũ"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiffEdits(tt.before, tt.after)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DiffEdits(%q, %q) = %+v, want %+v", tt.before, tt.after, got, tt.want)
			}
		})
	}
}

// Applying the edits to a timeline built from before must yield after.
func TestDiffEdits_AppliesToTimeline(t *testing.T) {
	pairs := [][2]string{
		{"First sentence goes here. Second sentence goes here.", "First sentence goes here. A new one in between. Second sentence goes here."},
		{"First sentence goes here. Second sentence goes here.", "Second sentence goes here."},
		{"Intro line that is long.\n\nBody text that is long too.", "Intro line that is long.\n\nBody text, edited, that is long too!"},
	}

	for _, p := range pairs {
		at := audiotext.New(p[0])
		for _, e := range DiffEdits(p[0], p[1]) {
			if err := at.OnTextChanged(e.Offset, e.Kind, e.Text); err != nil {
				t.Fatalf("OnTextChanged(%+v): %v", e, err)
			}
		}
		if got := at.Text(); got != p[1] {
			t.Errorf("text = %q, want %q", got, p[1])
		}
	}
}
