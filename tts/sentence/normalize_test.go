package sentence

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Hello   world.\n", "Hello world."},
		{"heading and emphasis", "# Title\n\nSome *bold* and `code` words.", "Title Some bold and code words."},
		{"fenced code", "Intro.\n\n```go\nx := 1\n```\n\nOutro.", "Intro. Outro."},
		{"link label", "[the docs](https://example.com) now", "the docs now"},
		{"whitespace only", " \n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_IgnoresMarkup(t *testing.T) {
	if a, b := Normalize("**Hello** world"), Normalize("Hello world"); a != b {
		t.Errorf("%q != %q", a, b)
	}
}
