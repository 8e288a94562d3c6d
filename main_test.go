package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/playback"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	aloud "github.com/adrianlyjak/obsidian-aloud-tts-sub000/pkg/tts"
)

func TestReadSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("# Title\n\nSome words."), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := readSource([]string{path}, false)
	if err != nil {
		t.Fatalf("readSource: %v", err)
	}
	if src.text != "# Title\n\nSome words." {
		t.Errorf("text = %q", src.text)
	}
	if !filepath.IsAbs(src.path) {
		t.Errorf("path %q is not absolute", src.path)
	}

	if _, err := readSource([]string{filepath.Join(t.TempDir(), "missing.md")}, false); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestPrintChunks_Plain(t *testing.T) {
	at := audiotext.New("The first sentence is here. The second sentence is here.")

	var buf bytes.Buffer
	if err := printChunks(&buf, at.Chunks(), 80, false); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	want := []string{"0", "0", "28", "The first sentence is here."}
	if got := strings.Split(lines[0], "\t"); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("row 0 = %q, want %q", got, want)
	}
}

func TestChunkRow_Truncates(t *testing.T) {
	at := audiotext.New("This sentence is definitely longer than twenty cells.")
	c, _ := at.Chunk(0)

	row := chunkRow(0, c, 20)
	if !strings.HasSuffix(row[3], "…") {
		t.Errorf("text %q was not truncated", row[3])
	}
}

func TestFilterVoices(t *testing.T) {
	voices := []itts.Voice{
		{Name: "en-US-Neural2-C"},
		{Name: "en-GB-Standard-A"},
		{Name: "de-DE-Neural2-B"},
	}

	got := filterVoices(voices, "neural")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %+v", got)
	}
	for _, v := range got {
		if !strings.Contains(v.Name, "Neural") {
			t.Errorf("unexpected match %q", v.Name)
		}
	}

	if got := filterVoices(voices, "zzz"); len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}

func TestRenderStatus(t *testing.T) {
	s := renderStatus("mock", playback.State{Current: playback.StatePlaying, Cursor: 1, Total: 4})
	for _, want := range []string{"MOCK", "playing", "2/4"} {
		if !strings.Contains(s, want) {
			t.Errorf("status %q missing %q", s, want)
		}
	}

	perr := itts.NewHTTPError(429, []byte("slow down"))
	s = renderStatus("mock", playback.State{Current: playback.StateError, Total: 4, LastError: perr})
	if !strings.Contains(s, "rate") {
		t.Errorf("status %q does not show the failure kind", s)
	}
}

func TestWatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.md")
	initial := "The cat sat on the mat."
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []aloud.Edit, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, initial, func(edits []aloud.Edit) error {
			got <- edits
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("The black cat sat on the mat."), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case edits := <-got:
		if len(edits) != 1 || edits[0].Kind != audiotext.Add || edits[0].Text != "black " || edits[0].Offset != 4 {
			t.Errorf("edits = %+v", edits)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no edits observed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watchFile: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watchFile did not stop")
	}
}
