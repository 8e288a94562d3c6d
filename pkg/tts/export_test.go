package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/cache"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts/engines"
)

func exportTo(t *testing.T, text *audiotext.AudioText, cfg ExportConfig) (ExportResult, string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close() //nolint:errcheck

	res, err := Export(context.Background(), text, f, cfg)
	return res, path, err
}

func TestExport(t *testing.T) {
	mock := engines.NewMockProvider()
	text := audiotext.New(threeSentences)

	var progress atomic.Int64
	res, path, err := exportTo(t, text, ExportConfig{
		Provider:    mock,
		Options:     mockVoice,
		Concurrency: 2,
		Progress:    func(done, total int) { progress.Add(1) },
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if res.Chunks != 3 {
		t.Errorf("chunks = %d, want 3", res.Chunks)
	}
	if got := mock.CallCount(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
	if got := progress.Load(); got != 3 {
		t.Errorf("progress callbacks = %d, want 3", got)
	}

	// The mock speaks each rune for PerRune.
	var want time.Duration
	for _, c := range text.Chunks() {
		want += time.Duration(len([]rune(c.Text))) * mock.PerRune
	}
	if diff := res.Duration - want; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("duration = %v, want %v", res.Duration, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := audio.BeepDecoder{}.Decode(data, itts.FormatWAV)
	if err != nil {
		t.Fatalf("exported file does not decode: %v", err)
	}
	if diff := decoded.Duration() - want; diff < -5*time.Millisecond || diff > 5*time.Millisecond {
		t.Errorf("wav duration = %v, want %v", decoded.Duration(), want)
	}
}

func TestExport_UsesCache(t *testing.T) {
	store := cache.New(cache.NewMemoryStore(1 << 20))
	text := audiotext.New(threeSentences)

	if _, _, err := exportTo(t, text, ExportConfig{Provider: engines.NewMockProvider(), Options: mockVoice, Cache: store}); err != nil {
		t.Fatalf("first export: %v", err)
	}

	mock := engines.NewMockProvider()
	res, _, err := exportTo(t, text, ExportConfig{Provider: mock, Options: mockVoice, Cache: store})
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if res.CacheHits != 3 {
		t.Errorf("cache hits = %d, want 3", res.CacheHits)
	}
	if got := mock.CallCount(); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
}

func TestExport_Failure(t *testing.T) {
	mock := engines.NewMockProvider()
	text := audiotext.New(threeSentences)
	third, _ := text.Chunk(2)
	mock.FailOn(third.Text, itts.NewHTTPError(401, []byte("bad key")))

	_, _, err := exportTo(t, text, ExportConfig{Provider: mock, Options: mockVoice})
	var perr *itts.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a provider error, got %v", err)
	}
	if perr.Kind() != itts.KindClientError {
		t.Errorf("kind = %v, want client error", perr.Kind())
	}
}

func TestExport_NothingToSay(t *testing.T) {
	_, _, err := exportTo(t, audiotext.New("   \n\n  "), ExportConfig{Provider: engines.NewMockProvider()})
	if !errors.Is(err, ErrNothingToExport) {
		t.Errorf("expected ErrNothingToExport, got %v", err)
	}
}

func TestExport_NoProvider(t *testing.T) {
	_, _, err := exportTo(t, audiotext.New(threeSentences), ExportConfig{})
	if !errors.Is(err, itts.ErrNoProviderConfigured) {
		t.Errorf("expected ErrNoProviderConfigured, got %v", err)
	}
}
