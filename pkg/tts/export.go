package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/cache"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts/engines"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// ErrNothingToExport is returned when a text has no speakable chunk.
var ErrNothingToExport = errors.New("nothing to export")

// DefaultExportConcurrency bounds provider calls made by Export.
const DefaultExportConcurrency = 4

// ExportConfig describes how Export synthesizes a text.
type ExportConfig struct {
	Provider itts.Provider
	Options  itts.Options
	Format   itts.AudioFormat
	// Cache is optional. Hits skip the provider and misses are written back.
	Cache   cache.AudioCache
	Decoder audio.Decoder

	Concurrency int
	Timeout     time.Duration

	// Progress, if set, is called after each chunk with the number done.
	// Calls are serialized.
	Progress func(done, total int)
}

// ExportResult summarizes an export.
type ExportResult struct {
	Chunks    int
	CacheHits int
	Duration  time.Duration
}

// Export synthesizes every speakable chunk of text and writes them to w as
// one WAV stream, in timeline order. Chunks that already hold audio are
// reused. The first failure cancels the remaining work.
func Export(ctx context.Context, text *audiotext.AudioText, w io.WriteSeeker, cfg ExportConfig) (ExportResult, error) {
	if cfg.Provider == nil {
		return ExportResult{}, itts.ErrNoProviderConfigured
	}
	if cfg.Decoder == nil {
		cfg.Decoder = audio.BeepDecoder{}
	}
	if cfg.Format == "" {
		cfg.Format = engines.DefaultFormat(cfg.Provider.Name())
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultExportConcurrency
	}

	var chunks []audiotext.Chunk
	for _, c := range text.Chunks() {
		if !c.IsSilent() {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return ExportResult{}, ErrNothingToExport
	}

	logger := log.WithPrefix("export")
	parts := make([]*audio.Decoded, len(chunks))
	var hits atomic.Int64

	var progressMu sync.Mutex
	done := 0
	report := func() {
		if cfg.Progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		cfg.Progress(done, len(chunks))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, c := range chunks {
		if c.Decoded != nil {
			parts[i] = c.Decoded
			report()
			continue
		}
		g.Go(func() error {
			data, hit, err := synthesize(gctx, c.Text, cfg)
			if err != nil {
				return fmt.Errorf("chunk at %d: %w", c.Start, err)
			}
			if hit {
				hits.Add(1)
			}
			decoded, err := cfg.Decoder.Decode(data, cfg.Format)
			if err != nil {
				return fmt.Errorf("chunk at %d: %w", c.Start, err)
			}
			parts[i] = decoded
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ExportResult{}, err
	}

	if err := audio.EncodeWAV(w, parts); err != nil {
		return ExportResult{}, fmt.Errorf("failed to encode wav: %w", err)
	}

	res := ExportResult{Chunks: len(parts), CacheHits: int(hits.Load())}
	for _, p := range parts {
		res.Duration += p.Duration()
	}
	logger.Info("exported", "chunks", res.Chunks, "cache_hits", res.CacheHits, "duration", res.Duration)
	return res, nil
}

// synthesize returns audio for text, preferring the cache.
func synthesize(ctx context.Context, text string, cfg ExportConfig) ([]byte, bool, error) {
	if cfg.Cache != nil {
		data, err := cfg.Cache.GetAudio(ctx, text, cfg.Options, cfg.Format)
		if err == nil {
			return data, true, nil
		}
		if !cache.IsMiss(err) {
			log.Warn("cache read failed", "err", err)
		}
	}

	callCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	data, err := cfg.Provider.Call(callCtx, text, cfg.Options, cfg.Format)
	if err != nil {
		return nil, false, err
	}

	if cfg.Cache != nil {
		if err := cfg.Cache.SaveAudio(ctx, text, cfg.Options, cfg.Format, data); err != nil {
			log.Warn("cache write failed", "err", err)
		}
	}
	return data, false, nil
}
