// Package loader keeps the chunks just ahead of the playback cursor
// synthesized.
//
// A Loader belongs to one AudioText. Whenever the cursor moves, a chunk is
// edited, a load settles, or the voice changes, it looks at the next Depth
// speakable chunks from the cursor and starts a load for each one that has
// no audio and is neither loading nor failed. Loads check the cache first,
// then call the provider and write the result through to the cache.
//
// A load is never cancelled by an edit. Its result is checked against the
// chunk's version when it arrives and dropped if the chunk has changed.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/cache"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDepth is the number of speakable chunks kept loaded from the
// cursor on, the cursor chunk included.
const DefaultDepth = 3

const (
	sourceCache    = "cache"
	sourceProvider = "provider"
)

// ErrClosed is returned by operations on a closed Loader.
var ErrClosed = errors.New("loader is closed")

// Config holds loader configuration.
type Config struct {
	// Depth is the prefetch window size. Zero means DefaultDepth.
	Depth int
	// Options is the initial voice.
	Options tts.Options
	// Format is requested from the provider and used in cache keys.
	Format tts.AudioFormat
	// Timeout bounds each provider call. Zero means no timeout.
	Timeout time.Duration
}

// Loader synthesizes audio for a sliding window of chunks.
type Loader struct {
	text     *audiotext.AudioText
	provider tts.Provider
	cache    cache.AudioCache
	decoder  audio.Decoder

	log     *log.Logger
	metrics *metrics
	tracer  trace.Tracer
	timeout time.Duration

	mu     sync.Mutex
	cursor int
	active bool
	closed bool
	depth  int
	opts   tts.Options
	format tts.AudioFormat

	// inflight counts running loads; idle is signalled when it drops to
	// zero. Both are guarded by mu.
	inflight int
	idle     *sync.Cond

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a loader for text. store may be nil to disable caching. The
// loader stays idle until the first SetCursor.
func New(text *audiotext.AudioText, provider tts.Provider, store cache.AudioCache, decoder audio.Decoder, cfg Config) *Loader {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.Format == "" {
		cfg.Format = tts.FormatMP3
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		text:     text,
		provider: provider,
		cache:    store,
		decoder:  decoder,
		log:      log.WithPrefix("loader"),
		metrics:  newMetrics(),
		tracer:   otel.Tracer(instrumentationName),
		timeout:  cfg.Timeout,
		depth:    cfg.Depth,
		opts:     cfg.Options,
		format:   cfg.Format,
		ctx:      ctx,
		cancel:   cancel,
	}
	l.idle = sync.NewCond(&l.mu)
	l.unsubscribe = text.OnChange(l.handleChange)
	return l
}

func (l *Loader) handleChange(ch audiotext.Change) {
	switch ch.Kind {
	case audiotext.ChangeLoading:
		return
	case audiotext.ChangeSpliced:
		l.mu.Lock()
		l.cursor = ch.MapIndex(l.cursor)
		l.mu.Unlock()
	}
	l.Refresh()
}

// SetCursor moves the window to start at chunk i. An index past the last
// chunk empties the window.
func (l *Loader) SetCursor(i int) {
	l.mu.Lock()
	l.cursor = i
	l.active = true
	l.mu.Unlock()

	l.Refresh()
}

// Cursor returns the start of the window.
func (l *Loader) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// SetOptions switches the voice. Every chunk's audio is dropped and the
// window reloads from the cursor.
func (l *Loader) SetOptions(opts tts.Options) {
	l.mu.Lock()
	if l.closed || l.opts.Equal(opts) {
		l.mu.Unlock()
		return
	}
	l.opts = opts
	l.mu.Unlock()

	l.log.Info("voice changed, reloading", "voice", opts.Voice, "model", opts.Model)
	// Emits a reset, which refreshes the window.
	l.text.InvalidateAll()
}

// Options returns the current voice.
func (l *Loader) Options() tts.Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts
}

// Format returns the audio format requested from the provider.
func (l *Loader) Format() tts.AudioFormat {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.format
}

// Refresh starts loads for every chunk in the window that needs one.
func (l *Loader) Refresh() {
	l.mu.Lock()
	if l.closed || !l.active {
		l.mu.Unlock()
		return
	}
	cursor, depth := l.cursor, l.depth
	l.mu.Unlock()

	for _, i := range l.text.Window(cursor, depth) {
		if req, ok := l.text.BeginLoad(i, false); ok {
			l.start(req)
		}
	}
}

// Retry re-requests chunk i even if its last load failed. It is the only
// way a failed chunk is loaded again.
func (l *Loader) Retry(i int) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}

	req, ok := l.text.BeginLoad(i, true)
	if !ok {
		return fmt.Errorf("chunk %d cannot be loaded now", i)
	}
	l.start(req)
	return nil
}

// start launches the load for req. The voice is read after BeginLoad so a
// concurrent SetOptions either sees this request as stale or has already
// published the new voice.
func (l *Loader) start(req audiotext.Request) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	opts, format := l.opts, l.format
	l.inflight++
	l.mu.Unlock()

	l.metrics.started()
	go func() {
		defer l.finished()
		l.load(req, opts, format)
	}()
}

func (l *Loader) finished() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight--
	if l.inflight == 0 {
		l.idle.Broadcast()
	}
}

func (l *Loader) load(req audiotext.Request, opts tts.Options, format tts.AudioFormat) {
	ctx, span := l.tracer.Start(l.ctx, "aloud.loader.load", trace.WithAttributes(
		attribute.Int("chunk", req.Index),
		attribute.Int("text.length", len(req.Text)),
		attribute.String("voice", opts.Voice),
	))
	defer span.End()

	began := time.Now()
	data, source, err := l.fetch(ctx, req.Text, opts, format)
	if err == nil {
		var decoded *audio.Decoded
		decoded, err = l.decoder.Decode(data, format)
		if err != nil {
			err = tts.NewProviderError("undecodable audio", 0, err)
		} else {
			span.SetAttributes(attribute.String("source", source))
			l.metrics.loaded(ctx, source, time.Since(began))
			if !l.text.CompleteLoad(req, data, decoded, decoded.Duration()) {
				l.metrics.discard(ctx)
				l.log.Debug("discarded stale audio", "chunk", req.Index)
			} else {
				l.log.Debug("chunk ready", "chunk", req.Index, "source", source, "duration", decoded.Duration())
			}
			return
		}
	}

	if l.ctx.Err() != nil {
		// Closing; the chunk is left unloaded rather than failed.
		l.text.AbandonLoad(req)
		return
	}

	perr := tts.AsProviderError(err)
	span.RecordError(perr)
	span.SetStatus(codes.Error, perr.Status)
	if !l.text.FailLoad(req, perr) {
		l.metrics.discard(ctx)
		return
	}
	l.metrics.failure(ctx, perr.Kind().String())
	l.log.Warn("chunk failed", "chunk", req.Index, "kind", perr.Kind(), "retryable", perr.IsRetryable(), "err", perr)
}

// fetch returns audio for text from the cache, or from the provider on a
// miss. Provider results are written through even if the chunk has since
// changed; the audio is still valid for its text.
func (l *Loader) fetch(ctx context.Context, text string, opts tts.Options, format tts.AudioFormat) ([]byte, string, error) {
	if l.cache != nil {
		data, err := l.cache.GetAudio(ctx, text, opts, format)
		if err == nil {
			return data, sourceCache, nil
		}
		if !cache.IsMiss(err) {
			l.log.Warn("cache read failed", "err", err)
		}
	}

	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.metrics.called()
	data, err := l.provider.Call(callCtx, text, opts, format)
	if err != nil {
		return nil, sourceProvider, err
	}

	if l.cache != nil {
		if err := l.cache.SaveAudio(ctx, text, opts, format, data); err != nil {
			l.log.Warn("cache write failed", "err", err)
		}
	}
	return data, sourceProvider, nil
}

// Stats returns activity counters.
func (l *Loader) Stats() Stats {
	return l.metrics.snapshot()
}

// Wait blocks until no load is in flight, including loads started by loads
// that finish while waiting. It may be called while other goroutines move
// the cursor; it then returns at some moment when nothing is loading.
func (l *Loader) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inflight > 0 {
		l.idle.Wait()
	}
}

// Close stops the loader and waits for in-flight loads to return. Loads
// still running are cancelled.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.unsubscribe()
	l.cancel()
	l.Wait()
}
