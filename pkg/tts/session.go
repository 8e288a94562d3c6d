package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/cache"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/loader"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/playback"
	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts/engines"
	"github.com/charmbracelet/log"
)

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("session is closed")

// SessionConfig describes the collaborators of a Session.
type SessionConfig struct {
	Text     string
	Filename string

	Provider itts.Provider
	Options  itts.Options
	// Format defaults to the provider's preferred format.
	Format itts.AudioFormat

	// Cache is optional and stays owned by the caller.
	Cache cache.AudioCache
	// Sink is owned by the session and closed with it.
	Sink audio.Sink
	// Decoder defaults to audio.BeepDecoder.
	Decoder audio.Decoder

	Depth     int
	MinLength int
	Timeout   time.Duration
}

// Session plays one text: it owns the timeline, the loader keeping the
// chunks ahead of the cursor synthesized, and the controller driving the
// sink.
type Session struct {
	text       *audiotext.AudioText
	loader     *loader.Loader
	controller *playback.Controller
	sink       audio.Sink
	log        *log.Logger

	changed chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewSession wires a session together. Playback does not start until
// Play is called on its controller.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Provider == nil {
		return nil, itts.ErrNoProviderConfigured
	}
	if cfg.Sink == nil {
		return nil, errors.New("session needs a sink")
	}
	if cfg.Decoder == nil {
		cfg.Decoder = audio.BeepDecoder{}
	}
	if cfg.Format == "" {
		cfg.Format = engines.DefaultFormat(cfg.Provider.Name())
	}

	opts := []audiotext.Option{audiotext.WithFilename(cfg.Filename)}
	if cfg.MinLength > 0 {
		opts = append(opts, audiotext.WithMinLength(cfg.MinLength))
	}
	text := audiotext.New(cfg.Text, opts...)

	l := loader.New(text, cfg.Provider, cfg.Cache, cfg.Decoder, loader.Config{
		Depth:   cfg.Depth,
		Options: cfg.Options,
		Format:  cfg.Format,
		Timeout: cfg.Timeout,
	})

	s := &Session{
		text:       text,
		loader:     l,
		controller: playback.NewController(text, cfg.Sink, l),
		sink:       cfg.Sink,
		log:        log.WithPrefix("session"),
		changed:    make(chan struct{}, 1),
	}
	s.controller.OnStateChange(func(st playback.State) {
		logPlaybackState(s.log, st)
		select {
		case s.changed <- struct{}{}:
		default:
		}
	})

	s.log.Debug("session created",
		"id", text.ID,
		"file", text.FriendlyName,
		"chunks", text.Len(),
		"provider", cfg.Provider.Name(),
		"format", cfg.Format)
	return s, nil
}

// Text returns the session's timeline.
func (s *Session) Text() *audiotext.AudioText {
	return s.text
}

// Controller returns the playback controller.
func (s *Session) Controller() *playback.Controller {
	return s.controller
}

// Stats returns loader activity counters.
func (s *Session) Stats() loader.Stats {
	return s.loader.Stats()
}

// OnTextChanged applies an edit of the underlying text.
func (s *Session) OnTextChanged(offset int, kind audiotext.EditKind, text string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.text.OnTextChanged(offset, kind, text)
}

// ApplyEdits applies edits in order, stopping at the first failure.
func (s *Session) ApplyEdits(edits []Edit) error {
	for _, e := range edits {
		if err := s.OnTextChanged(e.Offset, e.Kind, e.Text); err != nil {
			return fmt.Errorf("failed to apply %s at %d: %w", e.Kind, e.Offset, err)
		}
	}
	return nil
}

// SetOptions changes the voice. All audio is invalidated and reloaded.
func (s *Session) SetOptions(opts itts.Options) {
	if s.isClosed() {
		return
	}
	s.loader.SetOptions(opts)
}

// Retry clears the failure of chunk i and loads it again. Retrying the
// cursor chunk also clears a playback stall.
func (s *Session) Retry(i int) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if i == s.controller.Position() {
		return s.controller.Retry()
	}
	return s.loader.Retry(i)
}

// Wait blocks until playback completes, stalls on a failed chunk, or ctx is
// done. A stall is reported as the chunk's *ProviderError.
func (s *Session) Wait(ctx context.Context) error {
	for {
		st := s.controller.State()
		switch st.Current {
		case playback.StateComplete:
			return nil
		case playback.StateError:
			if st.LastError != nil {
				return st.LastError
			}
			return fmt.Errorf("chunk %d failed", st.Cursor)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.changed:
		}
	}
}

// Close stops playback and loading and closes the sink.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.controller.Close(); err != nil && !errors.Is(err, audio.ErrNoMedia) {
		errs = append(errs, err)
	}
	s.loader.Close()
	if err := s.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	s.log.Debug("session closed", "id", s.text.ID)
	return errors.Join(errs...)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
