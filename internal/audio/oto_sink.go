//go:build !nocgo

package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// OtoSink plays decoded audio on the system output device using oto.
type OtoSink struct {
	observers

	config PlayerConfig

	mu     sync.Mutex
	player *oto.Player
	// CRITICAL: keep the PCM alive while oto reads from it.
	data     []byte
	status   TrackStatus
	gen      uint64
	watching bool
	watchGen uint64
	closed   bool
}

// PlayerConfig contains configuration for the audio output.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BufferSize time.Duration
	// PollInterval is how often completion is checked while playing.
	PollInterval time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   44100,
		Channels:     1,
		BufferSize:   100 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}
}

// oto allows a single context per process.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoConfig  PlayerConfig
	otoErr     error
)

func sharedContext(config PlayerConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: config.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
		otoConfig = config
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoConfig != config {
		log.Warn("audio: reusing existing output context", "sample_rate", otoConfig.SampleRate, "channels", otoConfig.Channels)
	}
	return otoContext, nil
}

// NewOtoSink opens the output device.
func NewOtoSink(config PlayerConfig) (*OtoSink, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := sharedContext(config); err != nil {
		return nil, err
	}
	return &OtoSink{config: otoConfig}, nil
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	// OTO only supports specific sample rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// SetMedia implements Sink.
func (s *OtoSink) SetMedia(d *Decoded) error {
	data := d.PCM16(s.config.SampleRate, s.config.Channels)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.releaseLocked()
	s.data = data
	s.player = otoContext.NewPlayer(bytes.NewReader(s.data))
	s.gen++
	changed := s.status != TrackNone
	s.status = TrackNone
	s.mu.Unlock()

	if changed {
		s.notify(TrackNone)
	}
	return nil
}

// Play implements Sink.
func (s *OtoSink) Play() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if s.player == nil {
		s.mu.Unlock()
		return ErrNoMedia
	}
	if s.status == TrackComplete {
		if _, err := s.player.Seek(0, io.SeekStart); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to rewind: %w", err)
		}
	}
	s.player.Play()
	s.status = TrackPlaying
	if !s.watching || s.watchGen != s.gen {
		s.watching = true
		s.watchGen = s.gen
		go s.watch(s.gen)
	}
	s.mu.Unlock()

	s.notify(TrackPlaying)
	return nil
}

// Pause implements Sink.
func (s *OtoSink) Pause() error {
	s.mu.Lock()
	if s.player == nil || s.status != TrackPlaying {
		s.mu.Unlock()
		return nil
	}
	s.player.Pause()
	s.status = TrackPaused
	s.mu.Unlock()

	s.notify(TrackPaused)
	return nil
}

// Restart implements Sink.
func (s *OtoSink) Restart() error {
	s.mu.Lock()
	if s.player == nil {
		s.mu.Unlock()
		return ErrNoMedia
	}
	s.player.Pause()
	if _, err := s.player.Seek(0, io.SeekStart); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to rewind: %w", err)
	}
	s.status = TrackPaused
	s.mu.Unlock()

	return s.Play()
}

// Status implements Sink.
func (s *OtoSink) Status() TrackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close implements Sink. The process-wide oto context stays open.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.closed = true
	return nil
}

func (s *OtoSink) releaseLocked() {
	if s.player != nil {
		s.player.Pause()
		if err := s.player.Close(); err != nil {
			log.Debug("audio: closing player", "err", err)
		}
		s.player = nil
	}
	s.data = nil
}

// watch reports completion of the media generation gen.
func (s *OtoSink) watch(gen uint64) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		if s.gen != gen || s.player == nil || s.status != TrackPlaying {
			if s.watchGen == gen {
				s.watching = false
			}
			s.mu.Unlock()
			return
		}
		if s.player.IsPlaying() {
			s.mu.Unlock()
			continue
		}
		s.status = TrackComplete
		s.watching = false
		s.mu.Unlock()

		s.notify(TrackComplete)
		return
	}
}
