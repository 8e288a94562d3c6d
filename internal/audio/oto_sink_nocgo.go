//go:build nocgo

package audio

import (
	"errors"
	"time"
)

// ErrAudioUnavailable is returned when the binary was built without an output device.
var ErrAudioUnavailable = errors.New("audio not available in nocgo build")

// OtoSink is unavailable in nocgo builds.
type OtoSink struct {
	MockSink
}

// PlayerConfig contains configuration for the audio output.
type PlayerConfig struct {
	SampleRate   int
	Channels     int
	BufferSize   time.Duration
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

// NewOtoSink always fails in nocgo builds.
func NewOtoSink(PlayerConfig) (*OtoSink, error) {
	return nil, ErrAudioUnavailable
}
