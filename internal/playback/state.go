package playback

import (
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
)

// StateType represents the current state of playback.
type StateType int

const (
	// StateIdle indicates playback has not started.
	StateIdle StateType = iota
	// StateBuffering indicates playback is waiting for the cursor chunk's audio.
	StateBuffering
	// StatePlaying indicates audio is playing.
	StatePlaying
	// StatePaused indicates playback is paused.
	StatePaused
	// StateComplete indicates the cursor ran past the last chunk.
	StateComplete
	// StateError indicates the cursor chunk failed to load.
	StateError
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of the controller.
type State struct {
	Current StateType
	// Cursor is the current chunk index. It equals Total once complete.
	Cursor int
	Total  int
	// Offset is where the cursor chunk starts on the timeline.
	Offset time.Duration
	// LastError is the failure of the cursor chunk in StateError.
	LastError *tts.ProviderError
}

// IsActive reports whether playback wants to make progress.
func (s State) IsActive() bool {
	return s.Current == StatePlaying || s.Current == StateBuffering
}

// CanPause reports whether Pause would have an effect.
func (s State) CanPause() bool {
	return s.IsActive()
}

// IsComplete reports whether the cursor is past the last chunk.
func (s State) IsComplete() bool {
	return s.Current == StateComplete
}
