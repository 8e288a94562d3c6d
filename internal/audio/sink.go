package audio

import "sync"

// TrackStatus is the playback status a sink reports for its current media.
type TrackStatus int32

const (
	TrackNone TrackStatus = iota
	TrackPlaying
	TrackPaused
	TrackComplete
)

// String returns the string representation of the status.
func (s TrackStatus) String() string {
	switch s {
	case TrackNone:
		return "none"
	case TrackPlaying:
		return "playing"
	case TrackPaused:
		return "paused"
	case TrackComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Sink is an audio output. It holds at most one piece of media at a time.
//
// Status changes are delivered to subscribers synchronously and without any
// sink lock held, so a subscriber may call back into the sink.
type Sink interface {
	// SetMedia replaces the current media and resets the status to TrackNone.
	SetMedia(d *Decoded) error

	// Play starts or resumes the current media.
	Play() error

	// Pause pauses the current media.
	Pause() error

	// Restart rewinds the current media and plays it from the start.
	Restart() error

	// Status returns the status of the current media.
	Status() TrackStatus

	// Subscribe registers fn to be called on every status change.
	Subscribe(fn func(TrackStatus))

	// Close releases the output device.
	Close() error
}

// observers is the subscriber list shared by the sink implementations.
type observers struct {
	mu  sync.Mutex
	fns []func(TrackStatus)
}

func (o *observers) Subscribe(fn func(TrackStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fns = append(o.fns, fn)
}

func (o *observers) notify(s TrackStatus) {
	o.mu.Lock()
	fns := make([]func(TrackStatus), len(o.fns))
	copy(fns, o.fns)
	o.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
