package audio

import (
	"sync"
	"sync/atomic"
)

// MockSink implements Sink for testing purposes.
// It never produces sound; media completes when Finish is called, or right
// after Play (on another goroutine) when AutoFinish is set.
type MockSink struct {
	observers

	mu     sync.Mutex
	media  *Decoded
	status TrackStatus
	closed bool

	// AutoFinish completes media as soon as it starts playing.
	AutoFinish bool

	// Metrics for testing
	setCount     atomic.Int64
	playCount    atomic.Int64
	pauseCount   atomic.Int64
	restartCount atomic.Int64
}

// NewMockSink creates an idle mock sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// SetMedia implements Sink.
func (m *MockSink) SetMedia(d *Decoded) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSinkClosed
	}
	m.media = d
	changed := m.status != TrackNone
	m.status = TrackNone
	m.mu.Unlock()

	m.setCount.Add(1)
	if changed {
		m.notify(TrackNone)
	}
	return nil
}

// Play implements Sink.
func (m *MockSink) Play() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSinkClosed
	}
	if m.media == nil {
		m.mu.Unlock()
		return ErrNoMedia
	}
	m.status = TrackPlaying
	auto := m.AutoFinish
	m.mu.Unlock()

	m.playCount.Add(1)
	m.notify(TrackPlaying)
	if auto {
		go m.Finish()
	}
	return nil
}

// Pause implements Sink.
func (m *MockSink) Pause() error {
	m.mu.Lock()
	if m.status != TrackPlaying {
		m.mu.Unlock()
		return nil
	}
	m.status = TrackPaused
	m.mu.Unlock()

	m.pauseCount.Add(1)
	m.notify(TrackPaused)
	return nil
}

// Restart implements Sink.
func (m *MockSink) Restart() error {
	m.restartCount.Add(1)
	return m.Play()
}

// Status implements Sink.
func (m *MockSink) Status() TrackStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Close implements Sink.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.media = nil
	return nil
}

// Finish marks the playing media as complete, as a real device would when
// it runs out of samples.
func (m *MockSink) Finish() {
	m.mu.Lock()
	if m.status != TrackPlaying {
		m.mu.Unlock()
		return
	}
	m.status = TrackComplete
	m.mu.Unlock()

	m.notify(TrackComplete)
}

// Media returns the media most recently passed to SetMedia.
func (m *MockSink) Media() *Decoded {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media
}

// SetCount returns how many times SetMedia was called.
func (m *MockSink) SetCount() int64 { return m.setCount.Load() }

// PlayCount returns how many times Play was called.
func (m *MockSink) PlayCount() int64 { return m.playCount.Load() }

// PauseCount returns how many times Pause paused playback.
func (m *MockSink) PauseCount() int64 { return m.pauseCount.Load() }

// RestartCount returns how many times Restart was called.
func (m *MockSink) RestartCount() int64 { return m.restartCount.Load() }
