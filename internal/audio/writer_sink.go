package audio

import (
	"fmt"
	"io"
	"sync"
)

// writerBlock is the number of bytes written between pause checks.
const writerBlock = 4096

// WriterSink streams media as raw signed 16-bit little-endian PCM into an
// io.Writer, for piping into another player or a file. It writes as fast as
// the writer accepts data.
type WriterSink struct {
	observers

	w          io.Writer
	sampleRate int
	channels   int

	mu       sync.Mutex
	data     []byte
	pos      int
	status   TrackStatus
	gen      uint64
	writing  bool
	drainGen uint64
	closed   bool
	err      error
}

// NewWriterSink creates a sink that writes PCM at sampleRate with channels.
func NewWriterSink(w io.Writer, sampleRate, channels int) *WriterSink {
	return &WriterSink{w: w, sampleRate: sampleRate, channels: channels}
}

// SetMedia implements Sink.
func (s *WriterSink) SetMedia(d *Decoded) error {
	data := d.PCM16(s.sampleRate, s.channels)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.data = data
	s.pos = 0
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
func (s *WriterSink) Play() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if s.data == nil {
		s.mu.Unlock()
		return ErrNoMedia
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	if s.status == TrackComplete {
		s.pos = 0
	}
	s.status = TrackPlaying
	if !s.writing || s.drainGen != s.gen {
		s.writing = true
		s.drainGen = s.gen
		go s.drain(s.gen)
	}
	s.mu.Unlock()

	s.notify(TrackPlaying)
	return nil
}

// Pause implements Sink.
func (s *WriterSink) Pause() error {
	s.mu.Lock()
	if s.status != TrackPlaying {
		s.mu.Unlock()
		return nil
	}
	s.status = TrackPaused
	s.mu.Unlock()

	s.notify(TrackPaused)
	return nil
}

// Restart implements Sink.
func (s *WriterSink) Restart() error {
	s.mu.Lock()
	s.pos = 0
	s.mu.Unlock()
	return s.Play()
}

// Status implements Sink.
func (s *WriterSink) Status() TrackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the first write error, if any.
func (s *WriterSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements Sink. The underlying writer is not closed.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

func (s *WriterSink) drain(gen uint64) {
	for {
		s.mu.Lock()
		if s.gen != gen || s.status != TrackPlaying || s.data == nil {
			if s.drainGen == gen {
				s.writing = false
			}
			s.mu.Unlock()
			return
		}
		if s.pos >= len(s.data) {
			s.status = TrackComplete
			s.writing = false
			s.mu.Unlock()
			s.notify(TrackComplete)
			return
		}
		end := min(s.pos+writerBlock, len(s.data))
		block := s.data[s.pos:end]
		s.pos = end
		s.mu.Unlock()

		if _, err := s.w.Write(block); err != nil {
			s.mu.Lock()
			s.err = fmt.Errorf("failed to write audio: %w", err)
			s.status = TrackPaused
			s.writing = false
			s.mu.Unlock()
			s.notify(TrackPaused)
			return
		}
	}
}
