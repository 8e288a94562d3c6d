package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// DefaultPCMSampleRate is the rate assumed for headerless PCM input.
const DefaultPCMSampleRate = 24000

// resampleQuality is passed to beep.Resample.
const resampleQuality = 4

var (
	// ErrEmptyAudio indicates there are no bytes to decode.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrNoMedia indicates a sink was asked to play before SetMedia.
	ErrNoMedia = errors.New("no media set")

	// ErrSinkClosed indicates the sink has been closed.
	ErrSinkClosed = errors.New("sink is closed")
)

// Decoded is playable audio held fully in memory.
type Decoded struct {
	buf *beep.Buffer
}

// NewDecoded wraps an already filled buffer.
func NewDecoded(buf *beep.Buffer) *Decoded {
	return &Decoded{buf: buf}
}

// Format returns the sample format of the decoded audio.
func (d *Decoded) Format() beep.Format {
	return d.buf.Format()
}

// Len returns the number of samples per channel.
func (d *Decoded) Len() int {
	return d.buf.Len()
}

// Duration returns the playback length.
func (d *Decoded) Duration() time.Duration {
	return d.buf.Format().SampleRate.D(d.buf.Len())
}

// Streamer returns a fresh streamer over the whole buffer.
func (d *Decoded) Streamer() beep.StreamSeeker {
	return d.buf.Streamer(0, d.buf.Len())
}

// StreamerAt returns a streamer resampled to rate.
func (d *Decoded) StreamerAt(rate beep.SampleRate) beep.Streamer {
	var s beep.Streamer = d.Streamer()
	if from := d.buf.Format().SampleRate; from != rate {
		s = beep.Resample(resampleQuality, from, rate, s)
	}
	return s
}

// PCM16 renders the audio as interleaved signed 16-bit little-endian
// samples at sampleRate with the given channel count (1 or 2).
func (d *Decoded) PCM16(sampleRate, channels int) []byte {
	s := d.StreamerAt(beep.SampleRate(sampleRate))

	var out bytes.Buffer
	out.Grow(d.Len() * channels * 2)
	samples := make([][2]float64, 512)
	var frame [2]byte
	for {
		n, ok := s.Stream(samples)
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				binary.LittleEndian.PutUint16(frame[:], uint16(toInt16(samples[i][c])))
				out.Write(frame[:])
			}
		}
		if !ok {
			break
		}
	}
	return out.Bytes()
}

func toInt16(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	default:
		return int16(v * 32767)
	}
}

// Decoder turns encoded provider output into playable audio.
type Decoder interface {
	Decode(data []byte, format tts.AudioFormat) (*Decoded, error)
}

// BeepDecoder decodes mp3, wav and headerless PCM using beep.
type BeepDecoder struct {
	// PCMSampleRate is the rate of headerless PCM input. Zero means DefaultPCMSampleRate.
	PCMSampleRate int
}

// Decode implements Decoder.
func (d BeepDecoder) Decode(data []byte, format tts.AudioFormat) (*Decoded, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	switch format {
	case tts.FormatMP3:
		s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode mp3: %w", err)
		}
		return bufferStream(s, f)
	case tts.FormatWAV:
		s, f, err := wav.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode wav: %w", err)
		}
		return bufferStream(s, f)
	case tts.FormatPCM:
		rate := d.PCMSampleRate
		if rate == 0 {
			rate = DefaultPCMSampleRate
		}
		return DecodePCM16(data, rate), nil
	default:
		return nil, fmt.Errorf("%w: %q", tts.ErrUnsupportedFormat, format)
	}
}

func bufferStream(s beep.StreamSeekCloser, f beep.Format) (*Decoded, error) {
	defer s.Close() //nolint:errcheck
	buf := beep.NewBuffer(f)
	buf.Append(s)
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}
	return &Decoded{buf: buf}, nil
}

// DecodePCM16 wraps mono signed 16-bit little-endian samples.
func DecodePCM16(data []byte, sampleRate int) *Decoded {
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}

	total := len(data) / 2
	pos := 0
	src := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < total {
			v := float64(int16(binary.LittleEndian.Uint16(data[2*pos:]))) / 32768
			samples[n][0], samples[n][1] = v, v
			n++
			pos++
		}
		return n, true
	})

	buf := beep.NewBuffer(format)
	buf.Append(src)
	return &Decoded{buf: buf}
}

// EncodeWAV writes parts back to back as one WAV stream, resampled to the
// rate of the first part.
func EncodeWAV(w io.WriteSeeker, parts []*Decoded) error {
	if len(parts) == 0 {
		return ErrEmptyAudio
	}

	format := parts[0].Format()
	format.NumChannels = 1
	format.Precision = 2

	streamers := make([]beep.Streamer, 0, len(parts))
	for _, p := range parts {
		streamers = append(streamers, p.StreamerAt(format.SampleRate))
	}

	if err := wav.Encode(w, beep.Seq(streamers...), format); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	return nil
}
