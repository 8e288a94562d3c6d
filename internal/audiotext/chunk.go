package audiotext

import (
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/tts/sentence"
)

// Chunk is one synthesizable segment of an AudioText.
//
// Values returned by AudioText accessors are snapshots; mutating them has
// no effect on the timeline.
type Chunk struct {
	// RawText is the untouched source substring.
	RawText string
	// Text is the spoken projection of RawText with markup removed. It is
	// the synthesis input and part of the cache key.
	Text string

	// Start and End are byte offsets; End-Start == len(RawText).
	Start int
	End   int

	// Duration is zero until the audio has been decoded.
	Duration time.Duration
	Audio    []byte
	Decoded  *audio.Decoded

	Loading     bool
	Failed      bool
	FailureInfo *tts.ProviderError

	version uint64
}

func newChunk(raw string, start int) *Chunk {
	return &Chunk{
		RawText: raw,
		Text:    sentence.Normalize(raw),
		Start:   start,
		End:     start + len(raw),
	}
}

// IsEmpty reports whether the chunk is a zero-length placeholder.
func (c Chunk) IsEmpty() bool {
	return c.RawText == ""
}

// IsSilent reports whether the chunk has nothing to speak, either because it
// is empty or because its text is only markup or whitespace.
func (c Chunk) IsSilent() bool {
	return c.Text == ""
}

// IsReady reports whether the chunk can be handed to a sink.
func (c Chunk) IsReady() bool {
	return c.Decoded != nil
}

// HasAudio reports whether synthesized bytes are present.
func (c Chunk) HasAudio() bool {
	return c.Audio != nil
}

// Version changes every time the chunk is invalidated.
func (c Chunk) Version() uint64 {
	return c.version
}

// Len returns the byte length of RawText.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Contains reports whether offset lies strictly inside the chunk.
func (c Chunk) Contains(offset int) bool {
	return offset > c.Start && offset < c.End
}

// invalidate drops everything derived from the previous RawText. Loading is
// left untouched; the loader discards the in-flight result by version.
func (c *Chunk) invalidate() {
	c.Text = sentence.Normalize(c.RawText)
	c.Audio = nil
	c.Decoded = nil
	c.Duration = 0
	c.Failed = false
	c.FailureInfo = nil
	c.version++
}

func (c *Chunk) shift(delta int) {
	c.Start += delta
	c.End += delta
}

// clone returns a snapshot that shares no mutable memory with c.
func (c *Chunk) clone() Chunk {
	out := *c
	if c.Audio != nil {
		out.Audio = append([]byte(nil), c.Audio...)
	}
	return out
}
