// Package audiotext holds the chunk timeline of one span of text under
// playback and keeps it consistent while the text is edited.
package audiotext

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/tts/sentence"
	"github.com/google/uuid"
)

var (
	// ErrInvalidEdit is returned for an edit with an unknown kind or a
	// negative offset.
	ErrInvalidEdit = errors.New("invalid edit")

	// ErrInvariant is returned by Validate when the timeline is inconsistent.
	ErrInvariant = errors.New("timeline invariant violated")
)

// ChangeKind classifies a Change.
type ChangeKind int

const (
	// ChangeEdit follows a reconciled text edit.
	ChangeEdit ChangeKind = iota
	// ChangeLoading follows the start of a load.
	ChangeLoading
	// ChangeLoaded follows audio being stored on a chunk.
	ChangeLoaded
	// ChangeFailed follows a load that ended in error.
	ChangeFailed
	// ChangeDiscarded follows a result dropped because the chunk changed
	// while it was in flight.
	ChangeDiscarded
	// ChangeReset follows every chunk being invalidated.
	ChangeReset
	// ChangeSpliced follows an edit that also removed chunks, leaving at
	// most one empty placeholder per boundary. Indices held from before it
	// must be translated with MapIndex.
	ChangeSpliced
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeEdit:
		return "edit"
	case ChangeLoading:
		return "loading"
	case ChangeLoaded:
		return "loaded"
	case ChangeFailed:
		return "failed"
	case ChangeDiscarded:
		return "discarded"
	case ChangeReset:
		return "reset"
	case ChangeSpliced:
		return "spliced"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change describes a mutation of the timeline. Chunks lists the indices
// whose content or audio state changed; it is nil for ChangeReset.
type Change struct {
	Kind   ChangeKind
	Chunks []int
	// Remap maps every chunk index from before a ChangeSpliced to the index
	// of the chunk now covering the same text. Nil for other kinds.
	Remap []int
}

// MapIndex translates an index taken before ch into one valid after it.
// Indices past the old last chunk keep their distance from the end.
func (ch Change) MapIndex(i int) int {
	if len(ch.Remap) == 0 || i < 0 {
		return i
	}
	if i < len(ch.Remap) {
		return ch.Remap[i]
	}
	newLen := ch.Remap[len(ch.Remap)-1] + 1
	return i - len(ch.Remap) + newLen
}

type listener struct {
	id int
	fn func(Change)
}

// AudioText is the ordered, contiguous chunk list for one editable span.
// All methods are safe for concurrent use; every mutation is applied
// atomically and listeners are notified after the lock is released.
type AudioText struct {
	ID           string
	Filename     string
	FriendlyName string
	Created      time.Time

	mu        sync.Mutex
	chunks    []*Chunk
	listeners []listener
	nextID    int
}

// Option configures New.
type Option func(*config)

type config struct {
	filename  string
	friendly  string
	minLength int
	offset    int
}

// WithFilename records the source file name. The friendly name defaults to
// its base name.
func WithFilename(name string) Option {
	return func(c *config) { c.filename = name }
}

// WithFriendlyName sets a display name.
func WithFriendlyName(name string) Option {
	return func(c *config) { c.friendly = name }
}

// WithMinLength sets the minimum chunk length used by the splitter.
func WithMinLength(n int) Option {
	return func(c *config) { c.minLength = n }
}

// WithOffset places the span at offset within a larger document, so edit
// offsets can be given in document coordinates.
func WithOffset(offset int) Option {
	return func(c *config) { c.offset = offset }
}

// New splits text into chunks. Empty text yields a single empty chunk so the
// timeline always has somewhere to receive insertions.
func New(text string, opts ...Option) *AudioText {
	cfg := config{minLength: sentence.DefaultMinLength}
	for _, opt := range opts {
		opt(&cfg)
	}

	at := &AudioText{
		ID:           uuid.NewString(),
		Filename:     cfg.filename,
		FriendlyName: cfg.friendly,
		Created:      time.Now(),
	}
	if at.FriendlyName == "" && at.Filename != "" {
		at.FriendlyName = strings.TrimSuffix(filepath.Base(at.Filename), filepath.Ext(at.Filename))
	}

	for _, span := range sentence.Split(text, cfg.minLength) {
		at.chunks = append(at.chunks, newChunk(text[span.Start:span.End], cfg.offset+span.Start))
	}
	if len(at.chunks) == 0 {
		at.chunks = []*Chunk{newChunk("", cfg.offset)}
	}
	return at
}

// Len returns the number of chunks, including empty placeholders.
func (at *AudioText) Len() int {
	at.mu.Lock()
	defer at.mu.Unlock()
	return len(at.chunks)
}

// Chunk returns a snapshot of chunk i.
func (at *AudioText) Chunk(i int) (Chunk, bool) {
	at.mu.Lock()
	defer at.mu.Unlock()
	if i < 0 || i >= len(at.chunks) {
		return Chunk{}, false
	}
	return at.chunks[i].clone(), true
}

// Chunks returns a snapshot of every chunk.
func (at *AudioText) Chunks() []Chunk {
	at.mu.Lock()
	defer at.mu.Unlock()
	out := make([]Chunk, len(at.chunks))
	for i, c := range at.chunks {
		out[i] = c.clone()
	}
	return out
}

// Span returns the outer bounds of the managed text.
func (at *AudioText) Span() (start, end int) {
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.chunks[0].Start, at.chunks[len(at.chunks)-1].End
}

// Text reassembles the managed text from the chunks.
func (at *AudioText) Text() string {
	at.mu.Lock()
	defer at.mu.Unlock()
	var b strings.Builder
	for _, c := range at.chunks {
		b.WriteString(c.RawText)
	}
	return b.String()
}

// Seek returns the first chunk with something to speak, starting at from
// and moving in dir (+1 or -1). It returns -1 if there is none.
func (at *AudioText) Seek(from, dir int) int {
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.seekLocked(from, dir)
}

func (at *AudioText) seekLocked(from, dir int) int {
	if dir == 0 {
		dir = 1
	}
	for i := from; i >= 0 && i < len(at.chunks); i += dir {
		if !at.chunks[i].IsSilent() {
			return i
		}
	}
	return -1
}

// Window returns the indices of up to depth speakable chunks starting at
// from, inclusive.
func (at *AudioText) Window(from, depth int) []int {
	at.mu.Lock()
	defer at.mu.Unlock()

	var out []int
	for i := at.seekLocked(from, 1); i >= 0 && len(out) < depth; i = at.seekLocked(i+1, 1) {
		out = append(out, i)
	}
	return out
}

// ChunkAt returns the index of the chunk covering offset. Offsets on a
// boundary belong to the following chunk; the span end belongs to the last.
func (at *AudioText) ChunkAt(offset int) int {
	at.mu.Lock()
	defer at.mu.Unlock()
	for i, c := range at.chunks {
		if offset >= c.Start && offset < c.End {
			return i
		}
	}
	if offset < at.chunks[0].Start {
		return 0
	}
	return len(at.chunks) - 1
}

// Offsets returns, for every chunk, the sum of the known durations of all
// chunks before it. It is computed from the current state on every call.
func (at *AudioText) Offsets() []time.Duration {
	at.mu.Lock()
	defer at.mu.Unlock()

	out := make([]time.Duration, len(at.chunks))
	var total time.Duration
	for i, c := range at.chunks {
		out[i] = total
		total += c.Duration
	}
	return out
}

// Request identifies one load of one chunk. The result of a request is only
// accepted while the chunk still has the version it had when the request
// began.
type Request struct {
	// Index is the chunk position when the request began. Later splices
	// may move the chunk; results are matched to the chunk itself.
	Index   int
	Text    string
	chunk   *Chunk
	version uint64
}

// BeginLoad marks chunk i as loading and returns the request describing
// what to synthesize. It refuses chunks that are out of range, silent,
// already loading, or already hold audio. A failed chunk is only retried
// when force is set.
func (at *AudioText) BeginLoad(i int, force bool) (Request, bool) {
	at.mu.Lock()
	if i < 0 || i >= len(at.chunks) {
		at.mu.Unlock()
		return Request{}, false
	}
	c := at.chunks[i]
	if c.IsSilent() || c.Loading || c.HasAudio() || (c.Failed && !force) {
		at.mu.Unlock()
		return Request{}, false
	}
	c.Loading = true
	c.Failed = false
	c.FailureInfo = nil
	req := Request{Index: i, Text: c.Text, chunk: c, version: c.version}
	at.mu.Unlock()

	at.emit(Change{Kind: ChangeLoading, Chunks: []int{i}})
	return req, true
}

// CompleteLoad stores the result of req. It reports false, and drops the
// result, when the chunk changed since the request began.
func (at *AudioText) CompleteLoad(req Request, data []byte, decoded *audio.Decoded, duration time.Duration) bool {
	at.mu.Lock()
	c, idx, ok := at.settleLocked(req)
	if !ok {
		at.mu.Unlock()
		at.emit(Change{Kind: ChangeDiscarded, Chunks: indices(idx)})
		return false
	}
	c.Audio = data
	c.Decoded = decoded
	c.Duration = duration
	at.mu.Unlock()

	at.emit(Change{Kind: ChangeLoaded, Chunks: []int{idx}})
	return true
}

// FailLoad records the failure of req. Like CompleteLoad it drops failures
// of stale requests.
func (at *AudioText) FailLoad(req Request, perr *tts.ProviderError) bool {
	at.mu.Lock()
	c, idx, ok := at.settleLocked(req)
	if !ok {
		at.mu.Unlock()
		at.emit(Change{Kind: ChangeDiscarded, Chunks: indices(idx)})
		return false
	}
	c.Failed = true
	c.FailureInfo = perr
	at.mu.Unlock()

	at.emit(Change{Kind: ChangeFailed, Chunks: []int{idx}})
	return true
}

// AbandonLoad clears the loading flag of req without recording a result,
// leaving the chunk to be requested again.
func (at *AudioText) AbandonLoad(req Request) {
	at.mu.Lock()
	_, idx, _ := at.settleLocked(req)
	at.mu.Unlock()

	at.emit(Change{Kind: ChangeDiscarded, Chunks: indices(idx)})
}

// settleLocked clears the loading flag of req's chunk and reports its
// current index and whether the result is still current. The index is -1
// when the chunk has been spliced out.
func (at *AudioText) settleLocked(req Request) (*Chunk, int, bool) {
	c := req.chunk
	if c == nil {
		return nil, -1, false
	}
	c.Loading = false
	idx := at.indexLocked(c)
	if idx < 0 || c.version != req.version {
		return nil, idx, false
	}
	return c, idx, true
}

func (at *AudioText) indexLocked(c *Chunk) int {
	for i, x := range at.chunks {
		if x == c {
			return i
		}
	}
	return -1
}

func indices(i int) []int {
	if i < 0 {
		return nil
	}
	return []int{i}
}

// InvalidateAll drops the audio of every chunk, as needed when the voice
// changes.
func (at *AudioText) InvalidateAll() {
	at.mu.Lock()
	for _, c := range at.chunks {
		c.invalidate()
	}
	at.mu.Unlock()

	at.emit(Change{Kind: ChangeReset})
}

// OnChange registers fn to be called after every mutation. The returned
// function removes it.
func (at *AudioText) OnChange(fn func(Change)) (remove func()) {
	at.mu.Lock()
	defer at.mu.Unlock()

	id := at.nextID
	at.nextID++
	at.listeners = append(at.listeners, listener{id: id, fn: fn})

	return func() {
		at.mu.Lock()
		defer at.mu.Unlock()
		for i, l := range at.listeners {
			if l.id == id {
				at.listeners = append(at.listeners[:i:i], at.listeners[i+1:]...)
				return
			}
		}
	}
}

func (at *AudioText) emit(ch Change) {
	at.mu.Lock()
	ls := make([]listener, len(at.listeners))
	copy(ls, at.listeners)
	at.mu.Unlock()

	for _, l := range ls {
		l.fn(ch)
	}
}

// Validate checks the structural invariants of the timeline.
func (at *AudioText) Validate() error {
	at.mu.Lock()
	defer at.mu.Unlock()

	if len(at.chunks) == 0 {
		return fmt.Errorf("%w: no chunks", ErrInvariant)
	}
	for i, c := range at.chunks {
		if c.End-c.Start != len(c.RawText) {
			return fmt.Errorf("%w: chunk %d spans [%d,%d) but holds %d bytes",
				ErrInvariant, i, c.Start, c.End, len(c.RawText))
		}
		if c.Failed && c.HasAudio() {
			return fmt.Errorf("%w: chunk %d is failed and has audio", ErrInvariant, i)
		}
		if i > 0 && at.chunks[i-1].End != c.Start {
			return fmt.Errorf("%w: gap between chunk %d (end %d) and %d (start %d)",
				ErrInvariant, i-1, at.chunks[i-1].End, i, c.Start)
		}
		if i > 0 && c.IsEmpty() && at.chunks[i-1].IsEmpty() {
			return fmt.Errorf("%w: chunks %d and %d are both empty at offset %d",
				ErrInvariant, i-1, i, c.Start)
		}
	}
	return nil
}
