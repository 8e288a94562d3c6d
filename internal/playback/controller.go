// Package playback drives an audio sink across the chunks of an AudioText.
//
// The Controller owns the cursor. It plays the cursor chunk once its audio is
// ready, advances when the sink reports completion, and waits in the
// buffering state while the cursor chunk is still being synthesized.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audio"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/audiotext"
	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/charmbracelet/log"
)

var (
	// ErrClosed is returned by operations on a closed Controller.
	ErrClosed = errors.New("controller is closed")

	// ErrOutOfRange is returned by GoToPosition for an invalid index.
	ErrOutOfRange = errors.New("chunk index out of range")

	// ErrNothingToPlay is returned when no chunk has speakable text.
	ErrNothingToPlay = errors.New("no speakable chunk")
)

// Prefetcher is told where the cursor is so it can load ahead of it.
type Prefetcher interface {
	SetCursor(i int)
}

// Retrier is implemented by prefetchers that can reload a failed chunk.
type Retrier interface {
	Retry(i int) error
}

type op int

const (
	opPlay op = iota
	opPause
	opNext
	opPrevious
	opGoTo
	opRetry
)

type command struct {
	op    op
	index int
	reply chan error
}

// event is one unit of work for the playback loop. Exactly one field is set.
type event struct {
	cmd    *command
	track  *audio.TrackStatus
	change *audiotext.Change
}

// media identifies what is loaded into the sink.
type media struct {
	set     bool
	index   int
	version uint64
}

// Controller plays an AudioText through a Sink.
type Controller struct {
	text   *audiotext.AudioText
	sink   audio.Sink
	loader Prefetcher
	log    *log.Logger

	// Guards the fields read by State and written by the loop.
	mu      sync.Mutex
	state   StateType
	cursor  int
	lastErr *tts.ProviderError
	media   media
	closed  bool

	listenersMu sync.Mutex
	listeners   []func(State)

	inboxMu sync.Mutex
	inbox   []event
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}

	unsubscribe func()
}

// NewController creates a controller positioned on the first speakable
// chunk. loader may be nil. The controller is idle until Play.
func NewController(text *audiotext.AudioText, sink audio.Sink, loader Prefetcher) *Controller {
	c := &Controller{
		text:    text,
		sink:    sink,
		loader:  loader,
		log:     log.WithPrefix("playback"),
		state:   StateIdle,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	c.cursor = c.firstSpeakable()

	c.unsubscribe = text.OnChange(func(ch audiotext.Change) {
		c.push(event{change: &ch})
	})
	sink.Subscribe(func(s audio.TrackStatus) {
		c.push(event{track: &s})
	})

	go c.loop()
	return c
}

// Play starts playback at the cursor, resumes it when paused, or restarts
// from the first chunk when complete.
func (c *Controller) Play() error {
	return c.do(opPlay, 0)
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	return c.do(opPause, 0)
}

// GoToNext moves the cursor to the next speakable chunk. It does nothing on
// the last one.
func (c *Controller) GoToNext() error {
	return c.do(opNext, 0)
}

// GoToPrevious moves the cursor to the previous speakable chunk. It does
// nothing on the first one.
func (c *Controller) GoToPrevious() error {
	return c.do(opPrevious, 0)
}

// GoToPosition moves the cursor to chunk i, or to the nearest speakable
// chunk after it when i has nothing to say.
func (c *Controller) GoToPosition(i int) error {
	return c.do(opGoTo, i)
}

// Retry reloads the failed cursor chunk and buffers until it is ready. It
// needs a loader that implements Retrier.
func (c *Controller) Retry() error {
	return c.do(opRetry, 0)
}

// Position returns the cursor.
func (c *Controller) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Offsets returns the timeline start of every chunk.
func (c *Controller) Offsets() []time.Duration {
	return c.text.Offsets()
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := State{
		Current: c.state,
		Cursor:  c.cursor,
		Total:   c.text.Len(),
	}
	if offsets := c.text.Offsets(); c.cursor < len(offsets) {
		s.Offset = offsets[c.cursor]
	}
	if c.state == StateError {
		s.LastError = c.lastErr
	}
	return s
}

// OnStateChange registers fn to be called after every state or cursor
// change. Calls are made from the playback goroutine, so fn must not call
// back into the controller.
func (c *Controller) OnStateChange(fn func(State)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Close stops the playback loop and pauses the sink. The sink itself is
// left open.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.unsubscribe()
	close(c.done)
	<-c.stopped
	return c.sink.Pause()
}

func (c *Controller) do(o op, index int) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	cmd := &command{op: o, index: index, reply: make(chan error, 1)}
	c.push(event{cmd: cmd})
	select {
	case err := <-cmd.reply:
		return err
	case <-c.stopped:
		return ErrClosed
	}
}

// push queues ev without blocking, so sinks and timelines may notify from
// any goroutine, including the loop itself.
func (c *Controller) push(ev event) {
	c.inboxMu.Lock()
	c.inbox = append(c.inbox, ev)
	c.inboxMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) loop() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			c.inboxMu.Lock()
			batch := c.inbox
			c.inbox = nil
			c.inboxMu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				c.handle(ev)
			}
		}
	}
}

func (c *Controller) handle(ev event) {
	before := c.State()

	switch {
	case ev.cmd != nil:
		ev.cmd.reply <- c.handleCommand(ev.cmd)
	case ev.track != nil:
		if *ev.track == audio.TrackComplete {
			c.handleComplete()
		}
	case ev.change != nil:
		switch ev.change.Kind {
		case audiotext.ChangeLoading:
		case audiotext.ChangeSpliced:
			c.remap(*ev.change)
			c.prefetch()
			c.handleChange()
		default:
			c.handleChange()
		}
	}

	if after := c.State(); after.Current != before.Current || after.Cursor != before.Cursor {
		c.log.Debug("state changed", "from", before.Current, "to", after.Current, "cursor", after.Cursor)
		c.notify(after)
	}
}

func (c *Controller) handleCommand(cmd *command) error {
	switch cmd.op {
	case opPlay:
		return c.play()
	case opPause:
		return c.pause()
	case opNext:
		if n := c.text.Seek(c.Position()+1, 1); n >= 0 {
			return c.moveTo(n)
		}
		return nil
	case opPrevious:
		from := min(c.Position(), c.text.Len()) - 1
		if p := c.text.Seek(from, -1); p >= 0 {
			return c.moveTo(p)
		}
		return nil
	case opGoTo:
		if cmd.index < 0 || cmd.index >= c.text.Len() {
			return fmt.Errorf("%w: %d", ErrOutOfRange, cmd.index)
		}
		target := c.text.Seek(cmd.index, 1)
		if target < 0 {
			target = c.text.Seek(cmd.index, -1)
		}
		if target < 0 {
			return ErrNothingToPlay
		}
		return c.moveTo(target)
	case opRetry:
		return c.retry()
	default:
		return fmt.Errorf("unknown operation %d", cmd.op)
	}
}

func (c *Controller) play() error {
	c.mu.Lock()
	state, m, cursor := c.state, c.media, c.cursor
	c.mu.Unlock()

	switch state {
	case StatePlaying, StateBuffering:
		return nil
	case StateComplete:
		first := c.firstSpeakable()
		if first >= c.text.Len() {
			return ErrNothingToPlay
		}
		c.setCursor(first)
	case StatePaused:
		if c.mediaCurrent(m, cursor) && c.sink.Status() == audio.TrackPaused {
			if err := c.sink.Play(); err != nil {
				return err
			}
			c.setState(StatePlaying)
			return nil
		}
	}

	c.prefetch()
	c.setState(StateBuffering)
	return c.evaluate()
}

func (c *Controller) retry() error {
	r, ok := c.loader.(Retrier)
	if !ok {
		return errors.New("loader cannot retry")
	}
	if err := r.Retry(c.Position()); err != nil {
		return err
	}

	c.mu.Lock()
	stalled := c.state == StateError
	c.mu.Unlock()
	if !stalled {
		return nil
	}
	c.setState(StateBuffering)
	return c.evaluate()
}

func (c *Controller) pause() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StatePlaying:
		if err := c.sink.Pause(); err != nil {
			return err
		}
		c.setState(StatePaused)
	case StateBuffering:
		c.setState(StatePaused)
	}
	return nil
}

// moveTo puts the cursor on chunk i. Playback continues there if it was
// active; otherwise the controller is left paused or idle.
func (c *Controller) moveTo(i int) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StatePlaying {
		if err := c.sink.Pause(); err != nil {
			return err
		}
	}
	c.setCursor(i)
	c.prefetch()

	switch state {
	case StatePlaying, StateBuffering:
		c.setState(StateBuffering)
		return c.evaluate()
	case StatePaused:
		return nil
	default:
		c.setState(StateIdle)
		return nil
	}
}

// handleComplete advances past a chunk that finished playing.
func (c *Controller) handleComplete() {
	c.mu.Lock()
	state, m, cursor := c.state, c.media, c.cursor
	c.mu.Unlock()

	// Completions of media that was replaced or paused since are stale.
	if state != StatePlaying || !m.set || m.index != cursor || c.sink.Status() != audio.TrackComplete {
		return
	}

	next := c.text.Seek(cursor+1, 1)
	if next < 0 {
		c.setCursor(c.text.Len())
		c.prefetch()
		c.setState(StateComplete)
		return
	}
	c.setCursor(next)
	c.prefetch()
	c.setState(StateBuffering)
	if err := c.evaluate(); err != nil {
		c.log.Warn("failed to start next chunk", "chunk", next, "err", err)
	}
}

// handleChange reacts to the timeline changing under the cursor.
func (c *Controller) handleChange() {
	c.mu.Lock()
	state, m, cursor := c.state, c.media, c.cursor
	c.mu.Unlock()

	switch state {
	case StateBuffering:
	case StateError:
		chunk, ok := c.text.Chunk(cursor)
		if ok && chunk.Failed {
			return
		}
		c.setState(StateBuffering)
	case StatePlaying:
		if c.mediaCurrent(m, cursor) {
			return
		}
		// The playing chunk was edited or re-voiced.
		if err := c.sink.Pause(); err != nil {
			c.log.Warn("failed to pause stale audio", "err", err)
		}
		c.clearMedia()
		c.setState(StateBuffering)
	case StatePaused:
		if m.set && !c.mediaCurrent(m, cursor) {
			c.clearMedia()
		}
		return
	default:
		return
	}

	if err := c.evaluate(); err != nil {
		c.log.Warn("failed to start chunk", "chunk", cursor, "err", err)
	}
}

// evaluate starts the cursor chunk if it is ready. It is only called while
// buffering.
func (c *Controller) evaluate() error {
	cursor := c.Position()
	chunk, ok := c.text.Chunk(cursor)
	if ok && chunk.IsSilent() {
		// Emptied by an edit while under the cursor.
		next := c.text.Seek(cursor, 1)
		if next < 0 {
			ok = false
		} else {
			cursor = next
			c.setCursor(next)
			c.prefetch()
			chunk, ok = c.text.Chunk(next)
		}
	}
	if !ok {
		c.setCursor(c.text.Len())
		c.setState(StateComplete)
		return nil
	}

	switch {
	case chunk.Failed:
		c.mu.Lock()
		c.lastErr = chunk.FailureInfo
		c.mu.Unlock()
		c.setState(StateError)
		return nil
	case !chunk.IsReady():
		return nil
	}

	if err := c.sink.SetMedia(chunk.Decoded); err != nil {
		return err
	}
	c.mu.Lock()
	c.media = media{set: true, index: cursor, version: chunk.Version()}
	c.mu.Unlock()
	if err := c.sink.Play(); err != nil {
		return err
	}
	c.setState(StatePlaying)
	return nil
}

// mediaCurrent reports whether m is the audio of the cursor chunk as it
// is now.
func (c *Controller) mediaCurrent(m media, cursor int) bool {
	if !m.set || m.index != cursor {
		return false
	}
	chunk, ok := c.text.Chunk(cursor)
	return ok && chunk.IsReady() && chunk.Version() == m.version
}

func (c *Controller) firstSpeakable() int {
	if i := c.text.Seek(0, 1); i >= 0 {
		return i
	}
	return c.text.Len()
}

func (c *Controller) prefetch() {
	if c.loader != nil {
		c.loader.SetCursor(c.Position())
	}
}

func (c *Controller) setCursor(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i != c.cursor {
		c.media = media{}
	}
	c.cursor = i
}

// remap moves the cursor and the media index to the chunks now covering the
// same text after chunks were spliced out.
func (c *Controller) remap(ch audiotext.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = ch.MapIndex(c.cursor)
	if c.media.set {
		c.media.index = ch.MapIndex(c.media.index)
	}
}

func (c *Controller) clearMedia() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = media{}
}

func (c *Controller) setState(s StateType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s != StateError {
		c.lastErr = nil
	}
	c.state = s
}

func (c *Controller) notify(s State) {
	c.listenersMu.Lock()
	fns := make([]func(State), len(c.listeners))
	copy(fns, c.listeners)
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
