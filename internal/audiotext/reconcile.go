package audiotext

import (
	"fmt"
)

// EditKind is the kind of a text edit.
type EditKind int

const (
	// Add inserts text at an offset.
	Add EditKind = iota
	// Remove deletes text starting at an offset.
	Remove
)

func (k EditKind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("EditKind(%d)", int(k))
	}
}

// ParseEditKind parses "add" or "remove".
func ParseEditKind(s string) (EditKind, error) {
	switch s {
	case "add":
		return Add, nil
	case "remove":
		return Remove, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidEdit, s)
}

// OnTextChanged applies one atomic edit to the timeline. offset is in the
// same coordinates as the chunk offsets. Chunks whose text is unaffected
// keep their audio; the rest are invalidated.
func (at *AudioText) OnTextChanged(offset int, kind EditKind, text string) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidEdit, offset)
	}
	if text == "" {
		return nil
	}

	at.mu.Lock()
	ch := Change{Kind: ChangeEdit}
	switch kind {
	case Add:
		ch.Chunks = at.addLocked(offset, text)
	case Remove:
		ch.Chunks, ch.Remap = at.removeLocked(offset, len(text))
		if ch.Remap != nil {
			ch.Kind = ChangeSpliced
		}
	default:
		at.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidEdit, kind)
	}
	at.mu.Unlock()

	at.emit(ch)
	return nil
}

// addLocked inserts text and returns the index of the invalidated chunk, if
// any.
func (at *AudioText) addLocked(offset int, text string) []int {
	first, last := at.chunks[0], at.chunks[len(at.chunks)-1]
	n := len(text)

	switch {
	case offset > last.End:
		return nil
	case offset < first.Start:
		for _, c := range at.chunks {
			c.shift(n)
		}
		return nil
	}

	target := at.insertTarget(offset)
	c := at.chunks[target]
	rel := offset - c.Start
	c.RawText = c.RawText[:rel] + text + c.RawText[rel:]
	c.End += n
	c.invalidate()

	for _, later := range at.chunks[target+1:] {
		later.shift(n)
	}
	return []int{target}
}

// insertTarget picks the chunk that absorbs an insertion at offset. An
// offset strictly inside a chunk goes to that chunk. An offset on a
// boundary goes to the chunk starting there, passing over empty
// placeholders to the next chunk with text. An empty last chunk is filled
// directly, and the trailing edge of the span appends to the last chunk.
func (at *AudioText) insertTarget(offset int) int {
	lastIdx := len(at.chunks) - 1

	for i, c := range at.chunks {
		if c.Contains(offset) {
			return i
		}
		if c.Start != offset {
			continue
		}
		if !c.IsEmpty() || i == lastIdx {
			return i
		}
		for j := i + 1; j <= lastIdx; j++ {
			if !at.chunks[j].IsEmpty() {
				return j
			}
		}
		return lastIdx
	}
	return lastIdx
}

// removeLocked deletes n bytes at offset and returns the indices of the
// chunks that lost text. Emptied chunks stay as placeholders, one per
// boundary; when extra placeholders are dropped the returned remap maps old
// indices to new ones.
func (at *AudioText) removeLocked(offset, n int) ([]int, []int) {
	cutEnd := offset + n
	// Positions inside the removed range collapse onto offset.
	mapPos := func(p int) int {
		switch {
		case p <= offset:
			return p
		case p <= cutEnd:
			return offset
		default:
			return p - n
		}
	}

	var changed []int
	for i, c := range at.chunks {
		lo, hi := max(c.Start, offset), min(c.End, cutEnd)
		if lo < hi {
			c.RawText = c.RawText[:lo-c.Start] + c.RawText[hi-c.Start:]
			changed = append(changed, i)
		}
		c.Start, c.End = mapPos(c.Start), mapPos(c.End)
		if lo < hi {
			c.invalidate()
		}
	}
	return at.collapseEmptyLocked(changed)
}

// collapseEmptyLocked keeps only the first of every run of adjacent empty
// chunks. The dropped ones map onto the kept placeholder, which marks the
// same boundary.
func (at *AudioText) collapseEmptyLocked(changed []int) ([]int, []int) {
	spliced := false
	for i := 1; i < len(at.chunks); i++ {
		if at.chunks[i].IsEmpty() && at.chunks[i-1].IsEmpty() {
			spliced = true
			break
		}
	}
	if !spliced {
		return changed, nil
	}

	remap := make([]int, len(at.chunks))
	kept := at.chunks[:0:0]
	for i, c := range at.chunks {
		if i > 0 && c.IsEmpty() && at.chunks[i-1].IsEmpty() {
			remap[i] = len(kept) - 1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, c)
	}
	at.chunks = kept

	var out []int
	for _, i := range changed {
		if j := remap[i]; len(out) == 0 || out[len(out)-1] != j {
			out = append(out, j)
		}
	}
	return out, remap
}
