package pipeline

import (
	"strings"
	"sync"
)

// textBuffer joins the response generator to the synthesis pump: the
// generator appends token deltas as they arrive and the pump consumes them
// through Segments, blocking while the buffer is empty but not complete.
type textBuffer struct {
	mu           sync.Mutex
	segments     []string
	consumed     int
	complete     bool
	cleared      bool
	updateSignal chan struct{}
}

func newTextBuffer() *textBuffer {
	return &textBuffer{updateSignal: make(chan struct{}, 1)}
}

func (b *textBuffer) Append(segment string) {
	b.mu.Lock()
	b.segments = append(b.segments, segment)
	b.mu.Unlock()
	b.signalUpdate()
}

// Complete marks the text as fully generated; Segments returns once the
// remaining segments are drained.
func (b *textBuffer) Complete() {
	b.mu.Lock()
	b.complete = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Clear ends the Segments iteration immediately, discarding anything not
// yet consumed.
func (b *textBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Segments yields appended segments in order, waiting for more until
// Complete or Clear is called.
func (b *textBuffer) Segments(yield func(string) bool) {
	for {
		b.mu.Lock()
		switch {
		case b.cleared:
			b.mu.Unlock()
			return
		case b.consumed < len(b.segments):
			segment := b.segments[b.consumed]
			b.consumed++
			b.mu.Unlock()
			if !yield(segment) {
				return
			}
		case b.complete:
			b.mu.Unlock()
			return
		default:
			b.mu.Unlock()
			<-b.updateSignal
		}
	}
}

func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.segments, "")
}

func (b *textBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}
