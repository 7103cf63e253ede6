package pipeline

import (
	"sync"
)

// audioBuffer sits between speech synthesis and the transport. Synthesized
// audio chunks accumulate as they arrive; the playback pump drains them
// through Audio in order, interleaved with marks. Two playheads track
// progress: the internal playhead is what the pump has handed to the
// transport, the external playhead is what the remote end has confirmed
// played through mark echoes. The buffer is done only when everything
// loaded has been confirmed played.
type audioBuffer struct {
	mu sync.Mutex

	audio          [][]byte
	allAudioLoaded bool

	internalPlayhead int
	externalPlayhead int

	marks []audioBufferMark

	stopped      bool
	updateSignal chan struct{}
}

type audioBufferMark struct {
	name        string
	spokenText  string
	position    int
	broadcasted bool
	confirmed   bool
}

type audioOrMark struct {
	Type  string
	Audio []byte
	Mark  string
}

func newAudioBuffer() *audioBuffer {
	return &audioBuffer{updateSignal: make(chan struct{}, 1)}
}

func (b *audioBuffer) AddAudio(audio []byte) {
	b.mu.Lock()
	b.audio = append(b.audio, audio)
	b.mu.Unlock()
	b.signalUpdate()
}

// Mark records a named position after all audio added so far, together
// with the full text spoken up to that position.
func (b *audioBuffer) Mark(name, spokenText string) {
	b.mu.Lock()
	b.marks = append(b.marks, audioBufferMark{
		name:       name,
		spokenText: spokenText,
		position:   len(b.audio),
	})
	b.mu.Unlock()
	b.signalUpdate()
}

// Audio yields audio chunks and marks in playback order, waiting for more
// until the buffer is done or stopped.
func (b *audioBuffer) Audio(yield func(audioOrMark) bool) {
	for {
		for {
			audio, ok := b.consumeNextChunk()
			if !ok {
				break
			}
			if !yield(audioOrMark{Type: "audio", Audio: audio}) {
				return
			}
			if ok := b.broadcastMarks(yield); !ok {
				return
			}
		}
		if ok := b.waitForNextAudio(yield); !ok {
			return
		}
	}
}

func (b *audioBuffer) consumeNextChunk() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped || len(b.audio) <= b.internalPlayhead {
		return nil, false
	}

	audio := b.audio[b.internalPlayhead]
	b.internalPlayhead++
	return audio, true
}

func (b *audioBuffer) broadcastMarks(yield func(audioOrMark) bool) (ok bool) {
	b.mu.Lock()
	marksToBroadcast := []string{}
	for i, mark := range b.marks {
		if mark.confirmed || mark.broadcasted {
			continue
		} else if mark.position > b.internalPlayhead {
			break
		}

		b.marks[i].broadcasted = true
		marksToBroadcast = append(marksToBroadcast, mark.name)
	}
	b.mu.Unlock()

	for _, name := range marksToBroadcast {
		if !yield(audioOrMark{Type: "mark", Mark: name}) {
			return false
		}
	}

	return true
}

func (b *audioBuffer) waitForNextAudio(yield func(audioOrMark) bool) (ok bool) {
	for {
		b.mu.Lock()
		noAudioAvailable := len(b.audio) == b.internalPlayhead
		stopped := b.stopped
		audioDone := b.audioDoneLocked()
		b.mu.Unlock()

		if !noAudioAvailable {
			return !(stopped || audioDone)
		}

		if stopped || audioDone {
			return false
		}

		<-b.updateSignal
		// A mark can land after its audio has already been handed out;
		// broadcast here too so the loop cannot wait forever on a mark
		// that never gets another audio chunk behind it.
		if ok := b.broadcastMarks(yield); !ok {
			return false
		}
	}
}

func (b *audioBuffer) audioDoneLocked() bool {
	return b.allAudioLoaded && b.externalPlayhead == len(b.audio)
}

// ConfirmMark advances the external playhead to the named mark's position.
// Marks are confirmed in broadcast order; a confirmation for a mark that
// was never broadcast is ignored.
func (b *audioBuffer) ConfirmMark(name string) {
	b.mu.Lock()
	shouldSignal := false
	for i, mark := range b.marks {
		if mark.confirmed {
			continue
		} else if !mark.broadcasted {
			break
		}
		if mark.name == name {
			b.marks[i].confirmed = true
			b.externalPlayhead = mark.position
			if b.audioDoneLocked() {
				shouldSignal = true
			}
			break
		}
	}
	b.mu.Unlock()

	if shouldSignal {
		b.signalUpdate()
	}
}

// LastConfirmedText reports the text spoken up to the latest confirmed
// mark, i.e. what the caller has actually heard.
func (b *audioBuffer) LastConfirmedText() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	spoken := ""
	for _, mark := range b.marks {
		if !mark.confirmed {
			continue
		}
		spoken = mark.spokenText
	}
	return spoken
}

func (b *audioBuffer) AllAudioLoaded() {
	b.mu.Lock()
	b.allAudioLoaded = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Stop ends the Audio iteration; anything not yet consumed is discarded.
func (b *audioBuffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *audioBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}
