package vad

import (
	"fmt"
	"math"
	"time"

	"github.com/samk-ai/voiceflow/core/audio"
)

// State is the turn-taking position of one session's caller audio.
type State string

const (
	StateSilence         State = "silence"
	StateSpeaking        State = "speaking"
	StateTrailingSilence State = "trailing-silence"
)

// Utterance is a contiguous span of caller speech. The detector owns it
// while it accumulates; ownership transfers to the utterance callback once
// the closing silence persists past the hangover.
type Utterance struct {
	Samples       []int16
	StartSequence uint64
	EndSequence   uint64
	Duration      time.Duration
}

// Detector is the per-session speech/silence state machine. It consumes
// inbound frames one at a time, keeps a short rolling energy estimate with
// an adaptive noise floor, and reports start-of-speech and closed
// utterances through its callbacks.
//
// Detector is not safe for concurrent use; each session feeds its detector
// from the session-owning goroutine only.
type Detector struct {
	config    Config
	callbacks callbacks

	state        State
	noiseFloor   float64
	nextSequence *uint64

	// speechRun counts consecutive speech frames observed while still in
	// silence; start-of-speech is only confirmed once it covers the
	// debounce window.
	speechRun    int
	trailingRun  int
	speechFrames int

	pending []audio.Frame
}

func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		config: DefaultConfig(),
		state:  StateSilence,
		callbacks: callbacks{
			onSpeechStarted: func() {},
			onSpeechEnded:   func() {},
			onUtterance:     func(Utterance) {},
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Detector) State() State { return d.state }

// Process consumes one inbound frame. Frames must arrive in strictly
// increasing sequence order; a regression is rejected without touching
// detector state.
func (d *Detector) Process(frame audio.Frame) error {
	if d.nextSequence != nil && frame.Sequence < *d.nextSequence {
		return fmt.Errorf("frame out of order: got sequence %d, expected at least %d", frame.Sequence, *d.nextSequence)
	}
	next := frame.Sequence + 1
	d.nextSequence = &next

	speech := d.classify(frame.Samples)

	switch d.state {
	case StateSilence:
		d.observeSilence(frame, speech)
	case StateSpeaking:
		d.observeSpeaking(frame, speech)
	case StateTrailingSilence:
		d.observeTrailing(frame, speech)
	}

	return nil
}

// Flush closes any in-progress utterance, e.g. when the session ends while
// the caller is mid-sentence.
func (d *Detector) Flush() {
	if d.state == StateSpeaking || d.state == StateTrailingSilence {
		d.closeUtterance()
	}
	d.reset()
}

func (d *Detector) observeSilence(frame audio.Frame, speech bool) {
	if !speech {
		d.adaptNoiseFloor(frame.Samples)
		d.speechRun = 0
		d.pending = nil
		return
	}

	d.speechRun++
	d.pending = append(d.pending, frame)
	if d.speechRun >= d.debounceFrames() {
		d.state = StateSpeaking
		d.speechFrames = d.speechRun
		d.callbacks.onSpeechStarted()
	}
}

func (d *Detector) observeSpeaking(frame audio.Frame, speech bool) {
	d.pending = append(d.pending, frame)
	if speech {
		d.speechFrames++
		return
	}

	d.state = StateTrailingSilence
	d.trailingRun = 1
}

func (d *Detector) observeTrailing(frame audio.Frame, speech bool) {
	if speech {
		// A brief pause, not a turn end.
		d.pending = append(d.pending, frame)
		d.speechFrames++
		d.state = StateSpeaking
		d.trailingRun = 0
		return
	}

	d.pending = append(d.pending, frame)
	d.trailingRun++
	if d.trailingRun >= d.hangoverFrames() {
		d.closeUtterance()
		d.reset()
	}
}

func (d *Detector) closeUtterance() {
	d.callbacks.onSpeechEnded()

	frames := d.pending
	if d.trailingRun > 0 && d.trailingRun <= len(frames) {
		frames = frames[:len(frames)-d.trailingRun]
	}
	if len(frames) == 0 {
		return
	}

	if d.speechFrames < d.minUtteranceFrames() {
		// Spurious noise burst; no turn is produced.
		return
	}

	var samples []int16
	for _, f := range frames {
		samples = append(samples, f.Samples...)
	}

	d.callbacks.onUtterance(Utterance{
		Samples:       samples,
		StartSequence: frames[0].Sequence,
		EndSequence:   frames[len(frames)-1].Sequence,
		Duration:      time.Duration(len(frames)) * d.config.FrameDuration,
	})
}

func (d *Detector) reset() {
	d.state = StateSilence
	d.speechRun = 0
	d.trailingRun = 0
	d.speechFrames = 0
	d.pending = nil
}

func (d *Detector) classify(samples []int16) bool {
	energy := rms(samples)
	threshold := d.config.EnergyThreshold
	if adaptive := d.noiseFloor * d.config.NoiseFloorRatio; adaptive > threshold {
		threshold = adaptive
	}
	return energy > threshold
}

func (d *Detector) adaptNoiseFloor(samples []int16) {
	const adaptation = 0.05
	d.noiseFloor = (1-adaptation)*d.noiseFloor + adaptation*rms(samples)
}

func (d *Detector) debounceFrames() int {
	return framesFor(d.config.DebounceDuration, d.config.FrameDuration)
}

func (d *Detector) hangoverFrames() int {
	return framesFor(d.config.HangoverDuration, d.config.FrameDuration)
}

func (d *Detector) minUtteranceFrames() int {
	return framesFor(d.config.MinUtteranceDuration, d.config.FrameDuration)
}

func framesFor(duration, frameDuration time.Duration) int {
	if frameDuration <= 0 {
		return 1
	}
	frames := int(duration / frameDuration)
	if frames < 1 {
		frames = 1
	}
	return frames
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
