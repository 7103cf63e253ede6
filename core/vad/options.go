package vad

import "time"

// Config holds the turn-taking policy knobs. The durations are deliberately
// tunable; the defaults sit inside the ranges commonly used for telephony
// endpointing.
type Config struct {
	// FrameDuration is the fixed length of one inbound frame.
	FrameDuration time.Duration
	// EnergyThreshold is the minimum RMS energy treated as speech.
	EnergyThreshold float64
	// NoiseFloorRatio scales the adaptive noise floor into a speech
	// threshold; whichever of the two thresholds is higher wins.
	NoiseFloorRatio float64
	// DebounceDuration is how long speech must be sustained before
	// start-of-speech is confirmed.
	DebounceDuration time.Duration
	// HangoverDuration is how long trailing silence must persist before the
	// utterance closes, allowing brief pauses without a false turn end.
	HangoverDuration time.Duration
	// MinUtteranceDuration discards utterances whose speech content is
	// shorter than this.
	MinUtteranceDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		FrameDuration:        20 * time.Millisecond,
		EnergyThreshold:      500,
		NoiseFloorRatio:      3,
		DebounceDuration:     200 * time.Millisecond,
		HangoverDuration:     800 * time.Millisecond,
		MinUtteranceDuration: 300 * time.Millisecond,
	}
}

type callbacks struct {
	onSpeechStarted func()
	onSpeechEnded   func()
	onUtterance     func(Utterance)
}

type DetectorOption func(*Detector)

func WithConfig(config Config) DetectorOption {
	return func(d *Detector) {
		if config.FrameDuration <= 0 {
			config.FrameDuration = DefaultConfig().FrameDuration
		}
		d.config = config
	}
}

// WithSpeechStartedCallback fires as soon as start-of-speech is confirmed,
// independent of end-of-speech. Barge-in hangs off this.
func WithSpeechStartedCallback(callback func()) DetectorOption {
	return func(d *Detector) { d.callbacks.onSpeechStarted = callback }
}

func WithSpeechEndedCallback(callback func()) DetectorOption {
	return func(d *Detector) { d.callbacks.onSpeechEnded = callback }
}

// WithUtteranceCallback receives each closed utterance; ownership of the
// samples transfers to the callback.
func WithUtteranceCallback(callback func(Utterance)) DetectorOption {
	return func(d *Detector) { d.callbacks.onUtterance = callback }
}
