package texttospeech

import (
	"context"

	"github.com/samk-ai/voiceflow/core/audio"
)

type TextToSpeechOptions struct {
	// SpeechAudioCallback is called for each audio chunk the synthesis
	// service produces, in generation order.
	SpeechAudioCallback func(audio []byte)
	// SpeechMarkCallback is called when synthesis has produced audio up to
	// a marked point in the text. Each mark is called once, in order.
	SpeechMarkCallback func(mark string)
	// SpeechEndedCallback is called when all requested speech has been
	// generated.
	SpeechEndedCallback func()
	// ErrorCallback is called when the synthesis stream fails; the
	// generator is unusable afterwards.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type TextToSpeechOption func(*TextToSpeechOptions)

func WithSpeechAudioCallback(callback func([]byte)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechAudioCallback = callback }
}

func WithSpeechMarkCallback(callback func(string)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechMarkCallback = callback }
}

func WithSpeechEndedCallback(callback func()) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechEndedCallback = callback }
}

func WithErrorCallback(callback func(error)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.ErrorCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

// SpeechGenerator is one streaming synthesis request. Text goes in through
// SendText in speaking order; audio comes back through the configured
// callbacks.
type SpeechGenerator interface {
	// SendText sends text to the generator. Speech is generated in the
	// order text is sent.
	//
	// SendText errors if EndOfText, Cancel or Close has been called.
	SendText(text string) error
	// Mark marks the current point in the text. The mark callback fires
	// after the text sent up to this point has been synthesized.
	//
	// Mark errors if EndOfText, Cancel or Close has been called.
	Mark(name string) error
	// EndOfText signals that no more text will be sent. The generator
	// closes itself once all remaining speech has been generated.
	// Repeated calls are ignored.
	EndOfText() error
	// Cancel stops further speech generation immediately and closes the
	// generator. Repeated calls are ignored.
	Cancel() error
	// Close releases the generator immediately. No callbacks fire after
	// Close returns. Repeated calls are ignored.
	Close() error
}

// Synthesizer opens streaming synthesis requests against a service.
type Synthesizer interface {
	NewSpeechGenerator(ctx context.Context, opts ...TextToSpeechOption) (SpeechGenerator, error)
}
