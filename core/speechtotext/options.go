package speechtotext

import (
	"context"

	"github.com/samk-ai/voiceflow/core/audio"
)

// Transcriber turns one closed utterance of audio into text. The audio is
// in the encoding given by the options; implementations stream it out and
// await the service's final transcript within the context's deadline.
type Transcriber interface {
	Transcribe(ctx context.Context, utterance []byte, opts ...TranscriptionOption) (string, error)
}

type TranscriptionOptions struct {
	EncodingInfo audio.EncodingInfo

	// InterimTranscriptionCallback, when set, receives interim hypotheses
	// as they arrive. Final transcript assembly does not depend on it.
	InterimTranscriptionCallback func(transcript string)
}

type TranscriptionOption func(*TranscriptionOptions)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

func WithInterimTranscriptionCallback(callback func(string)) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.InterimTranscriptionCallback = callback }
}
