// Package pipeline orchestrates one voice conversation: inbound call audio
// is decoded and segmented into utterances, each utterance is transcribed,
// answered by a language model, synthesized, and streamed back out through
// the telephony transport. The caller can interrupt the assistant at any
// time; playback stops and the conversation moves on.
package pipeline

import (
	"context"
	"time"

	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/llms"
	"github.com/samk-ai/voiceflow/core/speechtotext"
	"github.com/samk-ai/voiceflow/core/texttospeech"
	"github.com/samk-ai/voiceflow/core/vad"
)

// Transport is the outbound half of a telephony media session: ordered
// audio delivery, playback-position marks, and a way to drop audio the
// remote end has buffered but not yet played.
type Transport interface {
	WireEncoding() audio.EncodingInfo
	SendAudio(payload []byte) error
	// SendMark enqueues a mark after all previously sent audio; confirmed
	// fires once everything before it has been played out.
	SendMark(name string, confirmed func(name string)) error
	// Clear discards queued and remotely buffered audio.
	Clear() error
	Close() error
}

// ResponseGenerator produces the assistant's reply as a token stream.
type ResponseGenerator interface {
	Generate(ctx context.Context, opts ...llms.PromptOption) (llms.Stream, error)
}

// ResponseGeneratorFunc adapts a function to the ResponseGenerator
// interface.
type ResponseGeneratorFunc func(ctx context.Context, opts ...llms.PromptOption) (llms.Stream, error)

func (f ResponseGeneratorFunc) Generate(ctx context.Context, opts ...llms.PromptOption) (llms.Stream, error) {
	return f(ctx, opts...)
}

// InterruptionClassifier decides whether caller speech that overlapped
// assistant playback was a real barge-in or a backchannel acknowledgement.
type InterruptionClassifier interface {
	Classify(ctx context.Context, transcript string, turns []llms.Turn) (llms.InterruptionKind, error)
}

// Orchestrator holds the providers and configuration shared by all
// sessions. One Orchestrator serves many concurrent calls; each call gets
// its own Session.
type Orchestrator struct {
	transcriber speechtotext.Transcriber
	synthesizer texttospeech.Synthesizer
	generator   ResponseGenerator
	classifier  InterruptionClassifier

	config orchestratorConfig
}

type orchestratorConfig struct {
	instructions  string
	greeting      string
	apology       string
	stageTimeout  time.Duration
	contextBudget int
	vadConfig     *vad.Config
}

const (
	defaultStageTimeout = 15 * time.Second
	defaultGreeting     = "Introduce yourself to the caller in one or two short sentences, then ask how you can help."
	defaultApology      = "I'm sorry, something went wrong on my end. Could you say that again?"
)

// NewOrchestrator wires the three stage providers together. The zero
// configuration answers with no persona, greets with a default
// introduction, and applies a 15 second per-stage timeout.
func NewOrchestrator(
	transcriber speechtotext.Transcriber,
	synthesizer texttospeech.Synthesizer,
	generator ResponseGenerator,
	opts ...OrchestratorOption,
) *Orchestrator {
	orchestrator := &Orchestrator{
		transcriber: transcriber,
		synthesizer: synthesizer,
		generator:   generator,
		config: orchestratorConfig{
			greeting:     defaultGreeting,
			apology:      defaultApology,
			stageTimeout: defaultStageTimeout,
		},
	}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator
}
