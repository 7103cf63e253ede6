package pipeline

import (
	"time"

	"github.com/samk-ai/voiceflow/core/vad"
)

type OrchestratorOption func(*Orchestrator)

// WithInstructions sets the persona preamble sent with every generation
// request.
func WithInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) { o.config.instructions = instructions }
}

// WithGreeting sets the instruction used to produce the assistant's
// opening turn, spoken before the caller says anything.
func WithGreeting(greeting string) OrchestratorOption {
	return func(o *Orchestrator) { o.config.greeting = greeting }
}

// WithApology sets the line spoken when a turn fails mid-pipeline.
func WithApology(apology string) OrchestratorOption {
	return func(o *Orchestrator) { o.config.apology = apology }
}

// WithStageTimeout bounds how long each pipeline stage (transcription,
// generation) may take before the turn is abandoned.
func WithStageTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.config.stageTimeout = timeout
		}
	}
}

// WithContextBudget caps how many conversation turns are replayed to the
// model on each request. Zero means no cap.
func WithContextBudget(turns int) OrchestratorOption {
	return func(o *Orchestrator) { o.config.contextBudget = turns }
}

// WithVoiceActivityConfig overrides the turn-taking detector tuning for
// all sessions.
func WithVoiceActivityConfig(config vad.Config) OrchestratorOption {
	return func(o *Orchestrator) { o.config.vadConfig = &config }
}

// WithInterruptionClassifier enables classification of overlapping caller
// speech into barge-ins and backchannels. Without it every overlap is
// treated as a barge-in.
func WithInterruptionClassifier(classifier InterruptionClassifier) OrchestratorOption {
	return func(o *Orchestrator) { o.classifier = classifier }
}

type sessionCallbacks struct {
	// Transcription fires with the final transcript of each caller
	// utterance.
	Transcription func(transcript string)
	// Response fires with each assistant text segment as it is spoken.
	Response func(segment string)
	// ResponseEnd fires when an assistant turn's text is complete.
	ResponseEnd func()
	// Interruption fires when caller speech cancels assistant playback.
	Interruption func()
}

type SessionOption func(*sessionOptions)

type sessionOptions struct {
	callbacks sessionCallbacks
}

func WithTranscriptionCallback(callback func(transcript string)) SessionOption {
	return func(o *sessionOptions) { o.callbacks.Transcription = callback }
}

func WithResponseCallback(callback func(segment string)) SessionOption {
	return func(o *sessionOptions) { o.callbacks.Response = callback }
}

func WithResponseEndCallback(callback func()) SessionOption {
	return func(o *sessionOptions) { o.callbacks.ResponseEnd = callback }
}

func WithInterruptionCallback(callback func()) SessionOption {
	return func(o *sessionOptions) { o.callbacks.Interruption = callback }
}
