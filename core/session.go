package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/llms"
	"github.com/samk-ai/voiceflow/core/speechtotext"
	"github.com/samk-ai/voiceflow/core/texttospeech"
	"github.com/samk-ai/voiceflow/core/transcript"
	"github.com/samk-ai/voiceflow/core/vad"
)

const sessionEventQueueCapacity = 10

type eventKind int

const (
	eventGreeting eventKind = iota
	eventUtterance
)

type queuedEvent struct {
	kind      eventKind
	utterance vad.Utterance
	queuedAt  time.Time
}

// Session drives one conversation over one transport. Inbound audio is fed
// through HandleInboundAudio from the transport's read goroutine; turns are
// processed one at a time on the goroutine that calls Run.
type Session struct {
	id           string
	orchestrator *Orchestrator
	transport    Transport
	codec        *audio.Codec
	detector     *vad.Detector
	log          *transcript.Log
	callbacks    sessionCallbacks

	queue   chan queuedEvent
	closeCh chan struct{}
	done    chan struct{}
	endOnce sync.Once

	mu         sync.Mutex
	activeTurn *turnRequest
	sequence   uint64

	// pendingInterruption is set when caller speech cancels assistant
	// playback and consumed when that speech's transcript arrives, so the
	// utterance can be classified and annotated.
	pendingInterruption bool
}

// NewSession builds a session for one call. The codec starts from the
// transport's current wire encoding and is rebuilt if the stream
// negotiates a different one.
func (o *Orchestrator) NewSession(transport Transport, opts ...SessionOption) (*Session, error) {
	options := sessionOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	codec, err := audio.NewCodec(transport.WireEncoding(), audio.GetServiceEncodingInfo())
	if err != nil {
		return nil, err
	}

	session := &Session{
		id:           uuid.NewString(),
		orchestrator: o,
		transport:    transport,
		codec:        codec,
		log: transcript.NewLog(o.config.instructions,
			transcript.WithContextBudget(o.config.contextBudget)),
		callbacks: options.callbacks,
		queue:     make(chan queuedEvent, sessionEventQueueCapacity),
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	detectorOpts := []vad.DetectorOption{
		vad.WithSpeechStartedCallback(session.handleSpeechStarted),
		vad.WithUtteranceCallback(session.enqueueUtterance),
	}
	if o.config.vadConfig != nil {
		detectorOpts = append(detectorOpts, vad.WithConfig(*o.config.vadConfig))
	}
	session.detector = vad.NewDetector(detectorOpts...)

	return session, nil
}

func (s *Session) ID() string { return s.id }

// Transcript returns a deep copy of the conversation so far.
func (s *Session) Transcript() []llms.Turn { return s.log.Snapshot() }

// HandleInboundAudio decodes one frame of wire audio and feeds it to the
// turn-taking detector. It must be called from a single goroutine, in
// arrival order.
func (s *Session) HandleInboundAudio(payload []byte) {
	if len(payload) == 0 {
		return
	}

	// The wire format is negotiated at stream start, which lands after the
	// session is built; follow the transport's current encoding.
	if wire := s.transport.WireEncoding(); wire != s.codec.WireEncoding() {
		codec, err := audio.NewCodec(wire, audio.GetServiceEncodingInfo())
		if err != nil {
			logger.Warn("dropping inbound frame, unusable wire encoding",
				"session", s.id, "error", err)
			return
		}
		s.codec = codec
	}

	s.mu.Lock()
	sequence := s.sequence
	s.sequence++
	s.mu.Unlock()

	frame := audio.Frame{
		Sequence:  sequence,
		Direction: audio.DirectionInbound,
		Samples:   s.codec.Decode(payload),
	}
	if err := s.detector.Process(frame); err != nil {
		logger.Warn("dropping inbound frame", "session", s.id, "error", err)
	}
}

// handleSpeechStarted fires on the inbound audio goroutine the moment
// caller speech is confirmed. If the assistant is mid-playback this is a
// barge-in: the active turn is cancelled immediately, without waiting for
// the utterance to close or be transcribed.
func (s *Session) handleSpeechStarted() {
	s.mu.Lock()
	turn := s.activeTurn
	s.mu.Unlock()

	if turn == nil {
		return
	}
	turn.interrupt()

	s.mu.Lock()
	s.pendingInterruption = true
	s.mu.Unlock()

	if s.callbacks.Interruption != nil {
		s.callbacks.Interruption()
	}
}

func (s *Session) consumePendingInterruption() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingInterruption
	s.pendingInterruption = false
	return pending
}

func (s *Session) enqueueUtterance(utterance vad.Utterance) {
	select {
	case <-s.closeCh:
	case s.queue <- queuedEvent{kind: eventUtterance, utterance: utterance, queuedAt: time.Now()}:
	default:
		logger.Warn("dropping utterance, event queue full",
			"session", s.id, "duration", utterance.Duration)
	}
}

// Run processes turns until the context is cancelled or the session is
// closed. It speaks the greeting first, then answers utterances in order.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	if s.orchestrator.config.greeting != "" {
		s.processQueuedEvent(ctx, queuedEvent{kind: eventGreeting, queuedAt: time.Now()})
	}

	for {
		select {
		case <-s.closeCh:
			return nil
		case event := <-s.queue:
			s.processQueuedEvent(ctx, event)
		}
	}
}

// Close ends the session, cancelling any in-flight turn. Safe to call from
// any goroutine, repeatedly.
func (s *Session) Close() {
	s.endOnce.Do(func() {
		close(s.closeCh)

		s.mu.Lock()
		turn := s.activeTurn
		s.mu.Unlock()
		if turn != nil {
			turn.interrupt()
		}
	})
}

func (s *Session) processQueuedEvent(ctx context.Context, event queuedEvent) {
	turnCtx, turnCancel := context.WithCancel(ctx)
	defer turnCancel()

	go func() {
		select {
		case <-s.closeCh:
			turnCancel()
		case <-turnCtx.Done():
		}
	}()

	spanCtx, span := tracer.Start(turnCtx, "process turn")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("turn.queued_time", time.Since(event.queuedAt).Seconds()),
		attribute.Int("turn.queued_events", len(s.queue)),
	)

	switch event.kind {
	case eventGreeting:
		instructions := s.log.Preamble()
		if greeting := s.orchestrator.config.greeting; greeting != "" {
			instructions = strings.TrimSpace(instructions + "\n\n" + greeting)
		}
		s.runTurn(spanCtx, span, instructions)
	case eventUtterance:
		s.processUtterance(spanCtx, span, event.utterance)
	}
}

func (s *Session) processUtterance(ctx context.Context, span trace.Span, utterance vad.Utterance) {
	text, err := s.transcribeUtterance(ctx, utterance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.speakApology(ctx)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		span.AddEvent("empty transcript, skipping turn")
		return
	}
	span.SetAttributes(attribute.Int("turn.transcript_length", len(text)))

	if s.callbacks.Transcription != nil {
		s.callbacks.Transcription(text)
	}

	turn := llms.Turn{Role: llms.RoleCaller, Content: text}
	if s.consumePendingInterruption() {
		interruption := &llms.Interruption{Kind: llms.InterruptionKindBargeIn, Transcript: text}
		if classifier := s.orchestrator.classifier; classifier != nil {
			kind, err := classifier.Classify(ctx, text, s.log.Context())
			if err != nil {
				span.RecordError(err)
			} else {
				interruption.Kind = kind
			}
		}
		turn.Interruption = interruption
		span.SetAttributes(attribute.String("turn.interruption", string(interruption.Kind)))

		s.log.Append(turn)
		if interruption.Kind == llms.InterruptionKindBackchannel {
			// An acknowledgement does not take the floor; nothing to answer.
			return
		}
	} else {
		s.log.Append(turn)
	}

	s.runTurn(ctx, span, s.log.Preamble())
}

// transcribeUtterance submits one closed utterance and awaits its final
// transcript, retrying once on a provider failure.
func (s *Session) transcribeUtterance(ctx context.Context, utterance vad.Utterance) (string, error) {
	payload := audio.PCMToBytes(utterance.Samples)
	opts := []speechtotext.TranscriptionOption{
		speechtotext.WithEncodingInfo(audio.GetServiceEncodingInfo()),
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, s.orchestrator.config.stageTimeout)
		text, err := s.orchestrator.transcriber.Transcribe(stageCtx, payload, opts...)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logger.Warn("transcription attempt failed", "session", s.id, "attempt", attempt, "error", err)
	}
	return "", lastErr
}

func (s *Session) runTurn(ctx context.Context, span trace.Span, instructions string) {
	turn := newTurnRequest(ctx, s, instructions, s.log.Context())

	s.mu.Lock()
	if s.activeTurn != nil {
		s.mu.Unlock()
		// The runtime goroutine processes turns serially, so this cannot
		// happen unless something re-enters runTurn.
		span.SetStatus(codes.Error, "active turn already set")
		return
	}
	s.activeTurn = turn
	s.mu.Unlock()

	err := turn.process()

	s.mu.Lock()
	s.activeTurn = nil
	s.mu.Unlock()

	cancelled := turn.isCancelled()
	content := turn.textBuffer.String()
	if cancelled {
		content = turn.audioBuffer.LastConfirmedText()
	}
	if content != "" || cancelled {
		s.log.Append(llms.Turn{
			Role:      llms.RoleAssistant,
			Content:   content,
			Cancelled: cancelled,
		})
	}
	span.SetAttributes(attribute.Bool("turn.cancelled", cancelled))

	if err != nil && !cancelled {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.speakApology(ctx)
	}
}

// speakApology plays the canned failure line straight through the
// transport, outside the turn machinery. Best effort: if synthesis itself
// is down the caller just hears silence.
func (s *Session) speakApology(ctx context.Context) {
	apology := s.orchestrator.config.apology
	if apology == "" || ctx.Err() != nil {
		return
	}

	ctx, span := tracer.Start(ctx, "speak apology")
	defer span.End()

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	generator, err := s.orchestrator.synthesizer.NewSpeechGenerator(ctx,
		texttospeech.WithEncodingInfo(s.transport.WireEncoding()),
		texttospeech.WithSpeechAudioCallback(func(audio []byte) {
			if err := s.transport.SendAudio(audio); err != nil {
				finish()
			}
		}),
		texttospeech.WithSpeechEndedCallback(finish),
		texttospeech.WithErrorCallback(func(err error) {
			span.RecordError(err)
			finish()
		}),
	)
	if err != nil {
		span.RecordError(err)
		return
	}
	defer generator.Close()

	if err := generator.SendText(apology); err != nil {
		span.RecordError(err)
		return
	}
	if err := generator.EndOfText(); err != nil {
		span.RecordError(err)
		return
	}

	select {
	case <-done:
		s.log.AppendAssistant(apology)
	case <-ctx.Done():
	case <-time.After(s.orchestrator.config.stageTimeout):
		span.AddEvent("apology playback timed out")
	}
}
