package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samk-ai/voiceflow/core/llms"
	"github.com/samk-ai/voiceflow/core/texttospeech"
)

// turnRequest is one assistant turn in flight: response generation,
// synthesis, and playback run as three workers joined by the text and
// audio buffers. Any worker failure or a barge-in cancels the whole turn.
type turnRequest struct {
	id           string
	session      *Session
	instructions string
	history      []llms.Turn

	ctx    context.Context
	cancel context.CancelFunc

	textBuffer  *textBuffer
	audioBuffer *audioBuffer

	generatorMu       sync.Mutex
	generator         texttospeech.SpeechGenerator
	synthesisWatchdog *time.Timer
	ttsReady          chan struct{}

	// markTexts maps a mark name to the full response text spoken up to
	// that mark, recorded when the mark is placed.
	markTexts sync.Map

	cancelled        atomic.Bool
	synthesisStalled atomic.Bool
	interruptOnce    sync.Once
}

func newTurnRequest(ctx context.Context, session *Session, instructions string, history []llms.Turn) *turnRequest {
	ctx, cancel := context.WithCancel(ctx)
	return &turnRequest{
		id:           uuid.NewString(),
		session:      session,
		instructions: instructions,
		history:      history,
		ctx:          ctx,
		cancel:       cancel,
		textBuffer:   newTextBuffer(),
		audioBuffer:  newAudioBuffer(),
		ttsReady:     make(chan struct{}),
	}
}

// process runs the turn to completion. It returns once generation is done
// and everything synthesized has been played out, cancelled, or failed.
func (t *turnRequest) process() error {
	ctx := t.ctx
	defer t.cancel()

	var workerErr error
	var workerErrMu sync.Mutex
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
	}

	run := func(name string, f func(context.Context) error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				addWorkerErr(fmt.Errorf("%s worker panicked: %v", name, recovered))
				t.cancel()
			}
		}()

		if err := f(ctx); err != nil {
			addWorkerErr(fmt.Errorf("%s worker failed: %w", name, err))
			t.cancel()
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		run("response generation", t.generateResponse)
	}()
	go func() {
		defer wg.Done()
		run("text synthesis", t.processResponseText)
	}()
	go func() {
		defer wg.Done()
		run("speech playback", t.processSpeech)
	}()
	wg.Wait()
	t.stopSynthesisWatchdog()

	if workerErr != nil && !t.isCancelled() {
		return fmt.Errorf("one or more turn workers failed: %w", workerErr)
	}
	return nil
}

// interrupt cancels the turn and silences it immediately: playback stops,
// queued and remotely buffered audio is dropped, synthesis is cancelled.
// Idempotent and safe from any goroutine.
func (t *turnRequest) interrupt() {
	t.interruptOnce.Do(func() {
		t.cancelled.Store(true)
		t.cancel()
		t.stopSynthesisWatchdog()
		t.audioBuffer.Stop()
		if err := t.session.transport.Clear(); err != nil {
			logger.Warn("failed to clear transport on interrupt",
				"session", t.session.id, "error", err)
		}
		if generator := t.speechGenerator(); generator != nil {
			generator.Cancel()
		}
	})
}

func (t *turnRequest) isCancelled() bool {
	return t.cancelled.Load()
}

func (t *turnRequest) generateResponse(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "generate response")
	defer span.End()
	defer t.textBuffer.Complete()

	config := t.session.orchestrator.config

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		stream, err := t.session.orchestrator.generator.Generate(ctx,
			llms.WithInstructions(t.instructions),
			llms.WithTurns(t.history),
		)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		received := false
		var streamErr error
		stageCtx, cancelStage := context.WithTimeout(ctx, config.stageTimeout)
		for chunk, err := range stream.Chunks(stageCtx) {
			if err != nil {
				streamErr = err
				break
			}
			received = true
			t.textBuffer.Append(chunk)
		}
		cancelStage()

		if streamErr == nil {
			span.SetAttributes(attribute.Int("turn.attempts", attempt+1))
			return nil
		}
		lastErr = streamErr
		// A stream that failed after yielding tokens is not retried: the
		// already-spoken prefix cannot be taken back.
		if received || ctx.Err() != nil {
			break
		}
	}

	if t.isCancelled() {
		return nil
	}
	err := fmt.Errorf("failed to generate response: %w", lastErr)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (t *turnRequest) processResponseText(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			t.textBuffer.Clear()
		case <-done:
		}
	}()

	_, span := tracer.Start(ctx, "passing text to synthesis")
	defer span.End()

	if err := t.initSpeechGenerator(ctx, span); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	generator := t.speechGenerator()

	spoken := strings.Builder{}
	for segment := range t.textBuffer.Segments {
		if t.isCancelled() {
			break
		}
		if t.session.callbacks.Response != nil {
			t.session.callbacks.Response(segment)
		}
		spoken.WriteString(segment)

		if err := generator.SendText(segment); err != nil {
			span.RecordError(fmt.Errorf("failed to send text to synthesis: %w", err))
			break
		}
		if strings.ContainsAny(segment, ".?!") {
			t.placeMark(span, generator, spoken.String())
		}
	}

	if !t.isCancelled() {
		t.placeMark(span, generator, spoken.String())
		if err := generator.EndOfText(); err != nil {
			span.RecordError(fmt.Errorf("failed to end synthesis text: %w", err))
		}
	}

	if t.session.callbacks.ResponseEnd != nil {
		t.session.callbacks.ResponseEnd()
	}
	return nil
}

func (t *turnRequest) initSpeechGenerator(ctx context.Context, span trace.Span) error {
	defer close(t.ttsReady)

	// A synthesis connection can open and then go silent. Every audio or
	// mark callback re-arms the watchdog; a full stage timeout without
	// progress stops the buffer and fails the playback worker.
	timeout := t.session.orchestrator.config.stageTimeout
	watchdog := time.AfterFunc(timeout, func() {
		t.synthesisStalled.Store(true)
		t.audioBuffer.Stop()
	})

	generator, err := t.session.orchestrator.synthesizer.NewSpeechGenerator(ctx,
		texttospeech.WithEncodingInfo(t.session.transport.WireEncoding()),
		texttospeech.WithSpeechAudioCallback(func(chunk []byte) {
			watchdog.Reset(timeout)
			t.audioBuffer.AddAudio(chunk)
		}),
		texttospeech.WithSpeechMarkCallback(func(name string) {
			watchdog.Reset(timeout)
			spokenText := ""
			if text, ok := t.markTexts.Load(name); ok {
				spokenText, _ = text.(string)
			}
			t.audioBuffer.Mark(name, spokenText)
		}),
		texttospeech.WithSpeechEndedCallback(func() {
			watchdog.Stop()
			t.audioBuffer.AllAudioLoaded()
		}),
		texttospeech.WithErrorCallback(func(err error) {
			watchdog.Stop()
			span.RecordError(fmt.Errorf("synthesis stream failed: %w", err))
			t.audioBuffer.Stop()
		}),
	)
	if err != nil {
		watchdog.Stop()
		return fmt.Errorf("failed to create speech generator: %w", err)
	}

	t.generatorMu.Lock()
	t.generator = generator
	t.synthesisWatchdog = watchdog
	t.generatorMu.Unlock()

	// An interrupt that raced generator creation never saw it; re-check.
	if t.isCancelled() {
		generator.Cancel()
	}
	return nil
}

func (t *turnRequest) speechGenerator() texttospeech.SpeechGenerator {
	t.generatorMu.Lock()
	defer t.generatorMu.Unlock()
	return t.generator
}

func (t *turnRequest) stopSynthesisWatchdog() {
	t.generatorMu.Lock()
	watchdog := t.synthesisWatchdog
	t.generatorMu.Unlock()
	if watchdog != nil {
		watchdog.Stop()
	}
}

func (t *turnRequest) placeMark(span trace.Span, generator texttospeech.SpeechGenerator, spokenText string) {
	name := uuid.NewString()
	t.markTexts.Store(name, spokenText)
	if err := generator.Mark(name); err != nil {
		span.RecordError(fmt.Errorf("failed to send mark to synthesis: %w", err))
	}
}

func (t *turnRequest) processSpeech(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			t.audioBuffer.Stop()
		case <-done:
		}
	}()

	<-t.ttsReady
	if t.speechGenerator() == nil {
		return nil
	}

	_, span := tracer.Start(ctx, "passing speech to transport")
	defer span.End()

	for item := range t.audioBuffer.Audio {
		switch item.Type {
		case "audio":
			if t.isCancelled() {
				return nil
			}
			if err := t.session.transport.SendAudio(item.Audio); err != nil {
				err := fmt.Errorf("failed to send audio to transport: %w", err)
				span.RecordError(err)
				return err
			}
		case "mark":
			span.AddEvent("broadcasting mark", trace.WithAttributes(attribute.String("mark", item.Mark)))
			err := t.session.transport.SendMark(item.Mark, func(name string) {
				t.audioBuffer.ConfirmMark(name)
			})
			if err != nil {
				err := fmt.Errorf("failed to send mark to transport: %w", err)
				span.RecordError(err)
				return err
			}
		}
	}

	if t.synthesisStalled.Load() && !t.isCancelled() {
		err := errors.New("synthesis stalled before completing the response")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
