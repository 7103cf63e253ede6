package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/llms"
	"github.com/samk-ai/voiceflow/core/speechtotext"
	"github.com/samk-ai/voiceflow/core/texttospeech"
	"github.com/samk-ai/voiceflow/core/vad"
)

type fakeTranscriber struct {
	mu         sync.Mutex
	transcript string
	err        error
	failures   int
	calls      int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, utterance []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return "", errors.New("transcription unavailable")
	}
	return f.transcript, f.err
}

type fakeStream struct {
	chunks []string
	err    error
}

func (s *fakeStream) Chunks(ctx context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		for _, chunk := range s.chunks {
			if ctx.Err() != nil {
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type fakeGenerator struct {
	mu      sync.Mutex
	streams []*fakeStream
	calls   int
}

func (f *fakeGenerator) Generate(ctx context.Context, opts ...llms.PromptOption) (llms.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.streams) {
		f.calls++
		return nil, errors.New("no scripted response left")
	}
	stream := f.streams[f.calls]
	f.calls++
	return stream, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSpeechGenerator echoes each text segment back as an audio chunk
// holding the segment's bytes, so tests can assert on what was "spoken".
type fakeSpeechGenerator struct {
	mu      sync.Mutex
	options texttospeech.TextToSpeechOptions
	closed  bool
}

func (g *fakeSpeechGenerator) SendText(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errors.New("generator closed")
	}
	if g.options.SpeechAudioCallback != nil {
		g.options.SpeechAudioCallback([]byte(text))
	}
	return nil
}

func (g *fakeSpeechGenerator) Mark(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errors.New("generator closed")
	}
	if g.options.SpeechMarkCallback != nil {
		g.options.SpeechMarkCallback(name)
	}
	return nil
}

func (g *fakeSpeechGenerator) EndOfText() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.options.SpeechEndedCallback != nil {
		g.options.SpeechEndedCallback()
	}
	return nil
}

func (g *fakeSpeechGenerator) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *fakeSpeechGenerator) Close() error { return g.Cancel() }

type fakeSynthesizer struct{}

func (f *fakeSynthesizer) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return &fakeSpeechGenerator{options: options}, nil
}

// silentSpeechGenerator accepts text but never invokes a callback,
// imitating a synthesis connection that opens and then goes quiet.
type silentSpeechGenerator struct{}

func (silentSpeechGenerator) SendText(string) error { return nil }
func (silentSpeechGenerator) Mark(string) error     { return nil }
func (silentSpeechGenerator) EndOfText() error      { return nil }
func (silentSpeechGenerator) Cancel() error         { return nil }
func (silentSpeechGenerator) Close() error          { return nil }

type silentSynthesizer struct{}

func (silentSynthesizer) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	return silentSpeechGenerator{}, nil
}

type fakeMark struct {
	name    string
	confirm func(string)
}

type fakeTransport struct {
	mu          sync.Mutex
	autoConfirm bool
	audio       []string
	clearedAt   int
	clears      int
	marks       []fakeMark
	closed      bool
}

func (t *fakeTransport) WireEncoding() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (t *fakeTransport) SendAudio(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audio = append(t.audio, string(payload))
	return nil
}

func (t *fakeTransport) SendMark(name string, confirmed func(string)) error {
	t.mu.Lock()
	auto := t.autoConfirm
	t.marks = append(t.marks, fakeMark{name: name, confirm: confirmed})
	t.mu.Unlock()
	if auto && confirmed != nil {
		confirmed(name)
	}
	return nil
}

func (t *fakeTransport) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clears++
	t.clearedAt = len(t.audio)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) spoken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.audio, "")
}

func (t *fakeTransport) audioAfterClear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.audio) - t.clearedAt
}

func (t *fakeTransport) markCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.marks)
}

func (t *fakeTransport) confirmMark(index int) bool {
	t.mu.Lock()
	if index >= len(t.marks) {
		t.mu.Unlock()
		return false
	}
	mark := t.marks[index]
	t.mu.Unlock()
	if mark.confirm != nil {
		mark.confirm(mark.name)
	}
	return true
}

// negotiatingTransport reports a wire encoding that can change after the
// session is built, the way a stream start event lands mid-call.
type negotiatingTransport struct {
	fakeTransport
	encodingMu sync.Mutex
	encoding   audio.EncodingInfo
}

func (t *negotiatingTransport) WireEncoding() audio.EncodingInfo {
	t.encodingMu.Lock()
	defer t.encodingMu.Unlock()
	return t.encoding
}

func (t *negotiatingTransport) setEncoding(encoding audio.EncodingInfo) {
	t.encodingMu.Lock()
	t.encoding = encoding
	t.encodingMu.Unlock()
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type sessionFixture struct {
	session     *Session
	transport   *fakeTransport
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	runDone     chan error
}

func newSessionFixture(t *testing.T, transcriber *fakeTranscriber, generator *fakeGenerator, transport *fakeTransport, orchestratorOpts []OrchestratorOption, sessionOpts ...SessionOption) *sessionFixture {
	t.Helper()
	return newSessionFixtureWithSynthesizer(t, transcriber, &fakeSynthesizer{}, generator, transport, orchestratorOpts, sessionOpts...)
}

func newSessionFixtureWithSynthesizer(t *testing.T, transcriber *fakeTranscriber, synthesizer texttospeech.Synthesizer, generator *fakeGenerator, transport *fakeTransport, orchestratorOpts []OrchestratorOption, sessionOpts ...SessionOption) *sessionFixture {
	t.Helper()

	orchestrator := NewOrchestrator(transcriber, synthesizer, generator, orchestratorOpts...)
	session, err := orchestrator.NewSession(transport, sessionOpts...)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	fixture := &sessionFixture{
		session:     session,
		transport:   transport,
		transcriber: transcriber,
		generator:   generator,
		runDone:     make(chan error, 1),
	}
	go func() { fixture.runDone <- session.Run(context.Background()) }()
	t.Cleanup(func() {
		session.Close()
		select {
		case <-fixture.runDone:
		case <-time.After(5 * time.Second):
			t.Errorf("session run did not finish")
		}
	})
	return fixture
}

func (f *sessionFixture) close(t *testing.T) {
	t.Helper()
	f.session.Close()
	select {
	case err := <-f.runDone:
		if err != nil {
			t.Fatalf("unexpected run error: %v", err)
		}
		f.runDone <- nil
	case <-time.After(5 * time.Second):
		t.Fatalf("session run did not finish")
	}
}

func TestSessionSpeaksGreetingFirst(t *testing.T) {
	transport := &fakeTransport{autoConfirm: true}
	generator := &fakeGenerator{streams: []*fakeStream{{chunks: []string{"Hello, I am here to help."}}}}
	fixture := newSessionFixture(t, &fakeTranscriber{}, generator, transport,
		[]OrchestratorOption{WithGreeting("Introduce yourself.")})

	waitFor(t, "greeting audio", func() bool {
		return transport.spoken() == "Hello, I am here to help."
	})

	fixture.close(t)
	turns := fixture.session.Transcript()
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Role != llms.RoleAssistant || turns[0].Content != "Hello, I am here to help." {
		t.Fatalf("unexpected greeting turn: %+v", turns[0])
	}
	if turns[0].Cancelled {
		t.Fatalf("greeting should not be cancelled")
	}
}

func TestUtteranceDrivesFullTurn(t *testing.T) {
	transport := &fakeTransport{autoConfirm: true}
	transcriber := &fakeTranscriber{transcript: "what can you do"}
	generator := &fakeGenerator{streams: []*fakeStream{{chunks: []string{"I answer ", "questions."}}}}

	transcripts := make(chan string, 1)
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")},
		WithTranscriptionCallback(func(transcript string) { transcripts <- transcript }),
	)

	fixture.session.enqueueUtterance(vad.Utterance{
		Samples:  make([]int16, 1600),
		Duration: 100 * time.Millisecond,
	})

	select {
	case transcript := <-transcripts:
		if transcript != "what can you do" {
			t.Fatalf("unexpected transcript: %q", transcript)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for transcription callback")
	}

	waitFor(t, "response audio", func() bool {
		return transport.spoken() == "I answer questions."
	})

	fixture.close(t)
	turns := fixture.session.Transcript()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d: %+v", len(turns), turns)
	}
	if turns[0].Role != llms.RoleCaller || turns[0].Content != "what can you do" {
		t.Fatalf("unexpected caller turn: %+v", turns[0])
	}
	if turns[1].Role != llms.RoleAssistant || turns[1].Content != "I answer questions." {
		t.Fatalf("unexpected assistant turn: %+v", turns[1])
	}
}

func TestTranscriptionRetriesOnceThenSucceeds(t *testing.T) {
	transport := &fakeTransport{autoConfirm: true}
	transcriber := &fakeTranscriber{transcript: "hello", failures: 1}
	generator := &fakeGenerator{streams: []*fakeStream{{chunks: []string{"Hi."}}}}
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")})

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})

	waitFor(t, "response after retry", func() bool { return transport.spoken() == "Hi." })

	transcriber.mu.Lock()
	calls := transcriber.calls
	transcriber.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected 2 transcription attempts, got %d", calls)
	}
	fixture.close(t)
}

func TestEmptyTranscriptSkipsTurn(t *testing.T) {
	transport := &fakeTransport{autoConfirm: true}
	transcriber := &fakeTranscriber{transcript: "   "}
	generator := &fakeGenerator{streams: []*fakeStream{{chunks: []string{"never spoken"}}}}
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")})

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})

	waitFor(t, "transcription attempt", func() bool {
		transcriber.mu.Lock()
		defer transcriber.mu.Unlock()
		return transcriber.calls > 0
	})
	time.Sleep(50 * time.Millisecond)

	if generator.callCount() != 0 {
		t.Fatalf("expected no generation for empty transcript")
	}
	if transport.spoken() != "" {
		t.Fatalf("expected no audio, got %q", transport.spoken())
	}
	fixture.close(t)
	if len(fixture.session.Transcript()) != 0 {
		t.Fatalf("expected empty transcript log")
	}
}

func TestBargeInCancelsPlayback(t *testing.T) {
	transport := &fakeTransport{} // marks held until the test confirms them
	transcriber := &fakeTranscriber{transcript: "tell me everything"}
	generator := &fakeGenerator{streams: []*fakeStream{
		{chunks: []string{"First sentence.", " Second sentence."}},
	}}

	interrupted := make(chan struct{}, 1)
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")},
		WithInterruptionCallback(func() { interrupted <- struct{}{} }),
	)

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})

	// Wait until everything queued is on the wire (two sentence marks plus
	// the final one), confirm only the first sentence, then barge in.
	waitFor(t, "all marks", func() bool { return transport.markCount() >= 3 })
	if !transport.confirmMark(0) {
		t.Fatalf("failed to confirm first mark")
	}

	fixture.session.handleSpeechStarted()
	select {
	case <-interrupted:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for interruption callback")
	}

	waitFor(t, "transport clear", func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.clears > 0
	})

	// The cancelled turn must finalise even though later marks were never
	// confirmed.
	waitFor(t, "turn finalised", func() bool {
		fixture.session.mu.Lock()
		defer fixture.session.mu.Unlock()
		return fixture.session.activeTurn == nil
	})

	if sent := transport.audioAfterClear(); sent != 0 {
		t.Fatalf("expected no audio after clear, got %d chunks", sent)
	}

	fixture.close(t)
	turns := fixture.session.Transcript()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d: %+v", len(turns), turns)
	}
	last := turns[len(turns)-1]
	if !last.Cancelled {
		t.Fatalf("expected cancelled assistant turn: %+v", last)
	}
	if last.Content != "First sentence." {
		t.Fatalf("expected content to stop at the confirmed mark, got %q", last.Content)
	}
}

func TestBackchannelDoesNotTakeTheFloor(t *testing.T) {
	transport := &fakeTransport{autoConfirm: true}
	transcriber := &fakeTranscriber{transcript: "mm-hm"}
	generator := &fakeGenerator{streams: []*fakeStream{{chunks: []string{"never spoken"}}}}

	classifier := classifierFunc(func(ctx context.Context, transcript string, turns []llms.Turn) (llms.InterruptionKind, error) {
		return llms.InterruptionKindBackchannel, nil
	})
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting(""), WithInterruptionClassifier(classifier)})

	fixture.session.mu.Lock()
	fixture.session.pendingInterruption = true
	fixture.session.mu.Unlock()
	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})

	waitFor(t, "utterance processed", func() bool {
		transcriber.mu.Lock()
		defer transcriber.mu.Unlock()
		return transcriber.calls > 0
	})
	time.Sleep(50 * time.Millisecond)

	if generator.callCount() != 0 {
		t.Fatalf("backchannel should not trigger a response")
	}

	fixture.close(t)
	turns := fixture.session.Transcript()
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Interruption == nil || turns[0].Interruption.Kind != llms.InterruptionKindBackchannel {
		t.Fatalf("expected backchannel annotation: %+v", turns[0])
	}
}

func TestGenerationFailureSpeaksApology(t *testing.T) {
	transport := &fakeTransport{autoConfirm: true}
	transcriber := &fakeTranscriber{transcript: "hello"}
	generator := &fakeGenerator{streams: []*fakeStream{
		{err: errors.New("model unavailable")},
		{err: errors.New("model unavailable")},
	}}
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting(""), WithApology("Sorry, try again.")})

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})

	waitFor(t, "apology audio", func() bool {
		return strings.Contains(transport.spoken(), "Sorry, try again.")
	})

	fixture.close(t)
	turns := fixture.session.Transcript()
	found := false
	for _, turn := range turns {
		if turn.Role == llms.RoleAssistant && turn.Content == "Sorry, try again." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected apology turn in transcript: %+v", turns)
	}
}

func TestInboundCodecFollowsNegotiatedEncoding(t *testing.T) {
	transport := &negotiatingTransport{encoding: audio.GetDefaultEncodingInfo()}
	orchestrator := NewOrchestrator(&fakeTranscriber{}, &fakeSynthesizer{}, &fakeGenerator{}, WithGreeting(""))
	session, err := orchestrator.NewSession(transport)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	if got := session.codec.WireEncoding(); got != audio.GetDefaultEncodingInfo() {
		t.Fatalf("unexpected initial codec encoding: %+v", got)
	}

	negotiated := audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}
	transport.setEncoding(negotiated)

	// One 20 ms linear16 frame at the negotiated rate.
	session.HandleInboundAudio(audio.PCMToBytes(make([]int16, 320)))

	if got := session.codec.WireEncoding(); got != negotiated {
		t.Fatalf("codec still decodes with %+v although the stream negotiated %+v", got, negotiated)
	}
}

func TestCloseMidTurnStopsOutput(t *testing.T) {
	transport := &fakeTransport{} // marks never confirmed, turn stays live
	transcriber := &fakeTranscriber{transcript: "keep talking"}
	generator := &fakeGenerator{streams: []*fakeStream{
		{chunks: []string{"A long answer.", " It keeps going."}},
	}}
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")})

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})

	// The pump flushes everything it has, then stalls waiting for playback
	// confirmations that never arrive.
	waitFor(t, "all marks", func() bool { return transport.markCount() >= 3 })
	sent := len(transport.spoken())

	fixture.close(t)

	if got := len(transport.spoken()); got != sent {
		t.Fatalf("audio sent after close: %d bytes", got-sent)
	}
	fixture.session.mu.Lock()
	active := fixture.session.activeTurn
	fixture.session.mu.Unlock()
	if active != nil {
		t.Fatalf("expected no active turn after close")
	}
}

func TestSilentSynthesisFailsTurn(t *testing.T) {
	transport := &fakeTransport{}
	transcriber := &fakeTranscriber{transcript: "hello"}
	generator := &fakeGenerator{streams: []*fakeStream{{chunks: []string{"Hi."}}}}
	fixture := newSessionFixtureWithSynthesizer(t, transcriber, &silentSynthesizer{}, generator, transport,
		[]OrchestratorOption{WithGreeting(""), WithApology(""), WithStageTimeout(50 * time.Millisecond)})

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})

	waitFor(t, "generation", func() bool { return generator.callCount() > 0 })

	// Synthesis accepts the text but never produces a byte; the stage
	// watchdog must fail the turn instead of leaving it hanging.
	waitFor(t, "turn to finish", func() bool {
		fixture.session.mu.Lock()
		defer fixture.session.mu.Unlock()
		return fixture.session.activeTurn == nil
	})

	if transport.spoken() != "" {
		t.Fatalf("expected no audio, got %q", transport.spoken())
	}
	fixture.close(t)
}

func TestConcurrentInterruptsCancelOnce(t *testing.T) {
	transport := &fakeTransport{} // marks held so the turn stays active
	transcriber := &fakeTranscriber{transcript: "tell me everything"}
	generator := &fakeGenerator{streams: []*fakeStream{
		{chunks: []string{"First sentence.", " Second sentence."}},
	}}
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")})

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})
	waitFor(t, "all marks", func() bool { return transport.markCount() >= 3 })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fixture.session.handleSpeechStarted()
		}()
	}
	wg.Wait()

	waitFor(t, "turn finalised", func() bool {
		fixture.session.mu.Lock()
		defer fixture.session.mu.Unlock()
		return fixture.session.activeTurn == nil
	})

	transport.mu.Lock()
	clears := transport.clears
	transport.mu.Unlock()
	if clears != 1 {
		t.Fatalf("expected a single clear, got %d", clears)
	}

	// With no active turn a further signal is a no-op.
	fixture.session.handleSpeechStarted()
	transport.mu.Lock()
	clears = transport.clears
	transport.mu.Unlock()
	if clears != 1 {
		t.Fatalf("expected no clear without an active turn, got %d", clears)
	}

	fixture.close(t)
	cancelledTurns := 0
	for _, turn := range fixture.session.Transcript() {
		if turn.Cancelled {
			cancelledTurns++
		}
	}
	if cancelledTurns != 1 {
		t.Fatalf("expected exactly one cancelled turn, got %d", cancelledTurns)
	}
}

func TestSecondTurnRejectedWhileActive(t *testing.T) {
	transport := &fakeTransport{} // unconfirmed marks keep the turn active
	transcriber := &fakeTranscriber{transcript: "tell me everything"}
	generator := &fakeGenerator{streams: []*fakeStream{
		{chunks: []string{"One."}},
		{chunks: []string{"never spoken"}},
	}}
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")})

	fixture.session.enqueueUtterance(vad.Utterance{Samples: make([]int16, 800)})
	waitFor(t, "active turn", func() bool {
		fixture.session.mu.Lock()
		defer fixture.session.mu.Unlock()
		return fixture.session.activeTurn != nil && generator.callCount() == 1
	})

	// Re-entering while a turn is active must refuse, not interleave.
	fixture.session.runTurn(context.Background(), trace.SpanFromContext(context.Background()), "instructions")

	if generator.callCount() != 1 {
		t.Fatalf("expected the concurrent turn to be refused, got %d generations", generator.callCount())
	}

	fixture.session.handleSpeechStarted() // release the stalled turn
	fixture.close(t)
}

func TestInboundAudioDrivesTurnEndToEnd(t *testing.T) {
	transport := &fakeTransport{autoConfirm: true}
	transcriber := &fakeTranscriber{transcript: "testing one two"}
	generator := &fakeGenerator{streams: []*fakeStream{{chunks: []string{"Loud and clear."}}}}
	fixture := newSessionFixture(t, transcriber, generator, transport,
		[]OrchestratorOption{WithGreeting("")})

	loud := make([]int16, 160)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 3000
		} else {
			loud[i] = -3000
		}
	}
	loudFrame := audio.EncodeMulaw(loud)
	silence := audio.GetDefaultEncodingInfo().SilenceValue()
	silentFrame := make([]byte, 160)
	for i := range silentFrame {
		silentFrame[i] = silence
	}

	// 400 ms of speech, then enough silence to close the utterance.
	for i := 0; i < 20; i++ {
		fixture.session.HandleInboundAudio(loudFrame)
	}
	for i := 0; i < 41; i++ {
		fixture.session.HandleInboundAudio(silentFrame)
	}

	waitFor(t, "end-to-end response", func() bool {
		return transport.spoken() == "Loud and clear."
	})
	fixture.close(t)
}

type classifierFunc func(ctx context.Context, transcript string, turns []llms.Turn) (llms.InterruptionKind, error)

func (f classifierFunc) Classify(ctx context.Context, transcript string, turns []llms.Turn) (llms.InterruptionKind, error) {
	return f(ctx, transcript, turns)
}

var _ Transport = (*fakeTransport)(nil)
