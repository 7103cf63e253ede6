// voiceflow is the phone-bot server: it answers a Twilio voice webhook
// with TwiML that opens a Media Stream back to this process, then runs the
// voice pipeline over that stream for the lifetime of the call.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	pipeline "github.com/samk-ai/voiceflow/core"
	interruptionllm "github.com/samk-ai/voiceflow/core/interruptions/llm"
	"github.com/samk-ai/voiceflow/core/llms"
	"github.com/samk-ai/voiceflow/core/llms/openai"
	"github.com/samk-ai/voiceflow/core/speechtotext/deepgram"
	"github.com/samk-ai/voiceflow/core/telephony"
	"github.com/samk-ai/voiceflow/core/telephony/twilio"
	"github.com/samk-ai/voiceflow/core/texttospeech"
	"github.com/samk-ai/voiceflow/core/texttospeech/cartesia"
	"github.com/samk-ai/voiceflow/core/texttospeech/openaispeech"
)

var logger = otelslog.NewLogger("github.com/samk-ai/voiceflow/cmd/voiceflow")

const defaultPort = "8765"

const instructions = `You are a friendly and knowledgeable teacher on a phone call with a student.

Keep your answers short and conversational: one to three sentences, the way
a person speaks. Your answers are converted to speech, so use plain words
with no special characters, lists, or formatting. If the student seems
confused, slow down and explain differently rather than repeating yourself.`

const twimlTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Stream url="wss://%s/ws" />
  </Connect>
  <Pause length="40"/>
</Response>`

func main() {
	testMode := flag.Bool("t", false, "run in test mode: accept loopback clients that do not echo marks")
	classify := flag.Bool("classify", false, "classify overlapping caller speech before treating it as a barge-in")
	noStream := flag.Bool("no-stream", false, "request whole completions instead of token streams")
	flag.Parse()

	port := os.Getenv("VOICEFLOW_PORT")
	if port == "" {
		port = defaultPort
	}

	orchestrator, err := buildOrchestrator(*classify, *testMode, *noStream)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	upgrader := websocket.Upgrader{
		// Twilio connects server-to-server with no Origin header; local
		// test clients connect from anywhere.
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, twimlTemplate, r.Host)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade media stream connection", "error", err)
			return
		}
		serveCall(r.Context(), orchestrator, conn, *testMode)
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: otelhttp.NewHandler(mux, "voiceflow"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "port", port, "test_mode", *testMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func buildOrchestrator(classify, testMode, noStream bool) (*pipeline.Orchestrator, error) {
	transcriber, err := deepgram.NewTranscriptionClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	synthesizer, err := buildSynthesizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	apiKey, ok := os.LookupEnv("OPENAI_API_KEY")
	if !ok {
		return nil, fmt.Errorf("openai api key not found")
	}
	model := os.Getenv("VOICEFLOW_MODEL")
	generator := pipeline.ResponseGeneratorFunc(func(ctx context.Context, opts ...llms.PromptOption) (llms.Stream, error) {
		if noStream {
			// Unlike the lazy stream, Prompt performs the request here;
			// bound it the way the pipeline bounds its stages.
			ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			response, err := openai.Prompt(ctx, apiKey, model, opts...)
			if err != nil {
				return nil, err
			}
			return response, nil
		}
		return openai.PromptWithStream(ctx, apiKey, model, opts...), nil
	})

	opts := []pipeline.OrchestratorOption{
		pipeline.WithInstructions(instructions),
	}
	if testMode {
		// A synthesized apology is noise when driving the pipeline from
		// the loopback client; keep silence on failed turns instead.
		opts = append(opts, pipeline.WithApology(""))
	}
	if classify {
		classifier, err := interruptionllm.NewClassifier()
		if err != nil {
			return nil, fmt.Errorf("failed to create interruption classifier: %w", err)
		}
		opts = append(opts, pipeline.WithInterruptionClassifier(classifier))
	}

	return pipeline.NewOrchestrator(transcriber, synthesizer, generator, opts...), nil
}

// buildSynthesizer prefers the streaming Cartesia voice and falls back to
// batch OpenAI synthesis when no Cartesia key is configured.
func buildSynthesizer() (texttospeech.Synthesizer, error) {
	if synthesizer, err := cartesia.NewClient(); err == nil {
		return synthesizer, nil
	}
	logger.Info("cartesia not configured, falling back to openai speech")
	return openaispeech.NewClient()
}

// serveCall runs one call to completion: the Twilio session feeds caller
// audio into the pipeline session, which speaks back through it.
func serveCall(ctx context.Context, orchestrator *pipeline.Orchestrator, conn *websocket.Conn, testMode bool) {
	var session *pipeline.Session

	twilioOpts := []twilio.SessionOption{
		twilio.WithStreamStartedCallback(func(info telephony.StreamInfo) {
			logger.Info("call started", "callSid", info.CallSid, "streamSid", info.StreamSid)
		}),
		twilio.WithMediaCallback(func(payload []byte) {
			session.HandleInboundAudio(payload)
		}),
	}
	if testMode {
		twilioOpts = append(twilioOpts, twilio.WithLoopbackAcks())
	}
	transport := twilio.NewSession(conn, twilioOpts...)

	session, err := orchestrator.NewSession(transport)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		transport.Close()
		return
	}
	defer session.Close()

	go func() {
		if err := session.Run(ctx); err != nil {
			logger.Warn("pipeline session ended", "session", session.ID(), "error", err)
		}
		transport.Close()
	}()

	if err := transport.Run(ctx); err != nil {
		logger.Warn("media stream ended", "session", session.ID(), "error", err)
	}
	logger.Info("call ended", "session", session.ID())
}
