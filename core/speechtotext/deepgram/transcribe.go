package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/speechtotext"
)

const (
	defaultModel    = "nova-3"
	defaultLanguage = "en-US"

	// audioChunkSize is how much audio goes into one websocket write while
	// streaming the utterance out.
	audioChunkSize = 8192

	// finalizeGrace bounds how long we wait for the flushed final after
	// CloseStream when the caller's context has no sooner deadline.
	finalizeGrace = 10 * time.Second
)

// TranscriptionClient transcribes closed utterances against the Deepgram
// listen API, one websocket stream per utterance. It is safe for concurrent
// use; each Transcribe call owns its own connection.
type TranscriptionClient struct {
	apiKey   string
	model    string
	language string
}

var _ speechtotext.Transcriber = (*TranscriptionClient)(nil)

type TranscriptionClientOption func(*TranscriptionClient)

func WithModel(model string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithLanguage(language string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.language = language }
}

func NewTranscriptionClient(opts ...TranscriptionClientOption) (*TranscriptionClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	c := &TranscriptionClient{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transcribe streams the utterance to Deepgram, finalizes the stream, and
// returns the accumulated final transcript.
func (c *TranscriptionClient) Transcribe(ctx context.Context, utterance []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	options := speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connectWebsocket(*encoding)
	if err != nil {
		return "", fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	stream := &utteranceStream{conn: conn, options: options}
	done := make(chan struct{})
	go func() {
		defer close(done)
		stream.readAndProcessMessages(ctx)
	}()

	if err := stream.sendAudio(utterance); err != nil {
		return "", fmt.Errorf("failed to send utterance audio: %w", err)
	}
	if err := stream.finalize(); err != nil {
		return "", fmt.Errorf("failed to finalize stream: %w", err)
	}

	deadline := time.After(finalizeGrace)
	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-deadline:
		return "", fmt.Errorf("timed out waiting for final transcript")
	}

	return strings.TrimSpace(stream.transcript()), nil
}

func (c *TranscriptionClient) connectWebsocket(encoding encodingInfo) (*websocket.Conn, error) {
	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type utteranceStream struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	options speechtotext.TranscriptionOptions

	mu          sync.Mutex
	accumulated string
}

func (s *utteranceStream) sendAudio(utterance []byte) error {
	for len(utterance) > 0 {
		chunk := utterance
		if len(chunk) > audioChunkSize {
			chunk = chunk[:audioChunkSize]
		}
		utterance = utterance[len(chunk):]

		s.connMu.Lock()
		err := s.conn.WriteMessage(websocket.BinaryMessage, chunk)
		s.connMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}
	return nil
}

func (s *utteranceStream) finalize() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream through websocket: %w", err)
	}
	return nil
}

// readAndProcessMessages consumes responses until the server closes the
// stream after CloseStream has flushed the final transcript.
func (s *utteranceStream) readAndProcessMessages(ctx context.Context) {
	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.WarnContext(ctx, "failed to read deepgram websocket message", "error", err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		s.processMessage(ctx, msg)
	}
}

func (s *utteranceStream) processMessage(ctx context.Context, msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}

		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if len(transcript) == 0 {
			return
		}

		if msgResp.IsFinal {
			s.mu.Lock()
			s.accumulated += " " + transcript
			s.mu.Unlock()
		} else if s.options.InterimTranscriptionCallback != nil {
			s.options.InterimTranscriptionCallback(transcript)
		}
	}
}

func (s *utteranceStream) transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated
}
