package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/texttospeech"
)

type streamingRequest struct {
	ws *websocket.Conn
	mu sync.Mutex

	client    *Client
	contextID string
	format    outputFormat

	// markQueue holds mark names awaiting their flush_done; Cartesia
	// confirms flushes in request order so a FIFO is enough.
	markQueue   []string
	markQueueMu sync.Mutex

	options texttospeech.TextToSpeechOptions

	textComplete bool
	cancelled    bool
	closed       bool
}

func (c *Client) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	req := &streamingRequest{
		client:    c,
		contextID: uuid.NewString(),
		options: texttospeech.TextToSpeechOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechMarkCallback:  func(string) {},
			SpeechEndedCallback: func() {},
			ErrorCallback:       func(error) {},
			EncodingInfo:        audio.GetDefaultEncodingInfo(),
		},
	}

	for _, opt := range opts {
		opt(&req.options)
	}

	format, err := convertEncoding(req.options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}
	req.format = *format

	if req.ws, err = c.connectWebsocket(ctx); err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	go req.processIncomingMessages(ctx)

	return req, nil
}

func (c *Client) connectWebsocket(ctx context.Context) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("api_key", c.apiKey)
	urlValues.Set("cartesia_version", apiVersion)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme: "wss",
			Host:   "api.cartesia.ai", Path: "/tts/websocket",
			RawQuery: urlValues.Encode(),
		}).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to cartesia: %w", err)
	}

	return conn, nil
}

type generationRequest struct {
	ContextID    string       `json:"context_id"`
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Continue     bool         `json:"continue"`
	Flush        bool         `json:"flush,omitempty"`
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

func (r *streamingRequest) send(req generationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.cancelled {
		return fmt.Errorf("speech generator closed")
	}
	if err := r.ws.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to write to cartesia websocket: %w", err)
	}
	return nil
}

func (r *streamingRequest) baseRequest() generationRequest {
	return generationRequest{
		ContextID:    r.contextID,
		ModelID:      r.client.model,
		Voice:        voiceSpec{Mode: "id", ID: r.client.voice},
		OutputFormat: r.format,
		Continue:     true,
	}
}

func (r *streamingRequest) SendText(text string) error {
	if r.textComplete {
		return fmt.Errorf("text already complete")
	}

	req := r.baseRequest()
	req.Transcript = text
	return r.send(req)
}

func (r *streamingRequest) Mark(name string) error {
	if r.textComplete {
		return fmt.Errorf("text already complete")
	}

	r.markQueueMu.Lock()
	r.markQueue = append(r.markQueue, name)
	r.markQueueMu.Unlock()

	req := r.baseRequest()
	req.Flush = true
	return r.send(req)
}

func (r *streamingRequest) EndOfText() error {
	if r.textComplete {
		return nil
	}
	r.textComplete = true

	req := r.baseRequest()
	req.Continue = false
	return r.send(req)
}

func (r *streamingRequest) Cancel() error {
	r.mu.Lock()
	if r.cancelled || r.closed {
		r.mu.Unlock()
		return nil
	}
	r.cancelled = true

	err := r.ws.WriteJSON(struct {
		ContextID string `json:"context_id"`
		Cancel    bool   `json:"cancel"`
	}{ContextID: r.contextID, Cancel: true})
	r.mu.Unlock()

	if closeErr := r.Close(); closeErr != nil {
		return closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to cancel cartesia context: %w", err)
	}
	return nil
}

func (r *streamingRequest) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.ws.Close()
}

type incomingMessage struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id"`
	Data      string `json:"data"`
	Done      bool   `json:"done"`
	Error     string `json:"error"`
}

func (r *streamingRequest) processIncomingMessages(ctx context.Context) {
	for {
		_, msg, err := r.ws.ReadMessage()
		if err != nil {
			r.mu.Lock()
			closed := r.closed || r.cancelled
			r.mu.Unlock()
			if !closed && ctx.Err() == nil {
				logger.WarnContext(ctx, "cartesia websocket read error", "error", err)
				r.options.ErrorCallback(err)
			}
			return
		}

		var parsed incomingMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal cartesia message", "error", err)
			continue
		}

		switch parsed.Type {
		case "chunk":
			chunk, err := base64.StdEncoding.DecodeString(parsed.Data)
			if err != nil {
				logger.WarnContext(ctx, "failed to decode cartesia audio chunk", "error", err)
				continue
			}
			r.options.SpeechAudioCallback(chunk)

		case "flush_done":
			r.markQueueMu.Lock()
			if len(r.markQueue) > 0 {
				mark := r.markQueue[0]
				r.markQueue = r.markQueue[1:]
				r.markQueueMu.Unlock()
				r.options.SpeechMarkCallback(mark)
			} else {
				r.markQueueMu.Unlock()
			}

		case "done":
			// Drain any marks the service folded into the final flush.
			r.markQueueMu.Lock()
			remaining := r.markQueue
			r.markQueue = nil
			r.markQueueMu.Unlock()
			for _, mark := range remaining {
				r.options.SpeechMarkCallback(mark)
			}

			r.options.SpeechEndedCallback()
			_ = r.Close()
			return

		case "error":
			err := fmt.Errorf("cartesia synthesis error: %s", parsed.Error)
			logger.ErrorContext(ctx, "cartesia synthesis failed", "error", err)
			r.options.ErrorCallback(err)
			_ = r.Close()
			return
		}
	}
}
