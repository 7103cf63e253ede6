package openaispeech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	url          = "https://api.openai.com/v1/audio/speech"
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "nova"
)

// Client synthesizes speech through the OpenAI speech endpoint. Unlike the
// streaming Cartesia client it generates the whole utterance in one request;
// it exists as a fallback when no streaming synthesis key is configured.
type Client struct {
	apiKey string
	model  string
	voice  string
}

var _ texttospeech.Synthesizer = (*Client)(nil)

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithVoice(voice string) ClientOption {
	return func(c *Client) { c.voice = voice }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("OPENAI_API_KEY")
	if !ok {
		return nil, fmt.Errorf("openai api key not found")
	}

	c := &Client{apiKey: apiKey, model: defaultModel, voice: defaultVoice}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewSpeechGenerator returns a generator that buffers text until EndOfText,
// then issues one synthesis request and replays the result through the
// audio callback.
func (c *Client) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	g := &batchGenerator{
		ctx:    ctx,
		client: c,
		options: texttospeech.TextToSpeechOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechMarkCallback:  func(string) {},
			SpeechEndedCallback: func() {},
			ErrorCallback:       func(error) {},
			EncodingInfo:        audio.GetDefaultEncodingInfo(),
		},
	}
	for _, opt := range opts {
		opt(&g.options)
	}
	return g, nil
}

type batchGenerator struct {
	ctx     context.Context
	client  *Client
	options texttospeech.TextToSpeechOptions

	mu        sync.Mutex
	text      strings.Builder
	marks     []string
	completed bool
	closed    bool
}

func (g *batchGenerator) SendText(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.completed || g.closed {
		return fmt.Errorf("speech generator closed")
	}
	g.text.WriteString(text)
	return nil
}

func (g *batchGenerator) Mark(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.completed || g.closed {
		return fmt.Errorf("speech generator closed")
	}
	g.marks = append(g.marks, name)
	return nil
}

func (g *batchGenerator) EndOfText() error {
	g.mu.Lock()
	if g.completed || g.closed {
		g.mu.Unlock()
		return nil
	}
	g.completed = true
	text := g.text.String()
	marks := g.marks
	g.mu.Unlock()

	go g.synthesize(text, marks)
	return nil
}

func (g *batchGenerator) Cancel() error { return g.Close() }

func (g *batchGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *batchGenerator) synthesize(text string, marks []string) {
	ctx, span := tracer.Start(g.ctx, "synthesize speech batch")
	defer span.End()

	wire, err := g.client.synthesizeToWire(ctx, text, g.options.EncodingInfo)
	if err != nil {
		span.RecordError(err)
		g.options.ErrorCallback(fmt.Errorf("failed to synthesize speech: %w", err))
		return
	}

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}

	g.options.SpeechAudioCallback(wire)
	for _, mark := range marks {
		g.options.SpeechMarkCallback(mark)
	}
	g.options.SpeechEndedCallback()
}

// synthesizeToWire requests MP3 speech and converts it to the session's
// wire encoding: decode, downmix to mono, resample, compand.
func (c *Client) synthesizeToWire(ctx context.Context, text string, encoding audio.EncodingInfo) ([]byte, error) {
	reqBody := map[string]any{
		"model":           c.model,
		"voice":           c.voice,
		"response_format": "mp3",
		"input":           text,
	}
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("non-OK HTTP status %s: %s", resp.Status, string(body))
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read decoded audio: %w", err)
	}

	// go-mp3 always yields 16-bit stereo.
	stereo := audio.BytesToPCM(raw)
	mono := make([]int16, len(stereo)/2)
	for i := range mono {
		left := int32(stereo[2*i])
		right := int32(stereo[2*i+1])
		mono[i] = int16((left + right) / 2)
	}

	codec, err := audio.NewCodec(encoding, audio.GetServiceEncodingInfo())
	if err != nil {
		return nil, err
	}
	samples := audio.Resample(mono, decoder.SampleRate(), encoding.SampleRate)
	return codec.EncodeAtWireRate(samples), nil
}
