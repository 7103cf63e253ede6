package cartesia

import (
	"fmt"
	"os"

	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/texttospeech"
)

const (
	defaultModel = "sonic-2"
	// defaultVoice is the "British Reading Lady" voice.
	defaultVoice = "71a7ad14-091c-4e8e-a314-022ece01c121"

	apiVersion = "2024-06-10"
)

// Client opens streaming synthesis requests against the Cartesia websocket
// API. It is safe for concurrent use; every generator owns its own
// connection.
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
	apiKey, ok := os.LookupEnv("CARTESIA_API_KEY")
	if !ok {
		return nil, fmt.Errorf("cartesia api key not found")
	}

	c := &Client{apiKey: apiKey, model: defaultModel, voice: defaultVoice}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

func convertEncoding(encoding audio.EncodingInfo) (*outputFormat, error) {
	format := outputFormat{Container: "raw", SampleRate: encoding.SampleRate}
	switch encoding.Format {
	case audio.EncodingMulaw:
		format.Encoding = "pcm_mulaw"
		if encoding.SampleRate != 8000 {
			return nil, fmt.Errorf("unsupported sample rate for mulaw encoding")
		}
	case audio.EncodingALaw:
		format.Encoding = "pcm_alaw"
		if encoding.SampleRate != 8000 {
			return nil, fmt.Errorf("unsupported sample rate for alaw encoding")
		}
	case audio.EncodingLinear16:
		format.Encoding = "pcm_s16le"
	default:
		return nil, fmt.Errorf("unsupported encoding")
	}
	return &format, nil
}
