package twilio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samk-ai/voiceflow/core/audio"
)

// Media Streams wire messages. Every websocket text frame is one JSON
// object with an "event" discriminator; unknown events are skipped.
type message struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Protocol       string        `json:"protocol,omitempty"`
	Version        string        `json:"version,omitempty"`
	Start          *startPayload `json:"start,omitempty"`
	Media          *mediaPayload `json:"media,omitempty"`
	Mark           *markPayload  `json:"mark,omitempty"`
	Stop           *stopPayload  `json:"stop,omitempty"`
}

const (
	eventConnected = "connected"
	eventStart     = "start"
	eventMedia     = "media"
	eventMark      = "mark"
	eventStop      = "stop"
	eventClear     = "clear"
)

type startPayload struct {
	StreamSid   string      `json:"streamSid"`
	AccountSid  string      `json:"accountSid"`
	CallSid     string      `json:"callSid"`
	Tracks      []string    `json:"tracks"`
	MediaFormat mediaFormat `json:"mediaFormat"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type stopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

func parseMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse media stream message: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("media stream message without event")
	}
	return &msg, nil
}

func (m *mediaFormat) encodingInfo() (audio.EncodingInfo, error) {
	if m.Channels > 1 {
		return audio.EncodingInfo{}, fmt.Errorf("unsupported channel count: %d", m.Channels)
	}
	encoding, ok := audio.ParseEncoding(m.Encoding)
	if !ok {
		return audio.EncodingInfo{}, fmt.Errorf("unsupported media encoding: %q", m.Encoding)
	}
	sampleRate := m.SampleRate
	if sampleRate == 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return audio.EncodingInfo{SampleRate: sampleRate, Format: encoding}, nil
}

func encodeMediaMessage(streamSid string, payload []byte) ([]byte, error) {
	return json.Marshal(message{
		Event:     eventMedia,
		StreamSid: streamSid,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(payload)},
	})
}

func encodeMarkMessage(streamSid, name string) ([]byte, error) {
	return json.Marshal(message{
		Event:     eventMark,
		StreamSid: streamSid,
		Mark:      &markPayload{Name: name},
	})
}

func encodeClearMessage(streamSid string) ([]byte, error) {
	return json.Marshal(message{Event: eventClear, StreamSid: streamSid})
}

func decodeMediaPayload(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode media payload: %w", err)
	}
	return data, nil
}
