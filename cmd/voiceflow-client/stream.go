package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// streamClient speaks the Media Streams wire protocol from the carrier
// side: it announces a stream, pushes mic audio, plays what comes back,
// and echoes marks once the audio before them has been played, the way the
// Twilio media gateway does.
type streamClient struct {
	conn      *websocket.Conn
	connMu    sync.Mutex
	streamSid string
	callSid   string
}

type streamMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Protocol  string       `json:"protocol,omitempty"`
	Version   string       `json:"version,omitempty"`
	Start     *streamStart `json:"start,omitempty"`
	Media     *streamMedia `json:"media,omitempty"`
	Mark      *streamMark  `json:"mark,omitempty"`
	Stop      *struct{}    `json:"stop,omitempty"`
}

type streamStart struct {
	StreamSid   string            `json:"streamSid"`
	CallSid     string            `json:"callSid"`
	Tracks      []string          `json:"tracks"`
	MediaFormat streamMediaFormat `json:"mediaFormat"`
}

type streamMediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type streamMedia struct {
	Payload string `json:"payload"`
}

type streamMark struct {
	Name string `json:"name"`
}

func dialStream(url string) (*streamClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	client := &streamClient{
		conn:      conn,
		streamSid: "MZ" + uuid.NewString(),
		callSid:   "CA" + uuid.NewString(),
	}

	if err := client.send(streamMessage{Event: "connected", Protocol: "Call", Version: "1.0.0"}); err != nil {
		conn.Close()
		return nil, err
	}
	if err := client.send(streamMessage{
		Event:     "start",
		StreamSid: client.streamSid,
		Start: &streamStart{
			StreamSid: client.streamSid,
			CallSid:   client.callSid,
			Tracks:    []string{"inbound"},
			MediaFormat: streamMediaFormat{
				Encoding:   "audio/x-mulaw",
				SampleRate: 8000,
				Channels:   1,
			},
		},
	}); err != nil {
		conn.Close()
		return nil, err
	}

	return client, nil
}

func (c *streamClient) sendMedia(mulaw []byte) error {
	return c.send(streamMessage{
		Event:     "media",
		StreamSid: c.streamSid,
		Media:     &streamMedia{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	})
}

func (c *streamClient) echoMark(name string) error {
	return c.send(streamMessage{
		Event:     "mark",
		StreamSid: c.streamSid,
		Mark:      &streamMark{Name: name},
	})
}

func (c *streamClient) sendStop() error {
	return c.send(streamMessage{Event: "stop", StreamSid: c.streamSid, Stop: &struct{}{}})
}

func (c *streamClient) send(msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal stream message: %w", err)
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write stream message: %w", err)
	}
	return nil
}

type inboundHandlers struct {
	onMedia func(mulaw []byte)
	onMark  func(name string)
	onClear func()
	onError func(err error)
}

// readLoop dispatches server messages until the connection drops.
func (c *streamClient) readLoop(handlers inboundHandlers) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if handlers.onError != nil {
				handlers.onError(err)
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case "media":
			if msg.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				continue
			}
			if handlers.onMedia != nil {
				handlers.onMedia(payload)
			}
		case "mark":
			if msg.Mark != nil && handlers.onMark != nil {
				handlers.onMark(msg.Mark.Name)
			}
		case "clear":
			if handlers.onClear != nil {
				handlers.onClear()
			}
		}
	}
}

func (c *streamClient) close() error {
	return c.conn.Close()
}
