// Package twilio adapts Twilio Media Streams websocket connections into
// media sessions the voice pipeline can drive. One Session wraps one
// websocket connection for the lifetime of one call.
package twilio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samk-ai/voiceflow/core/audio"
	"github.com/samk-ai/voiceflow/core/telephony"
)

const defaultOutboundQueueSize = 512

type outboundKind int

const (
	outboundAudio outboundKind = iota
	outboundMark
)

type outboundItem struct {
	kind       outboundKind
	payload    []byte
	name       string
	generation uint64
}

// Session is one Media Streams connection. Reads happen on the goroutine
// that calls Run; writes are serialized through a single writer goroutine
// so outbound frames reach the wire in enqueue order.
type Session struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	callbacks sessionCallbacks

	mu    sync.Mutex
	state telephony.State
	info  telephony.StreamInfo

	outbound      chan outboundItem
	generation    uint64
	queueCapacity int

	markMu sync.Mutex
	marks  map[string]func(name string)

	loopbackAcks bool

	closeCh   chan struct{}
	closeOnce sync.Once
	stopOnce  sync.Once
	writerWg  sync.WaitGroup
}

func NewSession(conn *websocket.Conn, opts ...SessionOption) *Session {
	options := defaultSessionOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Session{
		conn:          conn,
		callbacks:     options.callbacks,
		state:         telephony.StateConnecting,
		outbound:      make(chan outboundItem, options.queueCapacity),
		queueCapacity: options.queueCapacity,
		marks:         map[string]func(string){},
		loopbackAcks:  options.loopbackAcks,
		closeCh:       make(chan struct{}),
	}
}

// Run consumes the connection until the remote stops the stream, the
// context is cancelled, or the socket fails. It always leaves the session
// closed.
func (s *Session) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "twilio.session.run")
	defer span.End()

	s.writerWg.Add(1)
	go s.processOutbound()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() == telephony.StateClosed || s.State() == telephony.StateClosing {
				return nil
			}
			span.RecordError(err)
			return fmt.Errorf("media stream read failed: %w", err)
		}

		msg, err := parseMessage(data)
		if err != nil {
			logger.WarnContext(ctx, "dropping malformed media stream message", "error", err)
			continue
		}

		switch msg.Event {
		case eventConnected:
			logger.DebugContext(ctx, "media stream connected",
				"protocol", msg.Protocol, "version", msg.Version)
		case eventStart:
			if err := s.handleStart(ctx, msg); err != nil {
				span.RecordError(err)
				return err
			}
		case eventMedia:
			s.handleMedia(ctx, msg)
		case eventMark:
			if msg.Mark != nil {
				s.confirmMark(msg.Mark.Name)
			}
		case eventStop:
			s.transition(telephony.StateClosing)
			s.notifyStopped()
			return nil
		default:
			logger.DebugContext(ctx, "ignoring media stream event", "event", msg.Event)
		}
	}
}

func (s *Session) handleStart(ctx context.Context, msg *message) error {
	if msg.Start == nil {
		return fmt.Errorf("start event without start payload")
	}
	encoding, err := msg.Start.MediaFormat.encodingInfo()
	if err != nil {
		return fmt.Errorf("unusable media format: %w", err)
	}

	s.mu.Lock()
	if s.state != telephony.StateConnecting {
		s.mu.Unlock()
		logger.WarnContext(ctx, "ignoring duplicate start event", "streamSid", msg.Start.StreamSid)
		return nil
	}
	s.state = telephony.StateActive
	s.info = telephony.StreamInfo{
		StreamSid: msg.Start.StreamSid,
		CallSid:   msg.Start.CallSid,
		Encoding:  encoding,
	}
	info := s.info
	s.mu.Unlock()

	logger.InfoContext(ctx, "media stream started",
		"streamSid", info.StreamSid, "callSid", info.CallSid,
		"encoding", string(info.Encoding.Format), "sampleRate", info.Encoding.SampleRate)

	if s.callbacks.StreamStarted != nil {
		s.callbacks.StreamStarted(info)
	}
	return nil
}

func (s *Session) handleMedia(ctx context.Context, msg *message) {
	if s.State() != telephony.StateActive {
		logger.WarnContext(ctx, "ignoring media before stream start")
		return
	}
	if msg.Media == nil {
		logger.WarnContext(ctx, "dropping media event without payload")
		return
	}
	payload, err := decodeMediaPayload(msg.Media.Payload)
	if err != nil {
		logger.WarnContext(ctx, "dropping undecodable media payload", "error", err)
		return
	}
	if s.callbacks.Media != nil {
		s.callbacks.Media(payload)
	}
}

// SendAudio appends one frame of wire-format audio to the ordered outbound
// queue. A full queue means the remote end stopped draining; the session is
// force-closed rather than letting backpressure stall the caller.
func (s *Session) SendAudio(payload []byte) error {
	return s.enqueue(outboundItem{
		kind:       outboundAudio,
		payload:    payload,
		generation: s.currentGeneration(),
	})
}

// SendMark enqueues a mark after all previously queued audio. The confirmed
// callback fires when the remote echoes the mark back, i.e. when everything
// queued before it has been played out.
func (s *Session) SendMark(name string, confirmed func(name string)) error {
	if confirmed != nil {
		s.markMu.Lock()
		s.marks[name] = confirmed
		s.markMu.Unlock()
	}
	err := s.enqueue(outboundItem{
		kind:       outboundMark,
		name:       name,
		generation: s.currentGeneration(),
	})
	if err != nil && confirmed != nil {
		s.markMu.Lock()
		delete(s.marks, name)
		s.markMu.Unlock()
	}
	return err
}

// Clear discards all queued-but-unsent audio and tells the remote end to
// drop anything it has buffered. Marks stay registered so late echoes are
// still confirmed.
func (s *Session) Clear() error {
	if s.State() == telephony.StateClosed {
		return telephony.ErrSessionClosed
	}

	s.mu.Lock()
	s.generation++
	streamSid := s.info.StreamSid
	s.mu.Unlock()

	data, err := encodeClearMessage(streamSid)
	if err != nil {
		return fmt.Errorf("failed to encode clear message: %w", err)
	}
	return s.write(data)
}

func (s *Session) enqueue(item outboundItem) error {
	if s.State() == telephony.StateClosed {
		return telephony.ErrSessionClosed
	}
	select {
	case s.outbound <- item:
		return nil
	default:
		logger.Warn("outbound queue overflow, closing session",
			"streamSid", s.Info().StreamSid, "capacity", s.queueCapacity)
		s.Close()
		return telephony.ErrOutboundOverflow
	}
}

func (s *Session) processOutbound() {
	defer s.writerWg.Done()

	// Simulated playback clock, used only when loopback acks are enabled:
	// marks are confirmed once the audio queued before them would have
	// finished playing at the wire sample rate.
	playhead := time.Now()

	for {
		select {
		case <-s.closeCh:
			return
		case item := <-s.outbound:
			if item.kind == outboundAudio && item.generation != s.currentGeneration() {
				continue
			}
			switch item.kind {
			case outboundAudio:
				data, err := encodeMediaMessage(s.Info().StreamSid, item.payload)
				if err != nil {
					logger.Error("failed to encode outbound media", "error", err)
					continue
				}
				if err := s.write(data); err != nil {
					s.Close()
					return
				}
				if now := time.Now(); playhead.Before(now) {
					playhead = now
				}
				playhead = playhead.Add(s.payloadDuration(item.payload))
			case outboundMark:
				data, err := encodeMarkMessage(s.Info().StreamSid, item.name)
				if err != nil {
					logger.Error("failed to encode outbound mark", "error", err)
					continue
				}
				if err := s.write(data); err != nil {
					s.Close()
					return
				}
				if s.loopbackAcks {
					name := item.name
					time.AfterFunc(time.Until(playhead), func() { s.confirmMark(name) })
				}
			}
		}
	}
}

func (s *Session) payloadDuration(payload []byte) time.Duration {
	encoding := s.Info().Encoding
	if encoding.SampleRate == 0 {
		return 0
	}
	samples := len(payload) / max(encoding.Format.ByteSize(), 1)
	return time.Duration(samples) * time.Second / time.Duration(encoding.SampleRate)
}

func (s *Session) write(data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("media stream write failed: %w", err)
	}
	return nil
}

func (s *Session) confirmMark(name string) {
	s.markMu.Lock()
	confirmed, ok := s.marks[name]
	delete(s.marks, name)
	s.markMu.Unlock()
	if ok && confirmed != nil {
		confirmed(name)
	}
}

func (s *Session) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// State reports the session lifecycle position.
func (s *Session) State() telephony.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info reports the negotiated stream descriptor. It is zero-valued until
// the start event arrives.
func (s *Session) Info() telephony.StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// WireEncoding reports the audio encoding negotiated for this stream,
// falling back to the Media Streams default before start.
func (s *Session) WireEncoding() audio.EncodingInfo {
	info := s.Info()
	if info.Encoding.SampleRate == 0 {
		return audio.EncodingInfo{
			SampleRate: audio.DefaultSampleRate,
			Format:     audio.EncodingMulaw,
		}
	}
	return info.Encoding
}

func (s *Session) transition(state telephony.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) notifyStopped() {
	s.stopOnce.Do(func() {
		if s.callbacks.StreamStopped != nil {
			s.callbacks.StreamStopped()
		}
	})
}

// Close tears the session down. It is safe to call multiple times and from
// any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.transition(telephony.StateClosed)
		close(s.closeCh)
		err = s.conn.Close()
		s.notifyStopped()
	})
	return err
}
