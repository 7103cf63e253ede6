// Package telephony holds the transport-agnostic pieces of the media
// streaming boundary: session lifecycle states and the negotiated stream
// descriptor. Protocol-specific adapters live in sub-packages.
package telephony

import (
	"errors"

	"github.com/samk-ai/voiceflow/core/audio"
)

// State is the lifecycle position of one media session. Transitions only
// move forward: connecting → active → closing → closed.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// StreamInfo describes one negotiated media stream.
type StreamInfo struct {
	StreamSid string
	CallSid   string
	Encoding  audio.EncodingInfo
}

var (
	// ErrSessionClosed is returned by writes against a torn-down session.
	ErrSessionClosed = errors.New("telephony session closed")
	// ErrOutboundOverflow is returned when the ordered outbound queue is
	// full, indicating a stalled remote end; the session sheds load by
	// force-closing.
	ErrOutboundOverflow = errors.New("outbound queue overflow")
)
