package twilio

import "github.com/samk-ai/voiceflow/core/telephony"

type sessionCallbacks struct {
	// StreamStarted fires once when the start event arrives and the media
	// format has been negotiated.
	StreamStarted func(info telephony.StreamInfo)
	// Media fires for every decoded inbound audio payload, in arrival
	// order, on the session's read goroutine.
	Media func(payload []byte)
	// StreamStopped fires exactly once when the stream ends, whether by a
	// stop event, a socket failure, or Close.
	StreamStopped func()
}

type sessionOptions struct {
	callbacks     sessionCallbacks
	queueCapacity int
	loopbackAcks  bool
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{queueCapacity: defaultOutboundQueueSize}
}

type SessionOption func(*sessionOptions)

func WithStreamStartedCallback(callback func(info telephony.StreamInfo)) SessionOption {
	return func(o *sessionOptions) { o.callbacks.StreamStarted = callback }
}

func WithMediaCallback(callback func(payload []byte)) SessionOption {
	return func(o *sessionOptions) { o.callbacks.Media = callback }
}

func WithStreamStoppedCallback(callback func()) SessionOption {
	return func(o *sessionOptions) { o.callbacks.StreamStopped = callback }
}

// WithOutboundQueueSize bounds the ordered outbound queue. A session whose
// queue fills up is force-closed instead of blocking its producers.
func WithOutboundQueueSize(size int) SessionOption {
	return func(o *sessionOptions) {
		if size > 0 {
			o.queueCapacity = size
		}
	}
}

// WithLoopbackAcks makes the session confirm its own marks on a simulated
// playback clock. Intended for local test clients that do not echo marks
// the way the Twilio media gateway does.
func WithLoopbackAcks() SessionOption {
	return func(o *sessionOptions) { o.loopbackAcks = true }
}
