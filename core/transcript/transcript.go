package transcript

import (
	"time"

	"github.com/jinzhu/copier"
	"github.com/samk-ai/voiceflow/core/llms"
)

// Log is the append-only conversation transcript for one session. Turns are
// appended, never mutated or deleted; windowing only affects what Context
// returns, not what is stored.
//
// The log is mutated only from the session-owning goroutine, so it carries
// no lock. Snapshot and Context return deep copies and may be handed to
// other goroutines.
type Log struct {
	preamble string
	turns    []llms.Turn

	// contextBudget bounds how many turns Context returns; oldest turns are
	// dropped first, the preamble always survives. Zero means no windowing.
	contextBudget int
}

func NewLog(preamble string, opts ...LogOption) *Log {
	l := &Log{preamble: preamble}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type LogOption func(*Log)

// WithContextBudget bounds the number of turns included in model context.
func WithContextBudget(turns int) LogOption {
	return func(l *Log) { l.contextBudget = turns }
}

// Append adds one turn to the transcript. The timestamp is filled in if the
// caller left it zero.
func (l *Log) Append(turn llms.Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	l.turns = append(l.turns, turn)
}

// AppendCaller appends a caller turn with the given transcript text.
func (l *Log) AppendCaller(content string) {
	l.Append(llms.Turn{Role: llms.RoleCaller, Content: content})
}

// AppendAssistant appends an assistant turn with the generated response.
func (l *Log) AppendAssistant(content string) {
	l.Append(llms.Turn{Role: llms.RoleAssistant, Content: content})
}

func (l *Log) Preamble() string { return l.preamble }

func (l *Log) Len() int { return len(l.turns) }

// Context returns the windowed transcript to use as model context, deep
// copied so the caller may hold it across turn boundaries.
func (l *Log) Context() []llms.Turn {
	turns := l.turns
	if l.contextBudget > 0 && len(turns) > l.contextBudget {
		turns = turns[len(turns)-l.contextBudget:]
	}

	var out []llms.Turn
	if err := copier.CopyWithOption(&out, turns, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on type mismatches, which cannot happen between
		// identical slice types; fall back to a shallow copy regardless.
		out = make([]llms.Turn, len(turns))
		copy(out, turns)
	}
	return out
}

// Snapshot returns a deep copy of the entire transcript.
func (l *Log) Snapshot() []llms.Turn {
	var out []llms.Turn
	if err := copier.CopyWithOption(&out, l.turns, copier.Option{DeepCopy: true}); err != nil {
		out = make([]llms.Turn, len(l.turns))
		copy(out, l.turns)
	}
	return out
}

// Values iterates the stored turns from earliest to latest.
func (l *Log) Values(yield func(llms.Turn) bool) {
	for _, turn := range l.turns {
		if !yield(turn) {
			return
		}
	}
}
