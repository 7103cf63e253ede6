package llms

import "time"

// Role tags who produced a turn in the conversation log.
type Role string

const (
	RoleCaller    Role = "caller"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange in the conversation: a transcript for the caller, a
// generated response for the assistant. Turns are appended to the session
// transcript and never mutated afterwards.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time

	// Cancelled marks an assistant turn whose response was cut short by a
	// barge-in; the content holds whatever was generated before the cut.
	Cancelled bool
	// Interruption, when set on a caller turn, classifies speech that
	// overlapped assistant playback.
	Interruption *Interruption
}

// Interruption records how caller speech cut an assistant turn short.
type Interruption struct {
	Kind       InterruptionKind
	Transcript string
}

type InterruptionKind string

const (
	// InterruptionKindBargeIn is caller speech that takes the floor.
	InterruptionKindBargeIn InterruptionKind = "barge-in"
	// InterruptionKindBackchannel is a short acknowledgement ("mm-hm") that
	// did not intend to take the floor.
	InterruptionKindBackchannel InterruptionKind = "backchannel"
)
