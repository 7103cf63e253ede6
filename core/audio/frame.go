package audio

// Direction tags which way a frame is flowing through a session.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Frame is one fixed-duration chunk of PCM samples. Frames are immutable
// once produced; within a session their sequence numbers increase strictly
// monotonically per direction.
type Frame struct {
	Sequence  uint64
	Direction Direction
	Samples   []int16
}
