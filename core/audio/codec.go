package audio

import "fmt"

// Codec converts between the session's wire format and the linear PCM the
// speech services consume. It is stateless beyond the two formats fixed at
// session start, so one Codec may be shared by both directions.
type Codec struct {
	wire    EncodingInfo
	service EncodingInfo
}

func NewCodec(wire, service EncodingInfo) (*Codec, error) {
	switch wire.Format {
	case EncodingMulaw, EncodingLinear16:
	default:
		return nil, fmt.Errorf("unsupported wire encoding: %q", wire.Format.Name())
	}
	if service.Format != EncodingLinear16 {
		return nil, fmt.Errorf("unsupported service encoding: %q", service.Format.Name())
	}

	return &Codec{wire: wire, service: service}, nil
}

func (c *Codec) WireEncoding() EncodingInfo    { return c.wire }
func (c *Codec) ServiceEncoding() EncodingInfo { return c.service }

// Decode expands wire bytes into PCM samples at the service rate.
func (c *Codec) Decode(wire []byte) []int16 {
	var samples []int16
	switch c.wire.Format {
	case EncodingMulaw:
		samples = DecodeMulaw(wire)
	default:
		samples = BytesToPCM(wire)
	}

	return Resample(samples, c.wire.SampleRate, c.service.SampleRate)
}

// Encode compresses PCM samples at the service rate into wire bytes.
func (c *Codec) Encode(samples []int16) []byte {
	samples = Resample(samples, c.service.SampleRate, c.wire.SampleRate)
	switch c.wire.Format {
	case EncodingMulaw:
		return EncodeMulaw(samples)
	default:
		return PCMToBytes(samples)
	}
}

// EncodeAtWireRate compresses PCM that is already at the wire rate, skipping
// the resampling step. Used when a synthesis service is asked for narrowband
// output directly.
func (c *Codec) EncodeAtWireRate(samples []int16) []byte {
	switch c.wire.Format {
	case EncodingMulaw:
		return EncodeMulaw(samples)
	default:
		return PCMToBytes(samples)
	}
}
