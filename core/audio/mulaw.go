package audio

// G.711 mu-law companding. The wire carries one mu-law byte per sample, the
// services consume 16-bit little-endian linear PCM.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawExponents = buildMulawExponents()

func buildMulawExponents() [256]byte {
	var lut [256]byte
	for i := 1; i < 256; i++ {
		exp := byte(0)
		for v := i; v > 1; v >>= 1 {
			exp++
		}
		lut[i] = exp
	}
	return lut
}

// EncodeMulawSample compresses one linear PCM sample to a mu-law byte.
func EncodeMulawSample(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := mulawExponents[(s>>7)&0xFF]
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMulawSample expands one mu-law byte to a linear PCM sample.
func DecodeMulawSample(b byte) int16 {
	u := ^b
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	magnitude := (int32(mantissa)<<3 + mulawBias) << exponent
	magnitude -= mulawBias
	if u&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// DecodeMulaw expands a mu-law payload into linear PCM samples, one sample
// per input byte.
func DecodeMulaw(wire []byte) []int16 {
	samples := make([]int16, len(wire))
	for i, b := range wire {
		samples[i] = DecodeMulawSample(b)
	}
	return samples
}

// EncodeMulaw compresses linear PCM samples into a mu-law payload, one byte
// per input sample.
func EncodeMulaw(samples []int16) []byte {
	wire := make([]byte, len(samples))
	for i, s := range samples {
		wire[i] = EncodeMulawSample(s)
	}
	return wire
}

// PCMToBytes serializes samples as 16-bit little-endian PCM.
func PCMToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToPCM parses 16-bit little-endian PCM. A trailing odd byte is dropped.
func BytesToPCM(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
