package audio

// Resample converts samples between rates using linear interpolation. The
// ratio is fixed by the session's negotiated formats (8 kHz narrowband on
// the wire, 16 or 24 kHz on the service side), so a deterministic filter is
// enough; no windowed sinc is attempted.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	outLen := len(samples) * toRate / fromRate
	if outLen == 0 {
		return []int16{}
	}

	out := make([]int16, outLen)
	for i := range out {
		// Position of the output sample on the input timeline, in
		// fromRate fractions.
		pos := i * fromRate
		idx := pos / toRate
		frac := pos % toRate

		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}

		a := int32(samples[idx])
		b := int32(samples[idx+1])
		out[i] = int16(a + (b-a)*int32(frac)/int32(toRate))
	}
	return out
}
