package audio

const (
	// DefaultSampleRate is the narrowband telephony rate used by Media Streams.
	DefaultSampleRate = 8000
	DefaultFormat     = "mulaw"

	// ServiceSampleRate is the wideband rate speech services prefer.
	ServiceSampleRate = 16000
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

// GetServiceEncodingInfo returns the linear PCM format used on the service
// side of the codec.
func GetServiceEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: ServiceSampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// ParseEncoding maps a Media Streams mediaFormat encoding name to an
// encodingFormat. Twilio reports mu-law as "audio/x-mulaw".
func ParseEncoding(name string) (encodingFormat, bool) {
	switch name {
	case "audio/x-mulaw", "mulaw":
		return EncodingMulaw, true
	case "audio/x-alaw", "alaw":
		return EncodingALaw, true
	case "audio/x-l16", "linear16":
		return EncodingLinear16, true
	}
	return encodingFormat(""), false
}
