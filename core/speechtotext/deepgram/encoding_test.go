package deepgram

import (
	"testing"

	"github.com/samk-ai/voiceflow/core/audio"
)

func TestConvertEncoding(t *testing.T) {
	converted, err := convertEncoding(audio.GetServiceEncodingInfo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if converted.Format != encodingLinear16 || converted.SampleRate != 16000 {
		t.Fatalf("unexpected conversion: %+v", converted)
	}

	converted, err = convertEncoding(audio.GetDefaultEncodingInfo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if converted.Format != encodingMulaw || converted.SampleRate != 8000 {
		t.Fatalf("unexpected conversion: %+v", converted)
	}
}

func TestConvertEncodingRejectsWidebandMulaw(t *testing.T) {
	_, err := convertEncoding(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw})
	if err == nil {
		t.Fatalf("expected error for wideband mulaw")
	}

	_, err = convertEncoding(audio.EncodingInfo{SampleRate: 11025, Format: audio.EncodingLinear16})
	if err == nil {
		t.Fatalf("expected error for unsupported sample rate")
	}
}
