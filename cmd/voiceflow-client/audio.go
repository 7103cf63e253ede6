package main

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/samk-ai/voiceflow/core/audio"
)

const (
	captureSampleRate = audio.DefaultSampleRate
	frameSamples      = 160 // 20 ms at 8 kHz
)

// playbackEncoding is the PCM format the speaker queue holds.
var playbackEncoding = audio.EncodingInfo{
	SampleRate: captureSampleRate,
	Format:     audio.EncodingLinear16,
}

type playbackMark struct {
	name     string
	position int
}

// audioIO owns the microphone and the speaker. The microphone produces
// 20 ms mu-law frames through onFrame; the speaker drains a PCM queue fed
// by queuePlayback, reporting marks through onMarkPlayed as playback
// passes them.
type audioIO struct {
	context  *malgo.AllocatedContext
	capture  *malgo.Device
	playback *malgo.Device

	onFrame      func(mulaw []byte)
	onMarkPlayed func(name string)

	captureMu      sync.Mutex
	captureResidue []byte

	playMu  sync.Mutex
	pending []byte
	marks   []playbackMark
}

func newAudioIO(onFrame func(mulaw []byte), onMarkPlayed func(name string)) (*audioIO, error) {
	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	a := &audioIO{
		context:      audioContext,
		onFrame:      onFrame,
		onMarkPlayed: onMarkPlayed,
	}

	if err := a.initCapture(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPlayback(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *audioIO) initCapture() error {
	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = captureSampleRate
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = frameSamples
	config.Periods = 3

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16)

	device, err := malgo.InitDevice(a.context.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			a.consumeCapture(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	a.capture = device
	return nil
}

// consumeCapture re-chunks whatever the device delivers into exact 20 ms
// frames before encoding, since period sizes are only a hint.
func (a *audioIO) consumeCapture(pcm []byte) {
	const frameBytes = frameSamples * 2

	a.captureMu.Lock()
	a.captureResidue = append(a.captureResidue, pcm...)
	frames := [][]byte{}
	for len(a.captureResidue) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, a.captureResidue[:frameBytes])
		a.captureResidue = a.captureResidue[frameBytes:]
		frames = append(frames, frame)
	}
	a.captureMu.Unlock()

	for _, frame := range frames {
		a.onFrame(audio.EncodeMulaw(audio.BytesToPCM(frame)))
	}
}

func (a *audioIO) initPlayback() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = captureSampleRate
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = captureSampleRate / 10
	config.Periods = 4

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16)

	device, err := malgo.InitDevice(a.context.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			a.fillPlayback(pOutput, int(frameCount)*bytesPerFrame)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	a.playback = device
	return nil
}

func (a *audioIO) fillPlayback(pOutput []byte, need int) {
	a.playMu.Lock()
	n := min(need, len(a.pending))
	copy(pOutput, a.pending[:n])
	a.pending = a.pending[n:]

	// The device does not guarantee a zeroed buffer; pad underruns with
	// silence in the playback format.
	silence := playbackEncoding.SilenceValue()
	for i := n; i < need && i < len(pOutput); i++ {
		pOutput[i] = silence
	}

	played := []string{}
	remaining := a.marks[:0]
	for _, mark := range a.marks {
		if mark.position <= n {
			played = append(played, mark.name)
		} else {
			mark.position -= n
			remaining = append(remaining, mark)
		}
	}
	a.marks = remaining
	a.playMu.Unlock()

	for _, name := range played {
		a.onMarkPlayed(name)
	}
}

// queuePlayback appends decoded audio to the speaker queue.
func (a *audioIO) queuePlayback(mulaw []byte) {
	pcm := audio.PCMToBytes(audio.DecodeMulaw(mulaw))
	a.playMu.Lock()
	a.pending = append(a.pending, pcm...)
	a.playMu.Unlock()
}

// addMark registers a mark behind everything queued so far.
func (a *audioIO) addMark(name string) {
	a.playMu.Lock()
	a.marks = append(a.marks, playbackMark{name: name, position: len(a.pending)})
	a.playMu.Unlock()
}

// clear drops queued playback and returns the marks that were pending, so
// the caller can echo them back the way the Twilio gateway does on clear.
func (a *audioIO) clear() []string {
	a.playMu.Lock()
	defer a.playMu.Unlock()

	flushed := make([]string, 0, len(a.marks))
	for _, mark := range a.marks {
		flushed = append(flushed, mark.name)
	}
	a.pending = nil
	a.marks = nil
	return flushed
}

func (a *audioIO) Start() error {
	if err := a.playback.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	if err := a.capture.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (a *audioIO) Close() {
	if a.capture != nil {
		a.capture.Uninit()
	}
	if a.playback != nil {
		a.playback.Uninit()
	}
	if a.context != nil {
		a.context.Uninit()
		a.context.Free()
	}
}
