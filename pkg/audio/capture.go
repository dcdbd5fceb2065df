// Package audio defines the capture contract and the format normalizer that
// turns device audio into the canonical stream sent to the transcription
// service.
//
// The two primary abstractions are:
//
//   - [Capture]: a device (or file) that delivers [RawFrame] values through a
//     callback on its own goroutine.
//   - [Normalizer]: a pure converter from any supported [RawFrame] into a
//     mono 16 kHz float32 [NormalizedFrame].
//
// Capture adapters live in sub-packages (audio/wavfile, audio/mock). This
// package lives under pkg/ because external code is expected to implement
// [Capture] for real input devices.
package audio

import (
	"errors"
	"fmt"
)

// ErrDeviceUnavailable is wrapped by [CaptureError] when the requested input
// device does not exist or cannot be opened.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// Capture is an audio input source.
//
// Start begins delivering frames to callback from a goroutine owned by the
// implementation. The callback must return quickly; it runs on the capture
// path. Start returns a *[CaptureError] when the device cannot be started.
// Stop halts delivery; after Stop returns no further callbacks are made.
// Implementations do not retry failed starts.
type Capture interface {
	Start(callback func(RawFrame)) error
	Stop() error
}

// CaptureError reports a failure to open or start an input device.
type CaptureError struct {
	// Device names the input device or file.
	Device string

	// Err is the underlying cause.
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("audio: capture %q: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
