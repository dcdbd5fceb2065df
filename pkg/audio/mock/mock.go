// Package mock provides an in-memory implementation of [audio.Capture] for
// unit tests.
//
// The mock is safe for concurrent use. Tests push frames through
// [Capture.Emit] as if a device had produced them, and inspect the call
// counters afterwards.
//
// Typical usage:
//
//	c := &mock.Capture{}
//	_ = c.Start(func(f audio.RawFrame) { ... })
//	c.Emit(audio.RawFrame{SampleRate: 48000, Channels: 2, Format: audio.FormatInt16, Data: pcm})
package mock

import (
	"sync"

	"github.com/MrWong99/voiceflow/pkg/audio"
)

// Capture is a mock implementation of [audio.Capture].
type Capture struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start and the callback is not kept.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StartCalls counts calls to Start.
	StartCalls int

	// StopCalls counts calls to Stop.
	StopCalls int

	callback func(audio.RawFrame)
}

var _ audio.Capture = (*Capture)(nil)

// Start records the call and keeps callback for [Capture.Emit].
func (c *Capture) Start(callback func(audio.RawFrame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	if c.StartErr != nil {
		return c.StartErr
	}
	c.callback = callback
	return nil
}

// Stop records the call and drops the callback.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCalls++
	c.callback = nil
	return c.StopErr
}

// Emit delivers frame to the registered callback on the calling goroutine.
// It reports false when the capture is not started.
func (c *Capture) Emit(frame audio.RawFrame) bool {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(frame)
	return true
}

// Running reports whether Start succeeded and Stop has not been called since.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}
