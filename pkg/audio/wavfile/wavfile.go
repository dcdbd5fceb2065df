// Package wavfile provides an [audio.Capture] that plays back a WAV file as if
// it were a live input device. It is used by the voiceflow CLI and for
// end-to-end testing without audio hardware.
package wavfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/voiceflow/pkg/audio"
)

const (
	defaultFrameDuration = 20 * time.Millisecond

	// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
	wavFormatPCM = 1
)

// Option is a functional option for configuring a [Capture].
type Option func(*Capture)

// WithFrameDuration sets how much audio each delivered frame carries.
// Default: 20ms.
func WithFrameDuration(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.frameDuration = d
		}
	}
}

// WithRealtime paces delivery at playback speed when enabled. When disabled
// the file is delivered as fast as the callback returns. Default: true.
func WithRealtime(enabled bool) Option {
	return func(c *Capture) {
		c.realtime = enabled
	}
}

// WithOnEOF registers fn to be called once, from the capture goroutine, after
// the last frame of the file has been delivered.
func WithOnEOF(fn func()) Option {
	return func(c *Capture) {
		c.onEOF = fn
	}
}

// Capture implements [audio.Capture] by decoding a PCM WAV file.
type Capture struct {
	path          string
	frameDuration time.Duration
	realtime      bool
	onEOF         func()

	mu      sync.Mutex
	file    *os.File
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

var _ audio.Capture = (*Capture)(nil)

// New returns a Capture reading from path. The file is opened by Start.
func New(path string, opts ...Option) *Capture {
	c := &Capture{
		path:          path,
		frameDuration: defaultFrameDuration,
		realtime:      true,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens and validates the file and begins delivering frames to
// callback. It returns an *[audio.CaptureError] when the file is missing, is
// not a PCM WAV, or is already playing.
func (c *Capture) Start(callback func(audio.RawFrame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return &audio.CaptureError{Device: c.path, Err: errors.New("already started")}
	}

	f, err := os.Open(c.path)
	if err != nil {
		return &audio.CaptureError{Device: c.path, Err: errors.Join(audio.ErrDeviceUnavailable, err)}
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return &audio.CaptureError{Device: c.path, Err: errors.New("not a valid WAV file")}
	}
	dec.ReadInfo()
	if dec.WavAudioFormat != wavFormatPCM {
		f.Close()
		return &audio.CaptureError{Device: c.path, Err: fmt.Errorf("unsupported WAV format tag %d", dec.WavAudioFormat)}
	}
	format, err := sampleFormat(int(dec.BitDepth))
	if err != nil {
		f.Close()
		return &audio.CaptureError{Device: c.path, Err: err}
	}

	c.file = f
	c.done = make(chan struct{})
	c.running = true

	rate, channels := int(dec.SampleRate), int(dec.NumChans)
	perFrame := int(int64(rate)*int64(c.frameDuration)/int64(time.Second)) * channels
	if perFrame <= 0 {
		perFrame = channels
	}

	slog.Info("wav capture started",
		"path", c.path,
		"sample_rate", rate,
		"channels", channels,
		"bit_depth", dec.BitDepth,
	)

	c.wg.Add(1)
	go c.play(dec, callback, rate, channels, format, int(dec.BitDepth), perFrame, c.done)
	return nil
}

// Stop halts playback and closes the file. Safe to call more than once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	f := c.file
	c.file = nil
	c.mu.Unlock()

	c.wg.Wait()
	return f.Close()
}

// play decodes the file in frameDuration chunks and hands each to callback.
func (c *Capture) play(dec *wav.Decoder, callback func(audio.RawFrame), rate, channels int, format audio.SampleFormat, bitDepth, perFrame int, done <-chan struct{}) {
	defer c.wg.Done()

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:   make([]int, perFrame),
	}

	var ticker *time.Ticker
	if c.realtime {
		ticker = time.NewTicker(c.frameDuration)
		defer ticker.Stop()
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			// Keep whole frames only; a truncated tail frame is discarded.
			n -= n % channels
			callback(audio.RawFrame{
				SampleRate: rate,
				Channels:   channels,
				Format:     format,
				Layout:     audio.LayoutInterleaved,
				Data:       encode(buf.Data[:n], format, bitDepth),
			})
		}
		if n == 0 || err != nil {
			if err != nil && !errors.Is(err, io.EOF) {
				slog.Warn("wav capture: decode failed", "path", c.path, "err", err)
			}
			if c.onEOF != nil {
				c.onEOF()
			}
			return
		}

		if ticker != nil {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}
}

// sampleFormat maps a WAV bit depth to the frame format used to carry it.
// 8- and 16-bit audio travel as int16, 24- and 32-bit as int32.
func sampleFormat(bitDepth int) (audio.SampleFormat, error) {
	switch bitDepth {
	case 8, 16:
		return audio.FormatInt16, nil
	case 24, 32:
		return audio.FormatInt32, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
}

// encode packs decoded integer samples into little-endian bytes, shifting
// them to the full range of the carrying format.
func encode(samples []int, format audio.SampleFormat, bitDepth int) []byte {
	width := format.BytesPerSample()
	out := make([]byte, len(samples)*width)
	for i, s := range samples {
		switch bitDepth {
		case 8:
			// 8-bit WAV is unsigned with a 128 midpoint.
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((s-128)<<8)))
		case 16:
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
		case 24:
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(s<<8)))
		case 32:
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(s)))
		}
	}
	return out
}
