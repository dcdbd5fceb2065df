package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedFormat is wrapped by [NormalizationError] when a frame uses a
// sample format the normalizer cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported sample format")

// NormalizationError reports a frame that could not be normalized. The frame
// is dropped; the stream it belongs to is not affected.
type NormalizationError struct {
	Format     SampleFormat
	SampleRate int
	Channels   int
	Err        error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("audio: normalize %s %dHz %dch: %v", e.Format, e.SampleRate, e.Channels, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

const (
	int16Scale = 32768.0
	int32Scale = 2147483648.0
)

// Normalizer converts [RawFrame] values to mono [NormalizedFrame] values at
// [TargetSampleRate].
//
// Multi-channel input is reduced by taking channel 0 only; channels are never
// averaged. Integer samples are divided by the magnitude of the format's
// minimum value (32768 for int16, 2147483648 for int32); float32 samples are
// passed through unchanged. Resampling uses linear interpolation between the
// two nearest source samples, with output length floor(n*target/source).
//
// Normalizer is stateless and safe for concurrent use. The zero value is
// ready to use.
type Normalizer struct{}

// Normalize converts frame. The returned frame's Sequence is zero; the
// session that accepts the frame assigns it. Empty input yields an empty
// frame and no error.
func (Normalizer) Normalize(frame RawFrame) (NormalizedFrame, error) {
	if len(frame.Data) == 0 {
		return NormalizedFrame{Samples: []float32{}}, nil
	}

	fail := func(err error) (NormalizedFrame, error) {
		return NormalizedFrame{}, &NormalizationError{
			Format:     frame.Format,
			SampleRate: frame.SampleRate,
			Channels:   frame.Channels,
			Err:        err,
		}
	}

	width := frame.Format.BytesPerSample()
	if width == 0 {
		return fail(ErrUnsupportedFormat)
	}
	if frame.SampleRate <= 0 {
		return fail(fmt.Errorf("invalid sample rate %d", frame.SampleRate))
	}
	if frame.Channels <= 0 {
		return fail(fmt.Errorf("invalid channel count %d", frame.Channels))
	}
	if len(frame.Data)%(width*frame.Channels) != 0 {
		return fail(fmt.Errorf("data length %d is not a multiple of %d bytes per frame", len(frame.Data), width*frame.Channels))
	}

	mono := firstChannel(frame.Data, frame.Format, frame.Channels, frame.Layout)
	return NormalizedFrame{Samples: Resample(mono, frame.SampleRate, TargetSampleRate)}, nil
}

// firstChannel decodes channel 0 of data into float32 samples. data must be
// aligned to whole frames.
func firstChannel(data []byte, format SampleFormat, channels int, layout Layout) []float32 {
	width := format.BytesPerSample()
	n := len(data) / (width * channels)
	out := make([]float32, n)

	// Planar data keeps channel 0 contiguous at the front.
	stride := width * channels
	if layout == LayoutPlanar {
		stride = width
	}
	for i := range n {
		off := i * stride
		out[i] = decodeSample(data[off:off+width], format)
	}
	return out
}

// decodeSample decodes one little-endian sample and scales integers into
// [-1, 1].
func decodeSample(b []byte, format SampleFormat) float32 {
	switch format {
	case FormatInt16:
		return float32(float64(int16(binary.LittleEndian.Uint16(b))) / int16Scale)
	case FormatInt32:
		return float32(float64(int32(binary.LittleEndian.Uint32(b))) / int32Scale)
	case FormatFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return 0
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. Output sample i is taken at source position
// i*srcRate/dstRate, interpolating between the two nearest source samples;
// the last source sample interpolates with itself. The output length is
// floor(len(samples)*dstRate/srcRate). When the rates are equal or either is
// non-positive the input is returned unchanged.
//
// This is not a band-limited resampler; it aliases when downsampling.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, dstLen)
	if dstLen == 0 {
		return out
	}

	ratio := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx > last {
			idx = last
		}
		frac := pos - float64(idx)

		s0 := float64(samples[idx])
		s1 := s0
		if idx+1 <= last {
			s1 = float64(samples[idx+1])
		}
		out[i] = float32(s0 + (s1-s0)*frac)
	}
	return out
}
