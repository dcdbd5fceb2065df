package audio

import (
	"fmt"
	"time"
)

// TargetSampleRate is the canonical sample rate of every [NormalizedFrame].
const TargetSampleRate = 16000

// SampleFormat identifies the encoding of the samples in a [RawFrame].
type SampleFormat int

const (
	// FormatInt16 is signed 16-bit little-endian PCM.
	FormatInt16 SampleFormat = iota + 1

	// FormatInt32 is signed 32-bit little-endian PCM.
	FormatInt32

	// FormatFloat32 is IEEE-754 little-endian float32 PCM, nominally in [-1, 1].
	FormatFloat32
)

// String returns the human-readable name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case FormatInt16:
		return "int16"
	case FormatInt32:
		return "int32"
	case FormatFloat32:
		return "float32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// BytesPerSample returns the width of one sample in bytes, or 0 when the
// format is not supported.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatInt16:
		return 2
	case FormatInt32, FormatFloat32:
		return 4
	default:
		return 0
	}
}

// Layout describes how multi-channel samples are arranged in a [RawFrame].
type Layout int

const (
	// LayoutInterleaved stores one sample per channel for each frame in turn
	// (L R L R …).
	LayoutInterleaved Layout = iota

	// LayoutPlanar stores all samples of channel 0, then all samples of
	// channel 1, and so on.
	LayoutPlanar
)

// String returns the human-readable name of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutInterleaved:
		return "interleaved"
	case LayoutPlanar:
		return "planar"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// RawFrame is a chunk of audio as delivered by a [Capture] device, in
// whatever format the device produces.
type RawFrame struct {
	// SampleRate in Hz (e.g., 48000, 44100, 16000).
	SampleRate int

	// Channels is the number of interleaved or planar channels.
	Channels int

	// Format is the sample encoding of Data.
	Format SampleFormat

	// Layout is the channel arrangement of Data. Irrelevant for mono input.
	Layout Layout

	// Data holds the little-endian encoded samples.
	Data []byte
}

// NormalizedFrame is mono float32 audio at [TargetSampleRate].
type NormalizedFrame struct {
	// Sequence is assigned by the session that accepts the frame. Numbering
	// starts at zero for every new session and increases by one per frame.
	Sequence uint64

	// Samples are the mono samples. Integer sources are scaled into [-1, 1].
	Samples []float32
}

// Duration returns the playback length of the frame at [TargetSampleRate].
func (f NormalizedFrame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / TargetSampleRate
}
