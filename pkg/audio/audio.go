// Package audio provides the 16-bit PCM primitives shared by the processing
// pipeline: WAV encoding/decoding, format conversion to the canonical stream
// format, duration arithmetic, and time-range excerpt extraction.
//
// All PCM data is 16-bit signed little-endian. The canonical stream format
// produced by the assembler — and expected by the diarization and
// transcription providers — is 16 kHz mono ([Canonical]).
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the format every session stream is normalised to before
// diarization and transcription: 16 kHz mono.
var Canonical = Format{SampleRate: 16000, Channels: 1}

// bytesPerSample is fixed at 2 for 16-bit PCM.
const bytesPerSample = 2

// ErrInvalidRange is returned by [Excerpt] when the requested time range is
// empty, negative, or starts beyond the end of the stream.
var ErrInvalidRange = errors.New("audio: invalid time range")

// String returns a human-readable description such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Valid reports whether f has a positive sample rate and channel count.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// BytesPerSecond returns the number of PCM bytes per second of audio in f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bytesPerSample
}

// Duration returns the play time of pcm in format f. Returns 0 for an
// invalid format.
func Duration(pcm []byte, f Format) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(float64(len(pcm)) / float64(bps) * float64(time.Second))
}

// Excerpt returns the [start, end) slice of pcm in format f. end is clamped
// to the stream length; the returned slice aliases pcm. The offsets are
// aligned down to whole frames so channel interleaving is preserved.
func Excerpt(pcm []byte, f Format, start, end time.Duration) ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("audio: excerpt: invalid format %s", f)
	}
	if start < 0 || end <= start {
		return nil, ErrInvalidRange
	}

	frameBytes := f.Channels * bytesPerSample
	startByte := int(start.Seconds()*float64(f.BytesPerSecond())) / frameBytes * frameBytes
	endByte := int(end.Seconds()*float64(f.BytesPerSecond())) / frameBytes * frameBytes

	if startByte >= len(pcm) {
		return nil, fmt.Errorf("audio: excerpt start %s beyond stream end: %w", start, ErrInvalidRange)
	}
	if endByte > len(pcm) {
		endByte = len(pcm)
	}
	return pcm[startByte:endByte], nil
}
