// Package diarize defines the Provider interface for speaker diarization
// backends and the post-filters applied to their output.
//
// A diarization provider takes a canonical-format WAV recording and returns
// time-stamped spans labelled by anonymous speaker identity ("SPEAKER_00",
// "SPEAKER_01", …). The labels carry no meaning beyond distinguishing
// speakers within one recording.
//
// Implementations must be safe for concurrent use; one provider instance is
// shared by every job a worker process runs.
package diarize

import (
	"context"
	"sort"
	"time"
)

// Segment is a single diarized span.
type Segment struct {
	// Label is the anonymous speaker identity assigned by the backend.
	Label string

	// Start and End position the span within the canonical stream.
	Start time.Duration
	End   time.Duration
}

// Duration returns the length of the span.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Provider is the abstraction over any diarization backend.
type Provider interface {
	// Diarize segments the given canonical-format WAV recording by speaker.
	// The returned segments are sorted by start time. Backend failures are
	// retryable at the job level; implementations must bound the call with
	// a timeout so a hung backend surfaces as an error.
	Diarize(ctx context.Context, wav []byte) ([]Segment, error)
}

// DefaultMinSegment is the duration below which a segment is treated as
// noise and dropped.
const DefaultMinSegment = 500 * time.Millisecond

// DefaultOverlapThreshold is the fractional overlap with another speaker
// above which a segment is dropped to avoid double-counting.
const DefaultOverlapThreshold = 0.3

// FilterShort returns the segments whose duration is at least min. Segment
// order is preserved.
func FilterShort(segments []Segment, min time.Duration) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Duration() >= min {
			out = append(out, s)
		}
	}
	return out
}

// FilterOverlapping drops segments whose time overlap with any other
// speaker's segment exceeds threshold as a fraction of their own duration.
// Overlapping speech transcribes poorly and would attribute the same words
// to several speakers. The result is sorted by start time.
func FilterOverlapping(segments []Segment, threshold float64) []Segment {
	if len(segments) == 0 {
		return []Segment{}
	}

	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Segment, 0, len(sorted))
	for i, seg := range sorted {
		if seg.Duration() <= 0 {
			continue
		}
		overlapping := false
		for j, other := range sorted {
			if i == j || other.Label == seg.Label {
				continue
			}
			start := max(seg.Start, other.Start)
			end := min(seg.End, other.End)
			if start >= end {
				continue
			}
			ratio := float64(end-start) / float64(seg.Duration())
			if ratio > threshold {
				overlapping = true
				break
			}
		}
		if !overlapping {
			out = append(out, seg)
		}
	}
	return out
}

// Labels returns the distinct speaker labels in segments, in order of first
// appearance.
func Labels(segments []Segment) []string {
	seen := make(map[string]struct{}, 4)
	var labels []string
	for _, s := range segments {
		if _, ok := seen[s.Label]; ok {
			continue
		}
		seen[s.Label] = struct{}{}
		labels = append(labels, s.Label)
	}
	return labels
}
