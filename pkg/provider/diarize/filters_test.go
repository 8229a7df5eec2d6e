package diarize_test

import (
	"testing"
	"time"

	"github.com/wagmirep/lahstats/pkg/provider/diarize"
)

func seg(label string, startMs, endMs int) diarize.Segment {
	return diarize.Segment{
		Label: label,
		Start: time.Duration(startMs) * time.Millisecond,
		End:   time.Duration(endMs) * time.Millisecond,
	}
}

func TestFilterShort(t *testing.T) {
	t.Parallel()

	segments := []diarize.Segment{
		seg("SPEAKER_00", 0, 300),
		seg("SPEAKER_00", 1000, 2000),
		seg("SPEAKER_01", 2000, 2500),
		seg("SPEAKER_01", 3000, 3499),
	}

	got := diarize.FilterShort(segments, diarize.DefaultMinSegment)
	if len(got) != 2 {
		t.Fatalf("kept %d segments, want 2: %v", len(got), got)
	}
	if got[0] != segments[1] || got[1] != segments[2] {
		t.Errorf("unexpected surviving segments: %v", got)
	}
}

func TestFilterShortDropsEverything(t *testing.T) {
	t.Parallel()

	// A single 0.3s segment with a 0.5s minimum leaves nothing.
	got := diarize.FilterShort([]diarize.Segment{seg("SPEAKER_00", 0, 300)}, diarize.DefaultMinSegment)
	if len(got) != 0 {
		t.Errorf("kept %d segments, want 0", len(got))
	}
}

func TestFilterOverlapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		segments  []diarize.Segment
		threshold float64
		wantKept  int
	}{
		{
			name: "disjoint segments all kept",
			segments: []diarize.Segment{
				seg("SPEAKER_00", 0, 1000),
				seg("SPEAKER_01", 1000, 2000),
			},
			threshold: 0.3,
			wantKept:  2,
		},
		{
			name: "heavy cross-speaker overlap dropped",
			segments: []diarize.Segment{
				seg("SPEAKER_00", 0, 1000),
				seg("SPEAKER_01", 100, 900), // 80% covered by SPEAKER_00
			},
			threshold: 0.3,
			wantKept:  0, // both overlap each other beyond 30%
		},
		{
			name: "mild overlap kept",
			segments: []diarize.Segment{
				seg("SPEAKER_00", 0, 1000),
				seg("SPEAKER_01", 900, 2000), // 10% of either duration
			},
			threshold: 0.3,
			wantKept:  2,
		},
		{
			name: "same-speaker overlap ignored",
			segments: []diarize.Segment{
				seg("SPEAKER_00", 0, 1000),
				seg("SPEAKER_00", 500, 1500),
			},
			threshold: 0.3,
			wantKept:  2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := diarize.FilterOverlapping(tc.segments, tc.threshold)
			if len(got) != tc.wantKept {
				t.Errorf("kept %d segments, want %d: %v", len(got), tc.wantKept, got)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	t.Parallel()

	segments := []diarize.Segment{
		seg("SPEAKER_01", 0, 1000),
		seg("SPEAKER_00", 1000, 2000),
		seg("SPEAKER_01", 2000, 3000),
	}
	got := diarize.Labels(segments)
	want := []string{"SPEAKER_01", "SPEAKER_00"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Labels = %v, want %v", got, want)
	}
}
