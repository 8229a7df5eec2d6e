// Package pipeline turns a session's uploaded audio chunks into per-speaker
// word counts and representative samples.
//
// The pipeline runs in stages: assemble the canonical stream, diarize it,
// resolve each speaker segment to corrected text (reusing cached per-chunk
// transcripts where one fully covers the segment), and persist one speaker
// row per diarized label. All persistence is idempotent so a retried job can
// safely redo work a previous attempt already completed.
package pipeline

import (
	"context"
	"time"

	"github.com/wagmirep/lahstats/internal/store"
	"github.com/wagmirep/lahstats/pkg/audio"
	"github.com/wagmirep/lahstats/pkg/blob"
)

// ChunkSpan locates one uploaded chunk within the assembled stream.
type ChunkSpan struct {
	Sequence int
	Start    time.Duration
	End      time.Duration
}

// Covers reports whether the span fully contains [start, end].
func (cs ChunkSpan) Covers(start, end time.Duration) bool {
	return start >= cs.Start && end <= cs.End
}

// assembly is the output of assemble: the canonical PCM stream plus the time
// span each chunk occupies within it.
type assembly struct {
	pcm   []byte
	total time.Duration
	spans []ChunkSpan
}

// assemble downloads a session's chunks in sequence order, decodes each to
// the canonical format and concatenates them. Gaps, duplicates, missing blobs
// and undecodable audio are all session-fatal.
func assemble(ctx context.Context, blobs blob.Store, chunks []store.Chunk, sessionID string) (*assembly, error) {
	if len(chunks) == 0 {
		return nil, fatalf("no audio chunks uploaded for session %s", sessionID)
	}

	var out assembly
	var offset time.Duration
	for i, c := range chunks {
		if c.Sequence != i {
			return nil, fatalf("chunk sequence broken: expected %d, got %d", i, c.Sequence)
		}
		data, err := blobs.Get(ctx, c.BlobRef)
		if err != nil {
			return nil, fatalf("fetch chunk %d (%s): %v", c.Sequence, c.BlobRef, err)
		}
		pcm, format, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, fatalf("decode chunk %d: %v", c.Sequence, err)
		}
		canonical := audio.ToCanonical(pcm, format)
		d := audio.Duration(canonical, audio.Canonical)
		out.spans = append(out.spans, ChunkSpan{Sequence: c.Sequence, Start: offset, End: offset + d})
		out.pcm = append(out.pcm, canonical...)
		offset += d
	}
	out.total = offset
	if len(out.pcm) == 0 {
		return nil, fatalf("session %s has only empty audio chunks", sessionID)
	}
	return &out, nil
}

// spanFor returns the chunk span that fully covers [start, end], or false
// when no single chunk does.
func spanFor(spans []ChunkSpan, start, end time.Duration) (ChunkSpan, bool) {
	for _, cs := range spans {
		if cs.Covers(start, end) {
			return cs, true
		}
	}
	return ChunkSpan{}, false
}
