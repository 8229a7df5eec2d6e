package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/wagmirep/lahstats/internal/lexicon"
	"github.com/wagmirep/lahstats/internal/observe"
	"github.com/wagmirep/lahstats/internal/store"
	"github.com/wagmirep/lahstats/pkg/audio"
	"github.com/wagmirep/lahstats/pkg/blob"
	"github.com/wagmirep/lahstats/pkg/provider/diarize"
	"github.com/wagmirep/lahstats/pkg/provider/transcribe"
)

// DefaultSampleDuration is the fixed length of the representative audio
// excerpt stored per speaker.
const DefaultSampleDuration = 5 * time.Second

// Progress boundaries per stage, as 0-100 percentages.
const (
	progressAssembled   = 10
	progressDiarized    = 40
	progressTranscribed = 85
	progressSaved       = 95
	progressDone        = 100
)

// Store is the persistence surface the processor needs. *store.Store
// satisfies this interface.
type Store interface {
	ListChunks(ctx context.Context, sessionID string) ([]store.Chunk, error)
	ChunkTranscripts(ctx context.Context, sessionID string) (map[int]*store.ChunkTranscript, error)
	UpsertSpeaker(ctx context.Context, sp *store.Speaker) error
	SetProgress(ctx context.Context, sessionID string, progress int) error
	SetDuration(ctx context.Context, sessionID string, d time.Duration) error
}

// Processor runs the full processing pipeline for one session.
type Processor struct {
	store       Store
	blobs       blob.Store
	diarizer    diarize.Provider
	transcriber transcribe.Provider
	engine      *lexicon.Engine
	metrics     *observe.Metrics

	minSegment       time.Duration
	overlapThreshold float64
	sampleDuration   time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithMinSegment overrides the minimum segment duration kept after
// diarization.
func WithMinSegment(d time.Duration) Option {
	return func(p *Processor) { p.minSegment = d }
}

// WithOverlapThreshold overrides the fractional cross-speaker overlap above
// which a segment is dropped. A value <= 0 disables the overlap filter.
func WithOverlapThreshold(t float64) Option {
	return func(p *Processor) { p.overlapThreshold = t }
}

// WithSampleDuration overrides the representative excerpt length.
func WithSampleDuration(d time.Duration) Option {
	return func(p *Processor) { p.sampleDuration = d }
}

// WithMetrics replaces the metrics instance, primarily for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a Processor.
func New(st Store, blobs blob.Store, d diarize.Provider, t transcribe.Provider, engine *lexicon.Engine, opts ...Option) *Processor {
	p := &Processor{
		store:            st,
		blobs:            blobs,
		diarizer:         d,
		transcriber:      t,
		engine:           engine,
		metrics:          observe.DefaultMetrics(),
		minSegment:       diarize.DefaultMinSegment,
		overlapThreshold: diarize.DefaultOverlapThreshold,
		sampleDuration:   DefaultSampleDuration,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// speakerAccum is the running total for one diarized label.
type speakerAccum struct {
	label        string
	counts       map[string]int
	segmentCount int
	duration     time.Duration
	longest      diarize.Segment
}

// Process runs the pipeline for sessionID. Errors wrapped in FatalError must
// not be retried; everything else is considered transient.
func (p *Processor) Process(ctx context.Context, sessionID string) error {
	started := time.Now()
	stageStart := started

	// Stage 1: assemble the canonical stream.
	if err := p.store.SetProgress(ctx, sessionID, 0); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	chunks, err := p.store.ListChunks(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	asm, err := assemble(ctx, p.blobs, chunks, sessionID)
	if err != nil {
		return err
	}
	if err := p.store.SetDuration(ctx, sessionID, asm.total); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := p.blobs.Put(ctx, blob.StreamRef(sessionID), audio.EncodeWAV(asm.pcm, audio.Canonical)); err != nil {
		return fmt.Errorf("pipeline: store assembled stream: %w", err)
	}
	if err := p.store.SetProgress(ctx, sessionID, progressAssembled); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	p.metrics.RecordStage(ctx, "assemble", time.Since(stageStart))
	stageStart = time.Now()
	slog.Info("assembled session audio",
		"session", sessionID, "chunks", len(chunks), "duration", asm.total)

	// Stage 2: diarize.
	segments, err := p.diarizer.Diarize(ctx, audio.EncodeWAV(asm.pcm, audio.Canonical))
	if err != nil {
		return fmt.Errorf("pipeline: diarize: %w", err)
	}
	segments = diarize.FilterShort(segments, p.minSegment)
	if p.overlapThreshold > 0 {
		segments = diarize.FilterOverlapping(segments, p.overlapThreshold)
	}
	if err := p.store.SetProgress(ctx, sessionID, progressDiarized); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	p.metrics.RecordStage(ctx, "diarize", time.Since(stageStart))
	stageStart = time.Now()
	slog.Info("diarized session audio",
		"session", sessionID, "segments", len(segments), "speakers", len(diarize.Labels(segments)))

	// Stage 3: resolve each segment to word counts, cache-first.
	cache, err := p.store.ChunkTranscripts(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	accums := make(map[string]*speakerAccum)
	cacheHits := 0
	for i, seg := range segments {
		counts, hit, err := p.resolveSegment(ctx, asm, cache, seg)
		if err != nil {
			return err
		}
		p.metrics.RecordCacheLookup(ctx, hit)
		if hit {
			cacheHits++
		}
		acc := accums[seg.Label]
		if acc == nil {
			acc = &speakerAccum{label: seg.Label, counts: make(map[string]int)}
			accums[seg.Label] = acc
		}
		for w, c := range counts {
			acc.counts[w] += c
		}
		acc.segmentCount++
		acc.duration += seg.Duration()
		if seg.Duration() > acc.longest.Duration() {
			acc.longest = seg
		}

		progress := progressDiarized + (i+1)*(progressTranscribed-progressDiarized)/len(segments)
		if err := p.store.SetProgress(ctx, sessionID, progress); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	p.metrics.RecordStage(ctx, "transcribe", time.Since(stageStart))
	stageStart = time.Now()
	slog.Info("transcribed segments",
		"session", sessionID, "segments", len(segments), "cache_hits", cacheHits)

	// Stage 4: persist one speaker per label. Upsert on label keeps a retried
	// attempt from duplicating rows.
	labels := make([]string, 0, len(accums))
	for label := range accums {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		acc := accums[label]
		sp := &store.Speaker{
			SessionID:    sessionID,
			Label:        label,
			WordCounts:   acc.counts,
			SegmentCount: acc.segmentCount,
			Duration:     acc.duration,
		}
		if err := p.store.UpsertSpeaker(ctx, sp); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	if err := p.store.SetProgress(ctx, sessionID, progressSaved); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	p.metrics.RecordStage(ctx, "save", time.Since(stageStart))
	stageStart = time.Now()

	// Stage 5: store a representative excerpt per speaker and attach its
	// reference.
	for _, label := range labels {
		acc := accums[label]
		ref, err := p.writeSample(ctx, sessionID, asm, acc.longest)
		if err != nil {
			return err
		}
		sp := &store.Speaker{
			SessionID:    sessionID,
			Label:        label,
			WordCounts:   acc.counts,
			SegmentCount: acc.segmentCount,
			Duration:     acc.duration,
			SampleRef:    ref,
		}
		if err := p.store.UpsertSpeaker(ctx, sp); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	if err := p.store.SetProgress(ctx, sessionID, progressDone); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	p.metrics.RecordStage(ctx, "sample", time.Since(stageStart))
	slog.Info("pipeline finished",
		"session", sessionID, "speakers", len(labels), "elapsed", time.Since(started))
	return nil
}

// resolveSegment returns the word counts for one segment, reusing a cached
// chunk transcript when a single chunk fully covers the segment's time range.
// The second return value reports a cache hit.
func (p *Processor) resolveSegment(ctx context.Context, asm *assembly, cache map[int]*store.ChunkTranscript, seg diarize.Segment) (map[string]int, bool, error) {
	if cs, ok := spanFor(asm.spans, seg.Start, seg.End); ok {
		if ct := cache[cs.Sequence]; ct != nil {
			return ct.WordCounts, true, nil
		}
	}

	excerpt, err := audio.Excerpt(asm.pcm, audio.Canonical, seg.Start, seg.End)
	if err != nil {
		return nil, false, fatalf("extract segment %s [%s, %s]: %v", seg.Label, seg.Start, seg.End, err)
	}
	text, err := p.transcriber.Transcribe(ctx, audio.EncodeWAV(excerpt, audio.Canonical))
	if err != nil {
		return nil, false, fmt.Errorf("pipeline: transcribe segment: %w", err)
	}
	_, counts := p.engine.Process(text)
	return counts, false, nil
}

// writeSample stores a fixed-length excerpt from the speaker's longest
// segment and returns its blob reference.
func (p *Processor) writeSample(ctx context.Context, sessionID string, asm *assembly, longest diarize.Segment) (string, error) {
	start := longest.Start
	end := longest.End
	if end-start > p.sampleDuration {
		end = start + p.sampleDuration
	}
	sample, err := audio.Excerpt(asm.pcm, audio.Canonical, start, end)
	if err != nil {
		return "", fatalf("extract sample for %s: %v", longest.Label, err)
	}
	ref := blob.SampleRef(sessionID, longest.Label)
	if err := p.blobs.Put(ctx, ref, audio.EncodeWAV(sample, audio.Canonical)); err != nil {
		return "", fmt.Errorf("pipeline: store sample: %w", err)
	}
	return ref, nil
}
