package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wagmirep/lahstats/internal/lexicon"
	"github.com/wagmirep/lahstats/internal/pipeline"
	"github.com/wagmirep/lahstats/internal/store"
	"github.com/wagmirep/lahstats/pkg/audio"
	"github.com/wagmirep/lahstats/pkg/blob"
	"github.com/wagmirep/lahstats/pkg/blob/memblob"
	"github.com/wagmirep/lahstats/pkg/provider/diarize"
	diarizemock "github.com/wagmirep/lahstats/pkg/provider/diarize/mock"
	transcribemock "github.com/wagmirep/lahstats/pkg/provider/transcribe/mock"
)

// fakeStore implements pipeline.Store in memory.
type fakeStore struct {
	mu          sync.Mutex
	chunks      []store.Chunk
	transcripts map[int]*store.ChunkTranscript
	speakers    map[string]*store.Speaker
	progress    []int
	duration    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transcripts: make(map[int]*store.ChunkTranscript),
		speakers:    make(map[string]*store.Speaker),
	}
}

func (f *fakeStore) ListChunks(ctx context.Context, sessionID string) ([]store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Chunk(nil), f.chunks...), nil
}

func (f *fakeStore) ChunkTranscripts(ctx context.Context, sessionID string) (map[int]*store.ChunkTranscript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]*store.ChunkTranscript, len(f.transcripts))
	for k, v := range f.transcripts {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) UpsertSpeaker(ctx context.Context, sp *store.Speaker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sp
	f.speakers[sp.Label] = &cp
	return nil
}

func (f *fakeStore) SetProgress(ctx context.Context, sessionID string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	return nil
}

func (f *fakeStore) SetDuration(ctx context.Context, sessionID string, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duration = d
	return nil
}

// oneSecond returns one second of canonical PCM.
func oneSecond() []byte {
	return make([]byte, audio.Canonical.BytesPerSecond())
}

// addChunk encodes pcm as WAV, stores it in blobs and registers the chunk row.
func addChunk(t *testing.T, f *fakeStore, blobs blob.Store, sessionID string, seq int, pcm []byte) {
	t.Helper()
	ref := blob.ChunkRef(sessionID, seq)
	if err := blobs.Put(context.Background(), ref, audio.EncodeWAV(pcm, audio.Canonical)); err != nil {
		t.Fatalf("put chunk %d: %v", seq, err)
	}
	f.chunks = append(f.chunks, store.Chunk{
		SessionID: sessionID,
		Sequence:  seq,
		BlobRef:   ref,
		Duration:  audio.Duration(pcm, audio.Canonical),
	})
}

func TestProcessEndToEnd(t *testing.T) {
	t.Parallel()

	const sessionID = "sess-1"
	f := newFakeStore()
	blobs := memblob.New()
	addChunk(t, f, blobs, sessionID, 0, oneSecond())
	addChunk(t, f, blobs, sessionID, 1, oneSecond())

	// Chunk 0 already has a cached transcript, so the segment inside it must
	// not hit the transcriber.
	f.transcripts[0] = &store.ChunkTranscript{
		SessionID:     sessionID,
		Sequence:      0,
		RawText:       "while up damn loud",
		CorrectedText: "walao damn loud",
		WordCounts:    map[string]int{"walao": 2},
	}

	d := &diarizemock.Provider{Segments: []diarize.Segment{
		{Label: "SPEAKER_00", Start: 0, End: 800 * time.Millisecond},
		{Label: "SPEAKER_01", Start: 1200 * time.Millisecond, End: 1900 * time.Millisecond},
	}}
	tr := &transcribemock.Provider{Text: "while up this one can lah"}

	p := pipeline.New(f, blobs, d, tr, lexicon.Default())
	if err := p.Process(context.Background(), sessionID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(f.speakers) != 2 {
		t.Fatalf("speakers = %d, want 2", len(f.speakers))
	}

	s0 := f.speakers["SPEAKER_00"]
	if s0.WordCounts["walao"] != 2 {
		t.Errorf("SPEAKER_00 walao = %d, want 2 from cache", s0.WordCounts["walao"])
	}
	if s0.SegmentCount != 1 {
		t.Errorf("SPEAKER_00 segments = %d, want 1", s0.SegmentCount)
	}
	if s0.Duration != 800*time.Millisecond {
		t.Errorf("SPEAKER_00 duration = %v, want 800ms", s0.Duration)
	}

	s1 := f.speakers["SPEAKER_01"]
	want := map[string]int{"walao": 1, "can": 1, "lah": 1}
	for w, c := range want {
		if s1.WordCounts[w] != c {
			t.Errorf("SPEAKER_01 %s = %d, want %d", w, s1.WordCounts[w], c)
		}
	}

	// The cached chunk fully covered SPEAKER_00's segment, so only one
	// transcription call happened.
	if tr.Calls() != 1 {
		t.Errorf("transcriber calls = %d, want 1", tr.Calls())
	}

	for _, label := range []string{"SPEAKER_00", "SPEAKER_01"} {
		sp := f.speakers[label]
		if sp.SampleRef == "" {
			t.Errorf("%s has no sample reference", label)
			continue
		}
		data, err := blobs.Get(context.Background(), sp.SampleRef)
		if err != nil {
			t.Errorf("sample for %s: %v", label, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("sample for %s is empty", label)
		}
	}

	if f.duration != 2*time.Second {
		t.Errorf("session duration = %v, want 2s", f.duration)
	}
	if len(f.progress) == 0 || f.progress[len(f.progress)-1] != 100 {
		t.Errorf("final progress = %v, want 100", f.progress)
	}
}

func TestProcessDropsShortSegments(t *testing.T) {
	t.Parallel()

	const sessionID = "sess-short"
	f := newFakeStore()
	blobs := memblob.New()
	addChunk(t, f, blobs, sessionID, 0, oneSecond())

	d := &diarizemock.Provider{Segments: []diarize.Segment{
		{Label: "SPEAKER_00", Start: 0, End: 300 * time.Millisecond},
		{Label: "SPEAKER_01", Start: 300 * time.Millisecond, End: 900 * time.Millisecond},
	}}
	tr := &transcribemock.Provider{Text: "can"}

	p := pipeline.New(f, blobs, d, tr, lexicon.Default())
	if err := p.Process(context.Background(), sessionID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := f.speakers["SPEAKER_00"]; ok {
		t.Error("segment below minimum duration should have been dropped")
	}
	if _, ok := f.speakers["SPEAKER_01"]; !ok {
		t.Error("segment above minimum duration is missing")
	}
}

func TestProcessNoChunksIsFatal(t *testing.T) {
	t.Parallel()

	p := pipeline.New(newFakeStore(), memblob.New(), &diarizemock.Provider{}, &transcribemock.Provider{}, lexicon.Default())
	err := p.Process(context.Background(), "empty")
	if err == nil {
		t.Fatal("Process: expected error for session without chunks")
	}
	if !pipeline.IsFatal(err) {
		t.Errorf("error = %v, want fatal", err)
	}
}

func TestProcessSequenceGapIsFatal(t *testing.T) {
	t.Parallel()

	const sessionID = "sess-gap"
	f := newFakeStore()
	blobs := memblob.New()
	addChunk(t, f, blobs, sessionID, 0, oneSecond())
	// Sequence 1 missing.
	ref := blob.ChunkRef(sessionID, 2)
	if err := blobs.Put(context.Background(), ref, audio.EncodeWAV(oneSecond(), audio.Canonical)); err != nil {
		t.Fatalf("put chunk: %v", err)
	}
	f.chunks = append(f.chunks, store.Chunk{SessionID: sessionID, Sequence: 2, BlobRef: ref})

	p := pipeline.New(f, blobs, &diarizemock.Provider{}, &transcribemock.Provider{}, lexicon.Default())
	err := p.Process(context.Background(), sessionID)
	if !pipeline.IsFatal(err) {
		t.Fatalf("error = %v, want fatal for sequence gap", err)
	}
}

func TestProcessCorruptChunkIsFatal(t *testing.T) {
	t.Parallel()

	const sessionID = "sess-corrupt"
	f := newFakeStore()
	blobs := memblob.New()
	ref := blob.ChunkRef(sessionID, 0)
	if err := blobs.Put(context.Background(), ref, []byte("not a wav file")); err != nil {
		t.Fatalf("put chunk: %v", err)
	}
	f.chunks = append(f.chunks, store.Chunk{SessionID: sessionID, Sequence: 0, BlobRef: ref})

	p := pipeline.New(f, blobs, &diarizemock.Provider{}, &transcribemock.Provider{}, lexicon.Default())
	err := p.Process(context.Background(), sessionID)
	if !pipeline.IsFatal(err) {
		t.Fatalf("error = %v, want fatal for corrupt chunk", err)
	}
}

func TestProcessDiarizerErrorIsTransient(t *testing.T) {
	t.Parallel()

	const sessionID = "sess-diar-err"
	f := newFakeStore()
	blobs := memblob.New()
	addChunk(t, f, blobs, sessionID, 0, oneSecond())

	d := &diarizemock.Provider{Err: errors.New("engine unreachable")}
	p := pipeline.New(f, blobs, d, &transcribemock.Provider{}, lexicon.Default())
	err := p.Process(context.Background(), sessionID)
	if err == nil {
		t.Fatal("Process: expected error from diarizer")
	}
	if pipeline.IsFatal(err) {
		t.Errorf("diarizer error should be retryable, got fatal: %v", err)
	}
}
