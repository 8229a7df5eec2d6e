package httpdiarize_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wagmirep/lahstats/pkg/provider/diarize"
	"github.com/wagmirep/lahstats/pkg/provider/diarize/httpdiarize"
)

func TestDiarizeParsesSegments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/diarize" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"segments": []map[string]any{
				{"speaker": "SPEAKER_01", "start": 2.5, "end": 4.0},
				{"speaker": "SPEAKER_00", "start": 0.0, "end": 2.5},
				{"speaker": "", "start": 5.0, "end": 6.0},      // dropped: no label
				{"speaker": "SPEAKER_00", "start": 7, "end": 7}, // dropped: empty span
			},
		})
	}))
	defer srv.Close()

	p, err := httpdiarize.New(srv.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	segments, err := p.Diarize(context.Background(), []byte("wav-bytes"))
	if err != nil {
		t.Fatalf("Diarize returned error: %v", err)
	}

	want := []diarize.Segment{
		{Label: "SPEAKER_00", Start: 0, End: 2500 * time.Millisecond},
		{Label: "SPEAKER_01", Start: 2500 * time.Millisecond, End: 4 * time.Second},
	}
	if len(segments) != len(want) {
		t.Fatalf("got %d segments, want %d: %v", len(segments), len(want), segments)
	}
	for i := range want {
		if segments[i] != want[i] {
			t.Errorf("segment %d = %v, want %v", i, segments[i], want[i])
		}
	}
}

func TestDiarizeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := httpdiarize.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Diarize(context.Background(), nil); err == nil {
		t.Error("Diarize succeeded against a failing server, want error")
	}
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := httpdiarize.New(""); err == nil {
		t.Error("New accepted an empty server URL")
	}
}
