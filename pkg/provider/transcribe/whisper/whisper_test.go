package whisper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wagmirep/lahstats/pkg/provider/transcribe/whisper"
)

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotPath, gotLanguage string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotLanguage = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		buf := make([]byte, 64)
		n, _ := f.Read(buf)
		gotFile = buf[:n]
		json.NewEncoder(w).Encode(map[string]string{"text": "  walao eh so shiok  "})
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), []byte("RIFFfake"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "walao eh so shiok" {
		t.Errorf("text = %q, want %q", text, "walao eh so shiok")
	}
	if gotPath != "/inference" {
		t.Errorf("path = %q, want /inference", gotPath)
	}
	if gotLanguage != "en" {
		t.Errorf("language field = %q, want %q", gotLanguage, "en")
	}
	if string(gotFile) != "RIFFfake" {
		t.Errorf("uploaded file = %q, want %q", gotFile, "RIFFfake")
	}
}

func TestTranscribeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Fatal("Transcribe: expected error for HTTP 503, got nil")
	} else if !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %v, want mention of HTTP 503", err)
	}
}

func TestNewRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("New(\"\"): expected error, got nil")
	}
}
