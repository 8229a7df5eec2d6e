package memblob_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wagmirep/lahstats/pkg/blob"
	"github.com/wagmirep/lahstats/pkg/blob/memblob"
)

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := memblob.New()
	ctx := context.Background()

	if err := s.Put(ctx, "sessions/a/chunk.wav", []byte("payload")); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	got, err := s.Get(ctx, "sessions/a/chunk.wav")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, want %q", got, "payload")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	s := memblob.New()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Get error = %v, want blob.ErrNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := memblob.New()
	ctx := context.Background()
	if err := s.Put(ctx, "ref", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	first, _ := s.Get(ctx, "ref")
	first[0] = 99
	second, _ := s.Get(ctx, "ref")
	if second[0] != 1 {
		t.Error("mutating a returned slice affected stored data")
	}
}
