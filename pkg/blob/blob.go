// Package blob defines the binary object storage boundary used for audio
// chunks, canonical session streams, and speaker sample clips.
//
// A reference is an opaque slash-separated path such as
// "sessions/<id>/chunks/chunk_0003.wav". Implementations live in the
// subpackages fsblob (directory-backed) and memblob (in-memory, for tests).
package blob

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by [Store.Get] when no object exists under the
// given reference.
var ErrNotFound = errors.New("blob: object not found")

// Store is the abstraction over any binary object store.
//
// Implementations must be safe for concurrent use; the pipeline reads chunks
// while uploads for other sessions are still in flight.
type Store interface {
	// Put stores data under ref, replacing any existing object.
	Put(ctx context.Context, ref string, data []byte) error

	// Get returns the object stored under ref, or [ErrNotFound].
	Get(ctx context.Context, ref string) ([]byte, error)
}

// ChunkRef returns the storage reference for an uploaded audio chunk.
func ChunkRef(sessionID string, sequence int) string {
	return fmt.Sprintf("sessions/%s/chunks/chunk_%04d.wav", sessionID, sequence)
}

// StreamRef returns the storage reference for a session's canonical
// concatenated stream.
func StreamRef(sessionID string) string {
	return fmt.Sprintf("sessions/%s/processed/full_audio.wav", sessionID)
}

// SampleRef returns the storage reference for a speaker's representative
// sample clip.
func SampleRef(sessionID, speakerLabel string) string {
	return fmt.Sprintf("sessions/%s/processed/speaker_%s_sample.wav", sessionID, speakerLabel)
}
