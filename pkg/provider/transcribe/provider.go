// Package transcribe defines the speech-to-text provider interface used by
// the processing pipeline. Implementations receive a complete WAV file for a
// single speaker segment and return its transcript as plain text.
package transcribe

import "context"

// Provider converts recorded speech to text.
//
// Implementations must be safe for concurrent use: the pipeline transcribes
// independent speaker segments from multiple worker goroutines.
type Provider interface {
	// Transcribe converts the given WAV payload to text. The returned string
	// may be empty when the audio contains no recognizable speech.
	Transcribe(ctx context.Context, wav []byte) (string, error)
}
