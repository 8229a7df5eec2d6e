// Package mock provides a test double for the transcribe package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/wagmirep/lahstats/pkg/provider/transcribe"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// WAV is the audio payload passed to Transcribe.
	WAV []byte
}

// Provider is a mock implementation of transcribe.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned from Transcribe when neither Err nor Fn is set.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Fn, if non-nil, computes the result per call. It takes precedence over
	// Text and Err.
	Fn func(ctx context.Context, wav []byte) (string, error)

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

var _ transcribe.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, WAV: wav})
	fn := p.Fn
	text, err := p.Text, p.Err
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, wav)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns the number of recorded Transcribe invocations.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}
