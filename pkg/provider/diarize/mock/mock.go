// Package mock provides a test double for the diarize package interfaces.
//
// Use Provider to feed controlled segment lists to pipeline code and inspect
// which audio payloads were delivered.
package mock

import (
	"context"
	"sync"

	"github.com/wagmirep/lahstats/pkg/provider/diarize"
)

// DiarizeCall records a single invocation of Provider.Diarize.
type DiarizeCall struct {
	// Ctx is the context passed to Diarize.
	Ctx context.Context
	// WAV is the audio payload passed to Diarize.
	WAV []byte
}

// Provider is a mock implementation of diarize.Provider.
type Provider struct {
	mu sync.Mutex

	// Segments is returned from Diarize when Err is nil.
	Segments []diarize.Segment

	// Err, if non-nil, is returned as the error from Diarize.
	Err error

	// DiarizeCalls records every call to Diarize.
	DiarizeCalls []DiarizeCall
}

var _ diarize.Provider = (*Provider)(nil)

// Diarize records the call and returns Segments, Err.
func (p *Provider) Diarize(ctx context.Context, wav []byte) ([]diarize.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DiarizeCalls = append(p.DiarizeCalls, DiarizeCall{Ctx: ctx, WAV: wav})
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]diarize.Segment, len(p.Segments))
	copy(out, p.Segments)
	return out, nil
}

// Calls returns the number of recorded Diarize invocations.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.DiarizeCalls)
}
