package resilience

import (
	"context"

	"github.com/wagmirep/lahstats/pkg/provider/diarize"
	"github.com/wagmirep/lahstats/pkg/provider/transcribe"
)

// GuardedDiarizer wraps a diarize.Provider with a circuit breaker.
type GuardedDiarizer struct {
	inner   diarize.Provider
	breaker *CircuitBreaker
}

var _ diarize.Provider = (*GuardedDiarizer)(nil)

// GuardDiarizer wraps p so that repeated failures trip the breaker and
// subsequent calls fail immediately with ErrCircuitOpen.
func GuardDiarizer(p diarize.Provider, cfg Config) *GuardedDiarizer {
	if cfg.Name == "" {
		cfg.Name = "diarize"
	}
	return &GuardedDiarizer{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Diarize forwards to the wrapped provider through the breaker.
func (g *GuardedDiarizer) Diarize(ctx context.Context, wav []byte) ([]diarize.Segment, error) {
	var segments []diarize.Segment
	err := g.breaker.Execute(func() error {
		var err error
		segments, err = g.inner.Diarize(ctx, wav)
		return err
	})
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// GuardedTranscriber wraps a transcribe.Provider with a circuit breaker.
type GuardedTranscriber struct {
	inner   transcribe.Provider
	breaker *CircuitBreaker
}

var _ transcribe.Provider = (*GuardedTranscriber)(nil)

// GuardTranscriber wraps p so that repeated failures trip the breaker and
// subsequent calls fail immediately with ErrCircuitOpen.
func GuardTranscriber(p transcribe.Provider, cfg Config) *GuardedTranscriber {
	if cfg.Name == "" {
		cfg.Name = "transcribe"
	}
	return &GuardedTranscriber{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Transcribe forwards to the wrapped provider through the breaker.
func (g *GuardedTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var text string
	err := g.breaker.Execute(func() error {
		var err error
		text, err = g.inner.Transcribe(ctx, wav)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
