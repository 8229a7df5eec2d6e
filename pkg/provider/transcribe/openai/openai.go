// Package openai implements transcribe.Provider backed by the OpenAI audio
// transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/wagmirep/lahstats/pkg/provider/transcribe"
)

// Provider implements transcribe.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
	lang   string
}

var _ transcribe.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	timeout  time.Duration
	language string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with every request.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// New constructs a new OpenAI transcription Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  oai.AudioModel(model),
		lang:   cfg.language,
	}, nil
}

// Transcribe sends wav to the OpenAI transcription endpoint and returns the
// recognized text.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: p.model,
	}
	if p.lang != "" {
		params.Language = oai.String(p.lang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription request: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
