// Package httpdiarize provides a [diarize.Provider] backed by a pyannote
//-style diarization server.
//
// The server is expected to accept POST /diarize with a multipart "file"
// field containing a WAV recording and respond with:
//
//	{"segments": [{"speaker": "SPEAKER_00", "start": 0.0, "end": 2.5}, …]}
//
// Start/end are seconds from the beginning of the recording. Requests are
// bounded by a configurable timeout so a hung server surfaces as a
// retryable error instead of stalling a worker.
package httpdiarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"time"

	"github.com/wagmirep/lahstats/pkg/provider/diarize"
)

const defaultTimeout = 5 * time.Minute

// Compile-time assertion that Provider implements diarize.Provider.
var _ diarize.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Default: 5 minutes —
// diarization of a long session is slow but must not hang forever.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely. Mainly for
// tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider calls a remote diarization server over HTTP. Safe for concurrent
// use.
type Provider struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Provider targeting the diarization server at serverURL
// (e.g. "http://localhost:9090").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("httpdiarize: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// wireSegment is the server's JSON representation of a span.
type wireSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Diarize implements [diarize.Provider].
func (p *Provider) Diarize(ctx context.Context, wav []byte) ([]diarize.Segment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("httpdiarize: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("httpdiarize: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("httpdiarize: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/diarize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("httpdiarize: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpdiarize: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpdiarize: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpdiarize: read response body: %w", err)
	}

	var result struct {
		Segments []wireSegment `json:"segments"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("httpdiarize: parse JSON response: %w", err)
	}

	segments := make([]diarize.Segment, 0, len(result.Segments))
	for _, ws := range result.Segments {
		if ws.Speaker == "" || ws.End <= ws.Start {
			continue
		}
		segments = append(segments, diarize.Segment{
			Label: ws.Speaker,
			Start: time.Duration(ws.Start * float64(time.Second)),
			End:   time.Duration(ws.End * float64(time.Second)),
		})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	return segments, nil
}
