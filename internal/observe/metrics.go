// Package observe provides observability primitives for the processing
// service: OpenTelemetry metrics, structured logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/wagmirep/lahstats"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks pipeline stage latency. Use with attribute:
	//   attribute.String("stage", "assemble"|"diarize"|"transcribe"|"save"|"sample")
	StageDuration metric.Float64Histogram

	// JobDuration tracks the full pipeline run per job.
	JobDuration metric.Float64Histogram

	// JobsProcessed counts finished jobs. Use with attribute:
	//   attribute.String("status", "ok"|"retried"|"failed")
	JobsProcessed metric.Int64Counter

	// JobRetries counts retry attempts after transient failures.
	JobRetries metric.Int64Counter

	// ChunksUploaded counts accepted audio chunk uploads.
	ChunksUploaded metric.Int64Counter

	// CacheLookups counts segment cache resolutions. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// Claims counts claim requests. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", ...)
	Claims metric.Int64Counter

	// ActiveJobs tracks the number of jobs currently being processed.
	ActiveJobs metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Pipeline
// runs span milliseconds (cache hits) to minutes (long recordings).
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("lahstats.pipeline.stage.duration",
		metric.WithDescription("Latency of one pipeline stage by stage name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("lahstats.job.duration",
		metric.WithDescription("End-to-end pipeline latency per processing job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.JobsProcessed, err = m.Int64Counter("lahstats.jobs.processed",
		metric.WithDescription("Total finished processing jobs by status."),
	); err != nil {
		return nil, err
	}
	if met.JobRetries, err = m.Int64Counter("lahstats.jobs.retries",
		metric.WithDescription("Total job retry attempts after transient failures."),
	); err != nil {
		return nil, err
	}
	if met.ChunksUploaded, err = m.Int64Counter("lahstats.chunks.uploaded",
		metric.WithDescription("Total accepted audio chunk uploads."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("lahstats.cache.lookups",
		metric.WithDescription("Total segment transcript cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.Claims, err = m.Int64Counter("lahstats.claims",
		metric.WithDescription("Total speaker claim requests by type and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveJobs, err = m.Int64UpDownCounter("lahstats.active_jobs",
		metric.WithDescription("Number of jobs currently being processed."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lahstats.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordJob records one finished job with its end-to-end latency.
func (m *Metrics) RecordJob(ctx context.Context, status string, d time.Duration) {
	m.JobDuration.Record(ctx, d.Seconds())
	m.JobsProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordCacheLookup records one segment cache resolution.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))
}

// RecordClaim records one claim request outcome.
func (m *Metrics) RecordClaim(ctx context.Context, claimType, status string) {
	m.Claims.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", claimType),
			attribute.String("status", status),
		),
	)
}
