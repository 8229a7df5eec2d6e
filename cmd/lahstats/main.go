// Command lahstats is the main entry point for the lahstats server: it serves
// the session API and runs the audio processing worker pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wagmirep/lahstats/internal/api"
	"github.com/wagmirep/lahstats/internal/claim"
	"github.com/wagmirep/lahstats/internal/config"
	"github.com/wagmirep/lahstats/internal/health"
	"github.com/wagmirep/lahstats/internal/lexicon"
	"github.com/wagmirep/lahstats/internal/observe"
	"github.com/wagmirep/lahstats/internal/pipeline"
	"github.com/wagmirep/lahstats/internal/queue"
	"github.com/wagmirep/lahstats/internal/queue/memqueue"
	"github.com/wagmirep/lahstats/internal/queue/pgqueue"
	"github.com/wagmirep/lahstats/internal/resilience"
	"github.com/wagmirep/lahstats/internal/store"
	"github.com/wagmirep/lahstats/internal/worker"
	"github.com/wagmirep/lahstats/pkg/blob"
	"github.com/wagmirep/lahstats/pkg/blob/fsblob"
	"github.com/wagmirep/lahstats/pkg/blob/memblob"
	"github.com/wagmirep/lahstats/pkg/provider/diarize"
	"github.com/wagmirep/lahstats/pkg/provider/diarize/httpdiarize"
	"github.com/wagmirep/lahstats/pkg/provider/transcribe"
	transcribeopenai "github.com/wagmirep/lahstats/pkg/provider/transcribe/openai"
	"github.com/wagmirep/lahstats/pkg/provider/transcribe/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	workersOnly := flag.Bool("workers-only", false, "run only the processing worker pool, no HTTP API")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lahstats: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lahstats: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("lahstats starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"workers_only", *workersOnly,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "lahstats"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Storage ───────────────────────────────────────────────────────────────
	st, pool, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		return 1
	}
	defer pool.Close()

	jobs, err := buildQueue(ctx, cfg, pool)
	if err != nil {
		slog.Error("failed to build job queue", "err", err)
		return 1
	}

	blobs, err := buildBlobStore(cfg)
	if err != nil {
		slog.Error("failed to build blob store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	diarizer, err := buildDiarizer(cfg)
	if err != nil {
		slog.Error("failed to build diarization provider", "err", err)
		return 1
	}
	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		slog.Error("failed to build transcription provider", "err", err)
		return 1
	}

	lex, err := buildLexicon(cfg)
	if err != nil {
		slog.Error("failed to build lexicon", "err", err)
		return 1
	}

	// ── Pipeline + workers ────────────────────────────────────────────────────
	var pipelineOpts []pipeline.Option
	if cfg.Pipeline.MinSegment > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithMinSegment(cfg.Pipeline.MinSegment))
	}
	if cfg.Pipeline.OverlapThreshold != 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithOverlapThreshold(cfg.Pipeline.OverlapThreshold))
	}
	if cfg.Pipeline.SampleDuration > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithSampleDuration(cfg.Pipeline.SampleDuration))
	}
	proc := pipeline.New(st, blobs, diarizer, transcriber, lex, pipelineOpts...)

	var workerOpts []worker.Option
	if cfg.Pipeline.Workers > 0 {
		workerOpts = append(workerOpts, worker.WithWorkers(cfg.Pipeline.Workers))
	}
	if cfg.Pipeline.MaxAttempts > 0 {
		workerOpts = append(workerOpts, worker.WithMaxAttempts(cfg.Pipeline.MaxAttempts))
	}
	workers := worker.New(jobs, proc, st, workerOpts...)

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- workers.Run(ctx)
	}()

	if *workersOnly {
		slog.Info("worker pool running — press Ctrl+C to shut down")
		if err := <-workersDone; err != nil {
			slog.Error("worker pool error", "err", err)
			return 1
		}
		slog.Info("goodbye")
		return 0
	}

	// ── HTTP API ──────────────────────────────────────────────────────────────
	mux := http.NewServeMux()

	apiServer := api.New(st, blobs, jobs, claim.New(st),
		api.WithChunkTranscription(transcriber, lex),
	)
	apiServer.Register(mux)

	health.New(health.Database(pool), health.Queue(jobs)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", srv.Addr)
		serverDone <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverDone:
		slog.Error("http server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := <-workersDone; err != nil {
		slog.Error("worker pool error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildQueue constructs the job queue named by the config. The Postgres
// queue shares the API's connection pool.
func buildQueue(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (queue.Queue, error) {
	switch cfg.Queue.Kind {
	case config.QueueMemory:
		return memqueue.New(1024), nil
	case config.QueuePostgres, "":
		var opts []pgqueue.Option
		if cfg.Queue.PollInterval > 0 {
			opts = append(opts, pgqueue.WithPollInterval(cfg.Queue.PollInterval))
		}
		q := pgqueue.New(pool, opts...)
		if err := q.Migrate(ctx); err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue kind %q", cfg.Queue.Kind)
	}
}

func buildBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Kind {
	case config.BlobMemory:
		return memblob.New(), nil
	case config.BlobFS, "":
		dir := cfg.Blob.Dir
		if dir == "" {
			dir = "blobs"
		}
		return fsblob.New(dir)
	default:
		return nil, fmt.Errorf("unknown blob store kind %q", cfg.Blob.Kind)
	}
}

// buildDiarizer constructs the diarization provider behind a circuit breaker.
func buildDiarizer(cfg *config.Config) (diarize.Provider, error) {
	var opts []httpdiarize.Option
	if cfg.Providers.Diarize.Timeout > 0 {
		opts = append(opts, httpdiarize.WithTimeout(cfg.Providers.Diarize.Timeout))
	}
	p, err := httpdiarize.New(cfg.Providers.Diarize.BaseURL, opts...)
	if err != nil {
		return nil, err
	}
	return resilience.GuardDiarizer(p, resilience.Config{}), nil
}

// buildTranscriber constructs the transcription provider behind a circuit
// breaker.
func buildTranscriber(cfg *config.Config) (transcribe.Provider, error) {
	tc := cfg.Providers.Transcribe
	var p transcribe.Provider
	switch tc.Name {
	case "whisper":
		var opts []whisper.Option
		if tc.Language != "" {
			opts = append(opts, whisper.WithLanguage(tc.Language))
		}
		if tc.Model != "" {
			opts = append(opts, whisper.WithModel(tc.Model))
		}
		if tc.Timeout > 0 {
			opts = append(opts, whisper.WithTimeout(tc.Timeout))
		}
		wp, err := whisper.New(tc.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		p = wp
	case "openai":
		var opts []transcribeopenai.Option
		if tc.BaseURL != "" {
			opts = append(opts, transcribeopenai.WithBaseURL(tc.BaseURL))
		}
		if tc.Language != "" {
			opts = append(opts, transcribeopenai.WithLanguage(tc.Language))
		}
		if tc.Timeout > 0 {
			opts = append(opts, transcribeopenai.WithTimeout(tc.Timeout))
		}
		op, err := transcribeopenai.New(tc.APIKey, tc.Model, opts...)
		if err != nil {
			return nil, err
		}
		p = op
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", tc.Name)
	}
	return resilience.GuardTranscriber(p, resilience.Config{}), nil
}

// buildLexicon builds the vocabulary engine, using the config overrides when
// present and the built-in Singlish lexicon otherwise.
func buildLexicon(cfg *config.Config) (*lexicon.Engine, error) {
	if len(cfg.Lexicon.Words) == 0 && len(cfg.Lexicon.Corrections) == 0 {
		return lexicon.Default(), nil
	}
	rules := make([]lexicon.Rule, 0, len(cfg.Lexicon.Corrections))
	for _, c := range cfg.Lexicon.Corrections {
		rules = append(rules, lexicon.Rule{Pattern: c.From, Replacement: c.To})
	}
	words := cfg.Lexicon.Words
	if len(words) == 0 {
		words = lexicon.Default().Vocabulary()
	}
	return lexicon.New(rules, words)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
