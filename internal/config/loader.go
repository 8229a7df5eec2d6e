package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Database
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	// Queue
	if cfg.Queue.Kind != "" && !cfg.Queue.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("queue.kind %q is invalid; valid values: postgres, memory", cfg.Queue.Kind))
	}
	if cfg.Queue.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("queue.poll_interval %s must not be negative", cfg.Queue.PollInterval))
	}
	if cfg.Queue.Kind == QueueMemory {
		slog.Warn("queue.kind is memory; pending jobs are lost when the server restarts")
	}

	// Blob
	if cfg.Blob.Kind != "" && !cfg.Blob.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("blob.kind %q is invalid; valid values: fs, memory", cfg.Blob.Kind))
	}
	if cfg.Blob.Kind == BlobFS && cfg.Blob.Dir == "" {
		errs = append(errs, errors.New("blob.dir is required when blob.kind is fs"))
	}
	if cfg.Blob.Kind == BlobMemory {
		slog.Warn("blob.kind is memory; uploaded audio is lost when the server restarts")
	}

	// Providers
	if cfg.Providers.Diarize.BaseURL == "" {
		errs = append(errs, errors.New("providers.diarize.base_url is required"))
	}
	tr := cfg.Providers.Transcribe
	if tr.Name != "" && !slices.Contains(ValidTranscribeNames, tr.Name) {
		errs = append(errs, fmt.Errorf("providers.transcribe.name %q is invalid; valid values: %s",
			tr.Name, strings.Join(ValidTranscribeNames, ", ")))
	}
	switch tr.Name {
	case "whisper":
		if tr.BaseURL == "" {
			errs = append(errs, errors.New("providers.transcribe.base_url is required when name is whisper"))
		}
	case "openai":
		if tr.APIKey == "" {
			errs = append(errs, errors.New("providers.transcribe.api_key is required when name is openai"))
		}
	case "":
		errs = append(errs, errors.New("providers.transcribe.name is required"))
	}

	// Pipeline
	if cfg.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers %d must not be negative", cfg.Pipeline.Workers))
	}
	if cfg.Pipeline.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_attempts %d must not be negative", cfg.Pipeline.MaxAttempts))
	}
	if cfg.Pipeline.MinSegment < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_segment %s must not be negative", cfg.Pipeline.MinSegment))
	}
	if cfg.Pipeline.OverlapThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.overlap_threshold %.2f is out of range (0, 1]", cfg.Pipeline.OverlapThreshold))
	}
	if cfg.Pipeline.SampleDuration < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_duration %s must not be negative", cfg.Pipeline.SampleDuration))
	}

	// Lexicon
	wordsSeen := make(map[string]int, len(cfg.Lexicon.Words))
	for i, w := range cfg.Lexicon.Words {
		if strings.TrimSpace(w) == "" {
			errs = append(errs, fmt.Errorf("lexicon.words[%d] is empty", i))
			continue
		}
		norm := strings.ToLower(strings.TrimSpace(w))
		if prev, ok := wordsSeen[norm]; ok {
			errs = append(errs, fmt.Errorf("lexicon.words[%d] %q is a duplicate of lexicon.words[%d]", i, w, prev))
		}
		wordsSeen[norm] = i
	}
	for i, c := range cfg.Lexicon.Corrections {
		prefix := fmt.Sprintf("lexicon.corrections[%d]", i)
		if c.From == "" {
			errs = append(errs, fmt.Errorf("%s.from is required", prefix))
		}
		if c.To == "" {
			errs = append(errs, fmt.Errorf("%s.to is required", prefix))
		}
	}
	if len(cfg.Lexicon.Words) > 0 && len(cfg.Lexicon.Corrections) == 0 {
		slog.Warn("lexicon.words overrides the built-in vocabulary but no corrections are configured; built-in corrections are dropped too")
	}

	return errors.Join(errs...)
}
