// Package common builds the shared dependencies of the analyst subcommands:
// configuration, logging, graph replicas, the completion client and the
// provenance store. Every subcommand boots through here so wiring stays in
// one place.
package common

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// ConfigPath is the --config flag value, set by the root command before any
// subcommand runs. Empty means the default lookup (CONFIG_PATH, config.yml).
var ConfigPath string

// Bootstrap loads configuration and builds the logger.
func Bootstrap() (*config.Config, logger.Logger, error) {
	path := ConfigPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

// OpenLocal opens the local graph replica.
func OpenLocal(cfg *config.Config, log logger.Logger) (*graph.Store, error) {
	store, err := graph.Open(cfg.Store.Local.Driver, cfg.Store.Local.DSN, log)
	if err != nil {
		return nil, fmt.Errorf("open local replica: %w", err)
	}
	return store, nil
}

// OpenCloud opens the cloud graph replica. Sync and migrate are the only
// callers; everything else runs against local alone.
func OpenCloud(cfg *config.Config, log logger.Logger) (*graph.Store, error) {
	if cfg.Store.Cloud.DSN == "" {
		return nil, errors.New("store.cloud.dsn is not configured")
	}
	store, err := graph.Open(cfg.Store.Cloud.Driver, cfg.Store.Cloud.DSN, log)
	if err != nil {
		return nil, fmt.Errorf("open cloud replica: %w", err)
	}
	return store, nil
}

// NewLLM builds the completion client.
func NewLLM(cfg *config.Config, log logger.Logger) (llm.Client, error) {
	client, err := llm.NewAnthropic(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	return client, nil
}

// NewTracker builds the provenance store.
func NewTracker(cfg *config.Config, log logger.Logger) *tracker.Store {
	return tracker.NewStore(cfg.Tracker.Dir, log)
}

// NewRedis builds the dedup cache client. Connections are established lazily
// and cache errors fail open, so a missing redis degrades rather than blocks.
func NewRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
