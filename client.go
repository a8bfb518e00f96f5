package agentrail

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agentrail/agentrail/internal/api"
	"github.com/agentrail/agentrail/internal/config"
	"github.com/agentrail/agentrail/internal/export"
	"github.com/agentrail/agentrail/internal/telemetry"
)

// Client holds collector connectivity and session defaults. Construct
// one explicitly and pass it down; there is no process-wide instance.
type Client struct {
	cfg config.Config
	api *api.Client
	log *slog.Logger
}

// New creates a Client. Settings resolve in precedence order: options,
// then AGENTRAIL_* environment variables, then the config file, then
// defaults.
func New(opts ...Option) (*Client, error) {
	var oc clientConfig
	for _, o := range opts {
		o(&oc)
	}

	cfg, err := config.Load(oc.configPath)
	if err != nil {
		return nil, err
	}
	if oc.endpoint != "" {
		cfg.Endpoint = oc.endpoint
	}
	if oc.apiKey != "" {
		cfg.APIKey = oc.apiKey
	}
	if len(oc.tags) > 0 {
		cfg.Tags = oc.tags
	}
	if oc.batchTimeout > 0 {
		cfg.BatchTimeout = oc.batchTimeout
	}
	if oc.maxBatchSize > 0 {
		cfg.MaxBatchSize = oc.maxBatchSize
	}
	if oc.maxQueueSize > 0 {
		cfg.MaxQueueSize = oc.maxQueueSize
	}
	if oc.duplicateRetries > 0 {
		cfg.DuplicateRetries = oc.duplicateRetries
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := oc.logger
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	return &Client{
		cfg: cfg,
		api: api.New(cfg.Endpoint, cfg.APIKey),
		log: log,
	}, nil
}

// StartSession opens a recording session. Tags are appended to the
// client's defaults. The session owns its span pipeline and exporter;
// End tears both down. Registration with the collector is best-effort:
// a failure is logged and the session still records locally.
func (c *Client) StartSession(ctx context.Context, tags ...string) (*Session, error) {
	exporter := export.New(c.api, c.log, c.cfg.DuplicateRetries)
	pipe := telemetry.New(exporter, telemetry.Options{
		BatchTimeout: c.cfg.BatchTimeout,
		MaxBatchSize: c.cfg.MaxBatchSize,
		MaxQueueSize: c.cfg.MaxQueueSize,
	})

	s := &Session{
		id:        uuid.New(),
		tags:      append(append([]string{}, c.cfg.Tags...), tags...),
		startedAt: time.Now().UTC(),
		api:       c.api,
		pipe:      pipe,
		log:       c.log,
		counts:    map[string]int{},
		endState:  EndStateIndeterminate,
	}

	if err := c.api.CreateSession(ctx, s.payload()); err != nil {
		c.log.Warn("session registration failed", "session_id", s.ID(), "error", err)
	}
	return s, nil
}
