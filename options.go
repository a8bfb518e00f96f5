package agentrail

import (
	"log/slog"
	"time"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath       string
	endpoint         string
	apiKey           string
	tags             []string
	logger           *slog.Logger
	batchTimeout     time.Duration
	maxBatchSize     int
	maxQueueSize     int
	duplicateRetries int
}

// WithConfigFile loads settings from a YAML file before applying the
// remaining options.
func WithConfigFile(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithEndpoint sets the collector base URL.
func WithEndpoint(url string) Option {
	return func(c *clientConfig) { c.endpoint = url }
}

// WithAPIKey sets the collector API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithTags sets default tags applied to every session.
func WithTags(tags ...string) Option {
	return func(c *clientConfig) { c.tags = tags }
}

// WithLogger routes SDK diagnostics through log. The default is a JSON
// handler on stderr.
func WithLogger(log *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = log }
}

// WithBatchTimeout sets how long the span processor buffers before a
// time-triggered flush.
func WithBatchTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.batchTimeout = d }
}

// WithMaxBatchSize caps the spans per export call.
func WithMaxBatchSize(n int) Option {
	return func(c *clientConfig) { c.maxBatchSize = n }
}

// WithMaxQueueSize caps the processor buffer; spans beyond it are
// dropped rather than blocking the producer.
func WithMaxQueueSize(n int) Option {
	return func(c *clientConfig) { c.maxQueueSize = n }
}

// WithDuplicateRetries bounds the exporter's duplicate-id recovery.
func WithDuplicateRetries(n int) Option {
	return func(c *clientConfig) { c.duplicateRetries = n }
}
