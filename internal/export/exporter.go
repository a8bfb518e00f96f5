// Package export ships finished spans to the collector. The exporter
// plugs into the OpenTelemetry batch span processor, decodes each span
// back into its event payload, and submits the batch in one ingest
// call. Duplicate-key conflicts heal themselves through bounded retries
// with mutated event ids; every other failure is logged and surfaced to
// the processor, never to the instrumented application.
package export

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/agentrail/agentrail/internal/api"
	"github.com/agentrail/agentrail/internal/spancodec"
)

// DefaultDuplicateRetries bounds the id-mutation recovery loop.
const DefaultDuplicateRetries = 3

// Backend is the collector ingest call the exporter drives.
type Backend interface {
	CreateEvents(ctx context.Context, events []map[string]any) error
}

// Exporter is a sdktrace.SpanExporter delivering event payloads.
type Exporter struct {
	backend    Backend
	log        *slog.Logger
	maxRetries int
	shutdown   atomic.Bool
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// New creates an exporter submitting through backend. maxRetries bounds
// duplicate-key recovery; zero or negative selects the default.
func New(backend Backend, log *slog.Logger, maxRetries int) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = DefaultDuplicateRetries
	}
	return &Exporter{
		backend:    backend,
		log:        log,
		maxRetries: maxRetries,
	}
}

// ExportSpans submits one batch. After Shutdown it is a non-blocking
// no-op reporting success; a shutdown that lands mid-export leaves the
// dispatched submission to finish on its own terms.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.shutdown.Load() || len(spans) == 0 {
		return nil
	}

	payloads := make([]map[string]any, 0, len(spans))
	for _, sp := range spans {
		payloads = append(payloads, spancodec.Decode(sp))
	}

	err := e.backend.CreateEvents(ctx, payloads)
	if err == nil {
		return nil
	}
	if !errors.Is(err, api.ErrDuplicateKey) {
		e.log.Error("event batch export failed", "events", len(payloads), "error", err)
		return err
	}
	return e.recoverDuplicates(ctx, payloads, err)
}

// recoverDuplicates resubmits the batch with disambiguated event ids.
// Mutation happens on payload copies; the decoded batch is untouched.
func (e *Exporter) recoverDuplicates(ctx context.Context, payloads []map[string]any, lastErr error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.NextBackOff()):
		}

		retry := mutateIDs(payloads, attempt)
		err := e.backend.CreateEvents(ctx, retry)
		if err == nil {
			e.log.Warn("recovered duplicate event ids", "events", len(retry), "attempt", attempt)
			return nil
		}
		lastErr = err
		if !errors.Is(err, api.ErrDuplicateKey) {
			break
		}
	}

	e.log.Error("duplicate recovery exhausted", "events", len(payloads), "error", lastErr)
	return lastErr
}

// Shutdown marks the exporter stopped. Subsequent export calls succeed
// without network I/O. Idempotent and safe under concurrent exports.
func (e *Exporter) Shutdown(context.Context) error {
	e.shutdown.Store(true)
	return nil
}

// mutateIDs clones the payloads with a retry suffix appended to each
// event id. The attempt counter plus random bytes keeps concurrently
// retrying exporters from colliding on the same mutated id.
func mutateIDs(payloads []map[string]any, attempt int) []map[string]any {
	out := make([]map[string]any, len(payloads))
	for i, p := range payloads {
		clone := make(map[string]any, len(p))
		for k, v := range p {
			clone[k] = v
		}
		if id, ok := clone["id"].(string); ok && id != "" {
			clone["id"] = fmt.Sprintf("%s-r%d%s", id, attempt, randHex(4))
		}
		out[i] = clone
	}
	return out
}

func randHex(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)[:n]
}
