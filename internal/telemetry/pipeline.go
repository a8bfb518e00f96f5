// Package telemetry owns the OpenTelemetry wiring between the span
// encoder and the batch exporter: a dedicated tracer provider per
// session, a batch span processor for buffering, and the realization of
// span definitions into ended spans.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentrail/agentrail/event"
	"github.com/agentrail/agentrail/internal/spancodec"
	"github.com/agentrail/agentrail/internal/version"
)

const tracerName = "agentrail"

// Options tune the batch span processor.
type Options struct {
	BatchTimeout time.Duration
	MaxBatchSize int
	MaxQueueSize int
}

// Pipeline buffers realized spans and flushes them to an exporter. One
// pipeline serves one session and is shut down when the session ends.
type Pipeline struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a pipeline draining into exp.
func New(exp sdktrace.SpanExporter, opts Options) *Pipeline {
	var bspOpts []sdktrace.BatchSpanProcessorOption
	if opts.BatchTimeout > 0 {
		bspOpts = append(bspOpts, sdktrace.WithBatchTimeout(opts.BatchTimeout))
	}
	if opts.MaxBatchSize > 0 {
		bspOpts = append(bspOpts, sdktrace.WithMaxExportBatchSize(opts.MaxBatchSize))
	}
	if opts.MaxQueueSize > 0 {
		bspOpts = append(bspOpts, sdktrace.WithMaxQueueSize(opts.MaxQueueSize))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp, bspOpts...)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &Pipeline{
		provider: provider,
		tracer:   provider.Tracer(tracerName),
	}
}

// Submit realizes the definitions of one event as ended spans and hands
// them to the processor. Parent references name sibling definitions
// within the same call and resolve through span contexts; unknown
// parents fall back to a root span. Submit never blocks on export.
func (p *Pipeline) Submit(defs []spancodec.Definition) {
	type open struct {
		span trace.Span
		end  time.Time
	}

	contexts := make(map[string]context.Context, len(defs))
	opened := make([]open, 0, len(defs))

	for _, d := range defs {
		parent := context.Background()
		if d.Parent != "" {
			if ctx, ok := contexts[d.Parent]; ok {
				parent = ctx
			}
		}

		start := d.StartTime
		if start.IsZero() {
			start = time.Now().UTC()
		}

		ctx, span := p.tracer.Start(parent, d.Name,
			trace.WithSpanKind(d.Kind),
			trace.WithTimestamp(start),
			trace.WithAttributes(toAttributes(d.Attributes)...),
		)
		span.SetAttributes(
			attribute.String(spancodec.InternalPrefix+"sdk.name", tracerName),
			attribute.String(spancodec.InternalPrefix+"sdk.version", version.Number),
		)

		contexts[d.Name] = ctx
		opened = append(opened, open{span: span, end: d.EndTime})
	}

	// End children before parents so every span is complete when its
	// parent reaches the processor.
	for i := len(opened) - 1; i >= 0; i-- {
		end := opened[i].end
		if end.IsZero() {
			end = time.Now().UTC()
		}
		opened[i].span.End(trace.WithTimestamp(end))
	}
}

// Flush synchronously drains buffered spans to the exporter. It reports
// true once everything buffered at call time has been handed off.
func (p *Pipeline) Flush(ctx context.Context) bool {
	return p.provider.ForceFlush(ctx) == nil
}

// Shutdown flushes and tears the provider down. Safe to call while an
// export is in flight; dispatched batches complete on their own terms.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// toAttributes converts a definition attribute set into OTel form.
// Values outside the supported scalar types degrade to their JSON
// encoding rather than being dropped.
func toAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for key, val := range attrs {
		switch v := val.(type) {
		case string:
			out = append(out, attribute.String(key, v))
		case bool:
			out = append(out, attribute.Bool(key, v))
		case int:
			out = append(out, attribute.Int(key, v))
		case int64:
			out = append(out, attribute.Int64(key, v))
		case float64:
			out = append(out, attribute.Float64(key, v))
		case []string:
			out = append(out, attribute.StringSlice(key, v))
		default:
			out = append(out, attribute.String(key, event.EncodeJSON(v)))
		}
	}
	return out
}
