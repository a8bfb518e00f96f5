package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/agentrail/agentrail/internal/api"
	"github.com/agentrail/agentrail/internal/spancodec"
)

type fakeBackend struct {
	mu      sync.Mutex
	batches [][]map[string]any
	errs    []error
}

func (f *fakeBackend) CreateEvents(_ context.Context, events []map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeBackend) batch(i int) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[i]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testSpans(ids ...string) []sdktrace.ReadOnlySpan {
	stubs := make(tracetest.SpanStubs, 0, len(ids))
	for _, id := range ids {
		stubs = append(stubs, tracetest.SpanStub{
			Name:      spancodec.SpanAgentTool,
			StartTime: time.Now().UTC(),
			EndTime:   time.Now().UTC(),
			Attributes: []attribute.KeyValue{
				attribute.String(spancodec.KeyEventID, id),
				attribute.String(spancodec.KeyEventType, "tools"),
			},
		})
	}
	return stubs.Snapshots()
}

func TestExportSubmitsDecodedBatch(t *testing.T) {
	backend := &fakeBackend{}
	exp := New(backend, quietLogger(), 0)

	if err := exp.ExportSpans(context.Background(), testSpans("ev-1", "ev-2")); err != nil {
		t.Fatalf("export: %v", err)
	}
	if backend.calls() != 1 {
		t.Fatalf("expected 1 submission, got %d", backend.calls())
	}
	batch := backend.batch(0)
	if len(batch) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(batch))
	}
	if batch[0]["id"] != "ev-1" || batch[1]["id"] != "ev-2" {
		t.Errorf("payload ids = %v, %v", batch[0]["id"], batch[1]["id"])
	}
}

func TestExportEmptyBatchIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	exp := New(backend, quietLogger(), 0)

	if err := exp.ExportSpans(context.Background(), nil); err != nil {
		t.Fatalf("export: %v", err)
	}
	if backend.calls() != 0 {
		t.Errorf("empty batch reached the backend")
	}
}

func TestDuplicateRecoveryMutatesIDs(t *testing.T) {
	dup := fmt.Errorf("create_events: %w", api.ErrDuplicateKey)
	backend := &fakeBackend{errs: []error{dup}}
	exp := New(backend, quietLogger(), 3)

	if err := exp.ExportSpans(context.Background(), testSpans("ev-1")); err != nil {
		t.Fatalf("export: %v", err)
	}
	if backend.calls() != 2 {
		t.Fatalf("expected 2 submissions, got %d", backend.calls())
	}

	// The first submission keeps the original id.
	if backend.batch(0)[0]["id"] != "ev-1" {
		t.Errorf("original id mutated: %v", backend.batch(0)[0]["id"])
	}

	retried, _ := backend.batch(1)[0]["id"].(string)
	if !strings.HasPrefix(retried, "ev-1-r1") {
		t.Errorf("retried id = %q, want ev-1-r1 prefix", retried)
	}
	if len(retried) != len("ev-1-r1")+4 {
		t.Errorf("retried id %q missing the 4-char random suffix", retried)
	}
}

func TestDuplicateRecoveryExhausts(t *testing.T) {
	dup := fmt.Errorf("create_events: %w", api.ErrDuplicateKey)
	backend := &fakeBackend{errs: []error{dup, dup, dup, dup}}
	exp := New(backend, quietLogger(), 3)

	err := exp.ExportSpans(context.Background(), testSpans("ev-1"))
	if !errors.Is(err, api.ErrDuplicateKey) {
		t.Fatalf("expected duplicate error after exhaustion, got %v", err)
	}
	if backend.calls() != 4 {
		t.Errorf("expected 1 initial + 3 retries, got %d submissions", backend.calls())
	}
	// Each retry carries its own attempt counter.
	for i := 1; i <= 3; i++ {
		id, _ := backend.batch(i)[0]["id"].(string)
		if !strings.HasPrefix(id, fmt.Sprintf("ev-1-r%d", i)) {
			t.Errorf("retry %d id = %q", i, id)
		}
	}
}

func TestTerminalErrorIsSurfaced(t *testing.T) {
	boom := errors.New("collector rejected create_events: HTTP 500")
	backend := &fakeBackend{errs: []error{boom}}
	exp := New(backend, quietLogger(), 3)

	err := exp.ExportSpans(context.Background(), testSpans("ev-1"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if backend.calls() != 1 {
		t.Errorf("terminal error must not be retried, got %d submissions", backend.calls())
	}
}

func TestRecoveryStopsOnTerminalError(t *testing.T) {
	dup := fmt.Errorf("create_events: %w", api.ErrDuplicateKey)
	boom := errors.New("HTTP 500")
	backend := &fakeBackend{errs: []error{dup, boom}}
	exp := New(backend, quietLogger(), 3)

	err := exp.ExportSpans(context.Background(), testSpans("ev-1"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if backend.calls() != 2 {
		t.Errorf("expected recovery to stop after the terminal error, got %d submissions", backend.calls())
	}
}

func TestExportAfterShutdownIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	exp := New(backend, quietLogger(), 0)

	if err := exp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := exp.ExportSpans(context.Background(), testSpans("ev-1")); err != nil {
		t.Fatalf("post-shutdown export: %v", err)
	}
	if backend.calls() != 0 {
		t.Errorf("post-shutdown export reached the backend")
	}
	// Shutdown is idempotent.
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
