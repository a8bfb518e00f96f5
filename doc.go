// Package agentrail instruments agent and LLM workloads and reports
// structured execution data (sessions, model calls, tool invocations,
// actions, errors) to a collector backend.
//
// Usage:
//
//	client, err := agentrail.New(agentrail.WithAPIKey(key))
//	sess, err := client.StartSession(ctx, "prod", "checkout-agent")
//
//	ev := &event.Tool{Envelope: event.New(), Name: "file_read"}
//	ev.Params = map[string]any{"path": "/data/report.csv"}
//	ev.End(time.Now())
//	_ = sess.Record(ev)
//
//	sess.End(ctx, agentrail.EndStateSuccess, "run complete")
//
// Recording is local and non-blocking: events become spans, a batch
// processor buffers them off the caller's path, and the exporter ships
// them in batches with duplicate-key recovery. Telemetry delivery
// failures are logged and never surface into the instrumented
// application's control flow.
package agentrail
