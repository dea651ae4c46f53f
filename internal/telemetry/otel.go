// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bluepyll")

// StartSpan opens a span parented on ctx. A non-empty correlation ID is
// attached as an attribute so traces can be tied to a workflow.
func StartSpan(ctx context.Context, name, correlationID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if correlationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", correlationID))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on the span when non-nil.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
}
