package providers

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Provider streams LLM responses as Events and returns a final MessageResponse.
// Providers MUST NOT close the eventChan; the caller owns the channel lifecycle.
type Provider interface {
	Stream(ctx context.Context, options Options, eventChan chan<- Event) (*MessageResponse, error)
}

var providerTracer = otel.Tracer("inference-gateway/providers")

// startStreamSpan opens the span every Stream implementation wraps itself
// in, tagging the upstream vendor and model so a trace backend can break
// down latency/error rate per provider the way db.Storage's spans do per
// query (db/action.go).
func startStreamSpan(ctx context.Context, vendor string, options Options) (context.Context, trace.Span) {
	ctx, span := providerTracer.Start(ctx, vendor+".Stream")
	span.SetAttributes(
		attribute.String("gen_ai.system", vendor),
		attribute.String("gen_ai.request.model", options.Params.Model),
	)
	return ctx, span
}

// endStreamSpan records the Stream outcome on span before the deferred End.
func endStreamSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
