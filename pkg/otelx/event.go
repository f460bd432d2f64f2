package otelx

import "context"

type OtelTracePropagator interface {
	Propagate(ctx context.Context)
}

type OtelTraceExtractor interface {
	Extract() context.Context
}

// PropagateTo injects the trace context of ctx into v when v can carry one.
func PropagateTo(ctx context.Context, v any) {
	if p, ok := v.(OtelTracePropagator); ok {
		p.Propagate(ctx)
	}
}

func ContextFromExtractor(extractor OtelTraceExtractor) context.Context {
	if extractor == nil {
		return context.Background()
	}
	return extractor.Extract()
}
