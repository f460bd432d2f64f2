package otelx

import (
	"fmt"
	"time"

	"github.com/ARUMANDESU/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func RecordSpanError(span trace.Span, err error, desc string) {
	if span == nil || err == nil {
		return
	}
	if desc == "" {
		desc = err.Error()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, desc)
}

// SetSpanAttrs converts a map of plain Go values into span attributes.
// Values of unknown types are formatted with %v.
func SetSpanAttrs(span trace.Span, attrs map[string]any) {
	if span == nil || len(attrs) == 0 {
		return
	}

	spanAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		spanAttrs = append(spanAttrs, Attr(key, value))
	}

	span.SetAttributes(spanAttrs...)
}

func Attr(key string, value any) attribute.KeyValue {
	value, isNil := validation.Indirect(value)
	if isNil {
		return attribute.String(key, "<nil>")
	}

	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case time.Time:
		return attribute.String(key, v.Format(time.RFC3339Nano))
	case time.Duration:
		return attribute.String(key, v.String())
	case uuid.UUID:
		return attribute.String(key, v.String())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
