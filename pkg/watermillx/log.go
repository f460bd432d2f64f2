package watermillx

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// SlogAdapter routes watermill logs into slog. A record is dropped when it is
// below minLevel or when the global OTel logger provider has it disabled.
type SlogAdapter struct {
	logger     *slog.Logger
	minLevel   slog.Level
	otelLogger log.Logger
}

func NewSlogAdapter(logger *slog.Logger, minLevel slog.Level) watermill.LoggerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{
		logger:     logger,
		minLevel:   minLevel,
		otelLogger: global.GetLoggerProvider().Logger("idbroker/watermill"),
	}
}

func severity(level slog.Level) log.Severity {
	switch {
	case level >= slog.LevelError:
		return log.SeverityError
	case level >= slog.LevelWarn:
		return log.SeverityWarn
	case level >= slog.LevelInfo:
		return log.SeverityInfo
	case level >= slog.LevelDebug:
		return log.SeverityDebug
	default:
		return log.SeverityTrace
	}
}

func (l *SlogAdapter) enabled(level slog.Level) bool {
	if level < l.minLevel {
		return false
	}
	return l.otelLogger.Enabled(context.Background(), log.EnabledParameters{Severity: severity(level)})
}

func (l *SlogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	if l.enabled(slog.LevelError) {
		l.logger.ErrorContext(context.Background(), msg, l.fieldsToAttrs(fields, slog.Any("error", err))...)
	}
}

func (l *SlogAdapter) Info(msg string, fields watermill.LogFields) {
	if l.enabled(slog.LevelInfo) {
		l.logger.InfoContext(context.Background(), msg, l.fieldsToAttrs(fields)...)
	}
}

func (l *SlogAdapter) Debug(msg string, fields watermill.LogFields) {
	if l.enabled(slog.LevelDebug) {
		l.logger.DebugContext(context.Background(), msg, l.fieldsToAttrs(fields)...)
	}
}

// Trace is emitted at debug level since slog has nothing lower.
func (l *SlogAdapter) Trace(msg string, fields watermill.LogFields) {
	if l.minLevel < slog.LevelDebug && l.enabled(slog.LevelDebug-1) {
		l.logger.DebugContext(context.Background(), msg, l.fieldsToAttrs(fields)...)
	}
}

func (l *SlogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &SlogAdapter{
		logger:     l.logger.With(l.fieldsToAttrs(fields)...),
		minLevel:   l.minLevel,
		otelLogger: l.otelLogger,
	}
}

func (l *SlogAdapter) fieldsToAttrs(fields watermill.LogFields, extra ...slog.Attr) []any {
	attrs := make([]any, 0, len(fields)+len(extra))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	for _, attr := range extra {
		attrs = append(attrs, attr)
	}
	return attrs
}
