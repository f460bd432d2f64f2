package redis

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

var (
	tracer = otel.Tracer("idbroker/internal/adapters/repos/redis")
	logger = otelslog.NewLogger("idbroker/internal/adapters/repos/redis")
)
