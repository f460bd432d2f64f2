package mail

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

var (
	tracer = otel.Tracer("idbroker/internal/adapters/services/mail")
	logger = otelslog.NewLogger("idbroker/internal/adapters/services/mail")
)
