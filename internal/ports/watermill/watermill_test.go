package watermill

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/ucmsv2/idbroker/internal/application/audit"
	"gitlab.com/ucmsv2/idbroker/internal/domain/event"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/pkg/watermillx"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPort_RoutesLoginEventsToAudit(t *testing.T) {
	wmlogger := watermillx.NewSlogAdapter(slog.Default(), slog.LevelError)
	pubsub := watermillx.NewGoChannel(wmlogger)
	t.Cleanup(func() { _ = pubsub.Close() })

	router, err := message.NewRouter(message.RouterConfig{}, wmlogger)
	require.NoError(t, err)

	logs := &syncBuffer{}
	auditApp, err := audit.NewApp(audit.Args{Logger: slog.New(slog.NewTextHandler(logs, nil))})
	require.NoError(t, err)

	port, err := NewPort(router, pubsub, wmlogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, port.Run(ctx, AppEventHandlers{Audit: auditApp}))

	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	publisher, err := watermillx.NewPublisher(pubsub, wmlogger)
	require.NoError(t, err)

	id := loginsession.ID("sess-1")
	require.NoError(t, publisher.Publish(ctx,
		&loginsession.LoginCodeIssued{Header: event.NewEventHeader(), SessionID: id, Email: "alice@example.com", ClientID: "app-1"},
		&loginsession.LoginVerificationFailed{Header: event.NewEventHeader(), SessionID: id, Reason: loginsession.ReasonIncorrectCode, Attempts: 1},
		&loginsession.LoginVerified{Header: event.NewEventHeader(), SessionID: id, Email: "alice@example.com", ClientID: "app-1"},
	))

	require.Eventually(t, func() bool {
		out := logs.String()
		return strings.Contains(out, "audit: login code issued") &&
			strings.Contains(out, "audit: login verification failed") &&
			strings.Contains(out, "audit: login verified")
	}, 5*time.Second, 20*time.Millisecond)

	assert.NotContains(t, logs.String(), "alice@example.com")
}

func TestPort_RunRequiresAuditHandler(t *testing.T) {
	wmlogger := watermillx.NewSlogAdapter(slog.Default(), slog.LevelError)
	pubsub := watermillx.NewGoChannel(wmlogger)
	t.Cleanup(func() { _ = pubsub.Close() })

	router, err := message.NewRouter(message.RouterConfig{}, wmlogger)
	require.NoError(t, err)

	port, err := NewPort(router, pubsub, wmlogger)
	require.NoError(t, err)

	assert.Error(t, port.Run(context.Background(), AppEventHandlers{}))
}
