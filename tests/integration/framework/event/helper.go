package event

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultWait = 5 * time.Second

var marshaler = cqrs.JSONMarshaler{}

type received struct {
	name    string
	payload []byte
}

// Helper records every message published on a topic of the event bus.
type Helper struct {
	mu       sync.Mutex
	messages []received
}

// NewHelper subscribes to topic and records messages until ctx is done.
func NewHelper(ctx context.Context, sub message.Subscriber, topic string) (*Helper, error) {
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	h := &Helper{}
	go func() {
		for msg := range msgs {
			h.mu.Lock()
			h.messages = append(h.messages, received{
				name:    marshaler.NameFromMessage(msg),
				payload: append([]byte(nil), msg.Payload...),
			})
			h.mu.Unlock()
			msg.Ack()
		}
	}()

	return h, nil
}

func (h *Helper) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = nil
}

func (h *Helper) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, m := range h.messages {
		if m.name == name {
			n++
		}
	}
	return n
}

func (h *Helper) last(name string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].name == name {
			return h.messages[i].payload, true
		}
	}
	return nil, false
}

// Raw returns every recorded payload joined by newlines.
func (h *Helper) Raw() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	for _, m := range h.messages {
		b.Write(m.payload)
		b.WriteByte('\n')
	}
	return b.String()
}

// RequireEvent waits for an event of type T and returns the last one received.
func RequireEvent[T any](t *testing.T, h *Helper) *T {
	t.Helper()

	e := new(T)
	name := marshaler.Name(e)

	require.Eventually(t, func() bool { return h.count(name) > 0 }, defaultWait, 20*time.Millisecond,
		"event %s was not published", name)

	payload, _ := h.last(name)
	require.NoError(t, json.Unmarshal(payload, e), "failed to decode %s", name)
	return e
}

// AssertEventCount waits until exactly n events of type T have been received.
func AssertEventCount[T any](t *testing.T, h *Helper, n int) {
	t.Helper()

	name := marshaler.Name(new(T))
	assert.Eventually(t, func() bool { return h.count(name) == n }, defaultWait, 20*time.Millisecond,
		"expected %d %s events, got %d", n, name, h.count(name))
}

// AssertNoEvent gives in-flight deliveries a short grace period before checking.
func AssertNoEvent[T any](t *testing.T, h *Helper) {
	t.Helper()

	name := marshaler.Name(new(T))
	assert.Never(t, func() bool { return h.count(name) > 0 }, 200*time.Millisecond, 20*time.Millisecond,
		"expected no %s events", name)
}
