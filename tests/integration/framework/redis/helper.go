package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisrepo "gitlab.com/ucmsv2/idbroker/internal/adapters/repos/redis"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
)

type Helper struct {
	client *redis.Client
	repo   *redisrepo.SessionRepo
}

func NewHelper(client *redis.Client) *Helper {
	return &Helper{client: client, repo: redisrepo.NewSessionRepo(client, nil, nil)}
}

func key(id loginsession.ID) string {
	return "session:" + id.String()
}

// SeedSession stores s the same way the issuer does, with ttl.
func (h *Helper) SeedSession(t *testing.T, s *loginsession.Session, ttl time.Duration) {
	t.Helper()

	require.NoError(t, h.repo.SaveSession(t.Context(), s))
	require.NoError(t, h.repo.ExpireSession(t.Context(), s.ID(), ttl))
}

func (h *Helper) RequireSessionExists(t *testing.T, id loginsession.ID) *loginsession.SessionAssertion {
	t.Helper()

	s, err := h.repo.GetSession(t.Context(), id)
	require.NoError(t, err, "expected session %s to exist", id)
	return loginsession.NewSessionAssertion(s)
}

func (h *Helper) AssertSessionNotExists(t *testing.T, id loginsession.ID) {
	t.Helper()

	_, err := h.repo.GetSession(t.Context(), id)
	assert.True(t, errors.Is(err, loginsession.ErrSessionNotFound), "expected session %s to be gone, got %v", id, err)
}

func (h *Helper) TTL(t *testing.T, id loginsession.ID) time.Duration {
	t.Helper()

	ttl, err := h.client.TTL(t.Context(), key(id)).Result()
	require.NoError(t, err)
	return ttl
}

// Expire makes the session vanish as if its time to live had run out.
func (h *Helper) Expire(t *testing.T, id loginsession.ID) {
	t.Helper()

	require.NoError(t, h.client.Del(t.Context(), key(id)).Err())
}

func (h *Helper) Flush(t *testing.T) {
	t.Helper()

	require.NoError(t, h.client.FlushDB(t.Context()).Err())
}
