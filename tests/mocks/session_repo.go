package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
)

type sessionRecord struct {
	args      loginsession.RehydrateArgs
	expiresAt time.Time
}

// SessionRepo is an in-memory stand-in for the Redis session store.
// Records behave like Redis hashes: saving keeps an existing expiry, expiring a missing key fails.
type SessionRepo struct {
	mu        sync.Mutex
	db        map[loginsession.ID]*sessionRecord
	now       func() time.Time
	saveErr   error
	expireErr error
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		db:  make(map[loginsession.ID]*sessionRecord),
		now: time.Now,
	}
}

// WithClock replaces the clock used to evaluate expiry.
func (r *SessionRepo) WithClock(now func() time.Time) *SessionRepo {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.now = now
	return r
}

func (r *SessionRepo) FailSave(err error) *SessionRepo {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveErr = err
	return r
}

func (r *SessionRepo) FailExpire(err error) *SessionRepo {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireErr = err
	return r
}

func (r *SessionRepo) SaveSession(ctx context.Context, s *loginsession.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s == nil {
		return errors.New("session cannot be nil")
	}
	if r.saveErr != nil {
		return r.saveErr
	}

	rec := r.live(s.ID())
	if rec == nil {
		rec = &sessionRecord{}
		r.db[s.ID()] = rec
	}
	rec.args = loginsession.RehydrateArgs{
		ID:          s.ID(),
		Email:       s.Email().String(),
		ClientID:    s.ClientID(),
		Code:        s.Code(),
		RedirectURI: s.RedirectURI(),
	}

	return nil
}

func (r *SessionRepo) ExpireSession(ctx context.Context, id loginsession.ID, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expireErr != nil {
		return r.expireErr
	}

	rec := r.live(id)
	if rec == nil {
		return fmt.Errorf("expire session %s: key does not exist", id)
	}
	rec.expiresAt = r.now().Add(ttl)

	return nil
}

func (r *SessionRepo) UpdateSession(
	ctx context.Context,
	id loginsession.ID,
	fn func(context.Context, *loginsession.Session) error,
) error {
	if fn == nil {
		return errors.New("update function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.live(id)
	if rec == nil {
		return loginsession.ErrSessionNotFound
	}

	s := loginsession.Rehydrate(rec.args)
	fnerr := fn(ctx, s)
	if fnerr != nil && !errorx.IsPersistable(fnerr) {
		return fmt.Errorf("failed to apply update function: %w", fnerr)
	}

	if s.Terminated() {
		delete(r.db, id)
	} else {
		rec.args.Attempts = s.Attempts()
	}

	if fnerr != nil {
		return fmt.Errorf("failed to apply update function: %w", fnerr)
	}
	return nil
}

func (r *SessionRepo) live(id loginsession.ID) *sessionRecord {
	rec, ok := r.db[id]
	if !ok {
		return nil
	}
	if !rec.expiresAt.IsZero() && !r.now().Before(rec.expiresAt) {
		delete(r.db, id)
		return nil
	}
	return rec
}

func (r *SessionRepo) SeedSession(t *testing.T, s *loginsession.Session, ttl time.Duration) {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.db[s.ID()]; exists {
		t.Fatalf("session with ID %s already exists", s.ID())
	}

	rec := &sessionRecord{
		args: loginsession.RehydrateArgs{
			ID:          s.ID(),
			Email:       s.Email().String(),
			ClientID:    s.ClientID(),
			Code:        s.Code(),
			RedirectURI: s.RedirectURI(),
			Attempts:    s.Attempts(),
		},
	}
	if ttl > 0 {
		rec.expiresAt = r.now().Add(ttl)
	}
	r.db[s.ID()] = rec
}

func (r *SessionRepo) TTL(id loginsession.ID) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.live(id)
	if rec == nil || rec.expiresAt.IsZero() {
		return 0, false
	}
	return rec.expiresAt.Sub(r.now()), true
}

func (r *SessionRepo) AssertSessionExists(t *testing.T, id loginsession.ID) *loginsession.SessionAssertion {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.live(id)
	if rec == nil {
		t.Fatalf("expected session %s to exist, but it does not", id)
		return nil
	}
	return loginsession.NewSessionAssertion(loginsession.Rehydrate(rec.args))
}

func (r *SessionRepo) AssertSessionNotExists(t *testing.T, id loginsession.ID) *SessionRepo {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec := r.live(id); rec != nil {
		t.Errorf("expected session %s to not exist, but it does", id)
	}
	return r
}

func (r *SessionRepo) AssertSessionCount(t *testing.T, n int) *SessionRepo {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.db) != n {
		t.Errorf("expected %d sessions, got %d", n, len(r.db))
	}
	return r
}
