package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
)

const (
	keyPrefix = "session:"

	fieldEmail    = "email"
	fieldClientID = "client_id"
	fieldCode     = "code"
	fieldRedirect = "redirect"
	fieldAttempts = "attempts"

	maxTxRetries = 3
)

var (
	ErrNilFunc      = errors.New("update function cannot be nil")
	ErrKeyNotExists = errors.New("key does not exist")
)

// SessionRepo keeps each login session as a hash under session:<id>.
type SessionRepo struct {
	tracer trace.Tracer
	logger *slog.Logger
	client redis.UniversalClient
}

// NewSessionRepo creates a new instance of SessionRepo.
//
// WARNING: panics if client is nil
func NewSessionRepo(client redis.UniversalClient, t trace.Tracer, l *slog.Logger) *SessionRepo {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if t == nil {
		t = tracer
	}
	if l == nil {
		l = logger
	}

	return &SessionRepo{
		tracer: t,
		logger: l,
		client: client,
	}
}

func sessionKey(id loginsession.ID) string {
	return keyPrefix + id.String()
}

// SaveSession writes every field in one HSET. An existing expiry on the key is left as is.
func (r *SessionRepo) SaveSession(ctx context.Context, s *loginsession.Session) error {
	const op = "redis.SessionRepo.SaveSession"
	ctx, span := r.tracer.Start(ctx, "SessionRepo.SaveSession",
		trace.WithAttributes(attribute.String("login.session_id", s.ID().String())),
	)
	defer span.End()

	err := r.client.HSet(ctx, sessionKey(s.ID()), sessionFields(s)).Err()
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to write session hash")
		return errorx.Wrap(err, op)
	}

	return nil
}

func (r *SessionRepo) ExpireSession(ctx context.Context, id loginsession.ID, ttl time.Duration) error {
	const op = "redis.SessionRepo.ExpireSession"
	ctx, span := r.tracer.Start(ctx, "SessionRepo.ExpireSession",
		trace.WithAttributes(
			attribute.String("login.session_id", id.String()),
			attribute.Int64("login.ttl_seconds", int64(ttl.Seconds())),
		),
	)
	defer span.End()

	ok, err := r.client.Expire(ctx, sessionKey(id), ttl).Result()
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to set session expiry")
		return errorx.Wrap(err, op)
	}
	if !ok {
		otelx.RecordSpanError(span, ErrKeyNotExists, "session key missing while setting expiry")
		return errorx.Wrap(ErrKeyNotExists, op)
	}

	return nil
}

// UpdateSession loads the session under WATCH, applies fn and writes the result in a MULTI block.
// A terminated session is deleted, otherwise only the attempt counter is written back.
// A persistable error from fn is returned after the write.
func (r *SessionRepo) UpdateSession(
	ctx context.Context,
	id loginsession.ID,
	fn func(context.Context, *loginsession.Session) error,
) error {
	const op = "redis.SessionRepo.UpdateSession"
	ctx, span := r.tracer.Start(ctx, "SessionRepo.UpdateSession",
		trace.WithAttributes(attribute.String("login.session_id", id.String())),
	)
	defer span.End()

	if fn == nil {
		otelx.RecordSpanError(span, ErrNilFunc, "update function cannot be nil")
		return ErrNilFunc
	}

	key := sessionKey(id)
	var fnerr error
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read session hash: %w", err)
		}
		if len(fields) == 0 {
			return loginsession.ErrSessionNotFound
		}

		s, err := sessionFromFields(id, fields)
		if err != nil {
			return err
		}

		fnerr = fn(ctx, s)
		if fnerr != nil && !errorx.IsPersistable(fnerr) {
			return fnerr
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if s.Terminated() {
				pipe.Del(ctx, key)
			} else {
				pipe.HSet(ctx, key, fieldAttempts, s.Attempts())
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		fnerr = nil
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		span.AddEvent("session changed concurrently, retrying", trace.WithAttributes(attribute.Int("attempt", attempt+1)))
	}
	if errors.Is(err, redis.TxFailedErr) {
		r.logger.WarnContext(ctx, "gave up updating contended login session", slog.String("session_id", id.String()))
		err = fmt.Errorf("session %s kept changing: %w", id, loginsession.ErrSessionNotFound)
	}
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to update session")
		return errorx.Wrap(err, op)
	}

	if fnerr != nil {
		otelx.RecordSpanError(span, fnerr, "update function returned an error but is allowed to continue")
		return errorx.Wrap(fnerr, op)
	}

	return nil
}

// GetSession reads the record without touching it.
func (r *SessionRepo) GetSession(ctx context.Context, id loginsession.ID) (*loginsession.Session, error) {
	const op = "redis.SessionRepo.GetSession"
	ctx, span := r.tracer.Start(ctx, "SessionRepo.GetSession",
		trace.WithAttributes(attribute.String("login.session_id", id.String())),
	)
	defer span.End()

	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to read session hash")
		return nil, errorx.Wrap(err, op)
	}
	if len(fields) == 0 {
		return nil, errorx.Wrap(loginsession.ErrSessionNotFound, op)
	}

	s, err := sessionFromFields(id, fields)
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to decode session")
		return nil, errorx.Wrap(err, op)
	}

	return s, nil
}

// Ping reports whether the store answers.
func (r *SessionRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func sessionFields(s *loginsession.Session) map[string]any {
	return map[string]any{
		fieldEmail:    s.Email().String(),
		fieldClientID: s.ClientID(),
		fieldCode:     s.Code(),
		fieldRedirect: s.RedirectURI(),
		fieldAttempts: 0,
	}
}

func sessionFromFields(id loginsession.ID, fields map[string]string) (*loginsession.Session, error) {
	var attempts int
	if raw, ok := fields[fieldAttempts]; ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt attempts field %q: %w", raw, err)
		}
		attempts = n
	}

	return loginsession.Rehydrate(loginsession.RehydrateArgs{
		ID:          id,
		Email:       fields[fieldEmail],
		ClientID:    fields[fieldClientID],
		Code:        fields[fieldCode],
		RedirectURI: fields[fieldRedirect],
		Attempts:    attempts,
	}), nil
}
