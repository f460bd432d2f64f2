package loginsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/ucmsv2/idbroker/internal/domain/email"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(NewSessionArgs{
		Key:         testKey,
		Email:       email.Address("alice@example.com"),
		ClientID:    "rp-1",
		RedirectURI: "https://rp.example.com/cb",
	})
	require.NoError(t, err)
	return s
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)

	wantID, err := DeriveID(testKey, "alice@example.com", "rp-1")
	require.NoError(t, err)
	assert.Equal(t, wantID, s.ID())
	assert.Equal(t, email.Address("alice@example.com"), s.Email())
	assert.Equal(t, "rp-1", s.ClientID())
	assert.Equal(t, "https://rp.example.com/cb", s.RedirectURI())
	assert.Len(t, s.Code(), DefaultCodeLength)
	assert.Zero(t, s.Attempts())
	assert.False(t, s.Terminated())

	events := s.GetUncommittedEvents()
	require.Len(t, events, 1)
	issued, ok := events[0].(*LoginCodeIssued)
	require.True(t, ok)
	assert.Equal(t, s.ID(), issued.SessionID)
	assert.Equal(t, "alice@example.com", issued.Email)
	assert.Equal(t, "rp-1", issued.ClientID)
}

func TestNewSession_Reissue(t *testing.T) {
	t.Parallel()

	a := newTestSession(t)
	b := newTestSession(t)

	assert.Equal(t, a.ID(), b.ID())
}

func TestNewSession_InvalidArgs(t *testing.T) {
	t.Parallel()

	valid := NewSessionArgs{
		Key:         testKey,
		Email:       "alice@example.com",
		ClientID:    "rp-1",
		RedirectURI: "https://rp.example.com/cb",
	}
	tests := []struct {
		name    string
		mutate  func(a *NewSessionArgs)
		wantErr error
	}{
		{name: "empty email", mutate: func(a *NewSessionArgs) { a.Email = "" }, wantErr: ErrInvalidAddress},
		{name: "empty client", mutate: func(a *NewSessionArgs) { a.ClientID = "" }, wantErr: ErrMissingClientID},
		{name: "empty redirect", mutate: func(a *NewSessionArgs) { a.RedirectURI = "" }, wantErr: ErrMissingRedirectURI},
		{name: "bad key", mutate: func(a *NewSessionArgs) { a.Key = nil }, wantErr: ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := valid
			tt.mutate(&args)
			s, err := NewSession(args)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, s)
		})
	}
}

func TestSession_VerifyCode(t *testing.T) {
	t.Parallel()

	rehydrate := func(attempts int) *Session {
		return Rehydrate(RehydrateArgs{
			ID:          "sid",
			Email:       "alice@example.com",
			ClientID:    "rp-1",
			Code:        "a7KmQ2",
			RedirectURI: "https://rp.example.com/cb",
			Attempts:    attempts,
		})
	}

	t.Run("match single use", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(0)
		err := s.VerifyCode("a7KmQ2", VerifyPolicy{MaxAttempts: 5, SingleUse: true})
		require.NoError(t, err)
		assert.True(t, s.Consumed())
		assert.True(t, s.Terminated())

		events := s.GetUncommittedEvents()
		require.Len(t, events, 1)
		assert.IsType(t, &LoginVerified{}, events[0])

		err = s.VerifyCode("a7KmQ2", VerifyPolicy{MaxAttempts: 5, SingleUse: true})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("match reusable", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(0)
		require.NoError(t, s.VerifyCode("a7KmQ2", VerifyPolicy{}))
		require.NoError(t, s.VerifyCode("a7KmQ2", VerifyPolicy{}))
		assert.False(t, s.Terminated())
	})

	t.Run("match resets attempts", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(4)
		require.NoError(t, s.VerifyCode("a7KmQ2", VerifyPolicy{MaxAttempts: 5}))
		assert.Equal(t, 0, s.Attempts())

		assert.ErrorIs(t, s.VerifyCode("wrong1", VerifyPolicy{MaxAttempts: 5}), ErrIncorrectCode)
		assert.Equal(t, 1, s.Attempts())
		assert.False(t, s.Exhausted())
	})

	t.Run("mismatch is persistable", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(1)
		err := s.VerifyCode("a7KmQ3", VerifyPolicy{MaxAttempts: 5, SingleUse: true})
		assert.ErrorIs(t, err, ErrIncorrectCode)
		assert.True(t, errorx.IsPersistable(err))
		assert.Equal(t, 2, s.Attempts())
		assert.False(t, s.Terminated())

		events := s.GetUncommittedEvents()
		require.Len(t, events, 1)
		failed, ok := events[0].(*LoginVerificationFailed)
		require.True(t, ok)
		assert.Equal(t, ReasonIncorrectCode, failed.Reason)
		assert.Equal(t, 2, failed.Attempts)
	})

	t.Run("case sensitive", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(0)
		assert.ErrorIs(t, s.VerifyCode("A7KMQ2", VerifyPolicy{}), ErrIncorrectCode)
	})

	t.Run("empty code", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(0)
		assert.ErrorIs(t, s.VerifyCode("", VerifyPolicy{}), ErrIncorrectCode)
	})

	t.Run("attempt limit exhausts", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(4)
		err := s.VerifyCode("wrong1", VerifyPolicy{MaxAttempts: 5, SingleUse: true})
		assert.ErrorIs(t, err, ErrTooManyAttempts)
		assert.True(t, errorx.IsPersistable(err))
		assert.True(t, s.Exhausted())
		assert.True(t, s.Terminated())

		// even the right code is refused afterwards
		assert.ErrorIs(t, s.VerifyCode("a7KmQ2", VerifyPolicy{MaxAttempts: 5}), ErrSessionNotFound)
	})

	t.Run("no limit", func(t *testing.T) {
		t.Parallel()
		s := rehydrate(100)
		assert.ErrorIs(t, s.VerifyCode("wrong1", VerifyPolicy{}), ErrIncorrectCode)
		assert.False(t, s.Exhausted())
	})

	t.Run("nil session", func(t *testing.T) {
		t.Parallel()
		var s *Session
		assert.ErrorIs(t, s.VerifyCode("a7KmQ2", VerifyPolicy{}), ErrSessionNotFound)
	})
}

func TestFailureReasonOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ReasonIncorrectCode, FailureReasonOf(errorx.NewPersistable(ErrIncorrectCode)))
	assert.Equal(t, ReasonTooManyAttempts, FailureReasonOf(errorx.NewPersistable(ErrTooManyAttempts)))
	assert.Equal(t, ReasonNotFound, FailureReasonOf(ErrSessionNotFound))
}

func TestSession_NilGetters(t *testing.T) {
	t.Parallel()

	var s *Session
	assert.Empty(t, s.ID())
	assert.Empty(t, s.Email())
	assert.Empty(t, s.ClientID())
	assert.Empty(t, s.Code())
	assert.Empty(t, s.RedirectURI())
	assert.Zero(t, s.Attempts())
	assert.False(t, s.Terminated())
}
