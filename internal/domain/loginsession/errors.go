package loginsession

import (
	"net/http"

	"gitlab.com/ucmsv2/idbroker/internal/domain/email"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
)

var (
	ErrInvalidAddress  = email.ErrInvalidAddress
	ErrSessionNotFound = errorx.NewNotFound().WithKey("login_session_not_found")
	ErrIncorrectCode   = errorx.NewBusinessRuleViolation().
				WithKey("login_code_incorrect").
				WithHTTPCode(http.StatusUnprocessableEntity)
	ErrTooManyAttempts = errorx.NewRateLimitExceeded().WithKey("login_code_too_many_attempts")

	ErrMissingClientID    = errorx.NewValidationFieldFailed("client_id")
	ErrMissingRedirectURI = errorx.NewValidationFieldFailed("redirect_uri")
)
