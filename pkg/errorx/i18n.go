package errorx

import (
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// I18nError is a coded error carrying the key of its localised message.
// The With* methods return copies, so package level sentinels stay untouched
// and errors.Is keeps matching a derived error against its sentinel.
type I18nError struct {
	cause              error
	MessageKey         string
	MessageArgs        map[string]any
	MessagePluralCount any
	HTTPCode           int
	Code               Code
}

func (e *I18nError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.MessageKey)
	}

	return fmt.Sprintf("[%s] %s: %s", e.Code, e.MessageKey, e.cause)
}

func (e *I18nError) Unwrap() error {
	return e.cause
}

func (e *I18nError) Is(target error) bool {
	t, ok := target.(*I18nError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.MessageKey == t.MessageKey
}

// Localize renders the message in the localizer's language, falling back to the key itself.
func (e *I18nError) Localize(localizer *i18n.Localizer) string {
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    e.MessageKey,
		TemplateData: e.MessageArgs,
		PluralCount:  e.MessagePluralCount,
	})
	if err != nil || msg == "" {
		return e.MessageKey
	}
	return msg
}

func (e *I18nError) HTTPStatusCode() int {
	if e.HTTPCode != 0 {
		return e.HTTPCode
	}

	return HTTPStatusCode(e.Code)
}

func (e *I18nError) clone() *I18nError {
	c := *e
	c.MessageArgs = maps.Clone(e.MessageArgs)
	return &c
}

func (e *I18nError) WithHTTPCode(code int) *I18nError {
	c := e.clone()
	c.HTTPCode = code
	return c
}

func (e *I18nError) WithKey(key string) *I18nError {
	c := e.clone()
	c.MessageKey = key
	return c
}

func (e *I18nError) WithArgs(args map[string]any) *I18nError {
	c := e.clone()
	if c.MessageArgs == nil {
		c.MessageArgs = make(map[string]any, len(args))
	}

	maps.Copy(c.MessageArgs, args)

	return c
}

func (e *I18nError) WithCause(cause error) *I18nError {
	c := e.clone()
	c.cause = cause
	return c
}

func New(messageKey string) *I18nError {
	return &I18nError{
		MessageKey:  messageKey,
		MessageArgs: make(map[string]any),
		HTTPCode:    500,
		Code:        CodeInternal,
	}
}

func HTTPStatusCode(code Code) int {
	switch code {
	case CodeInternal:
		return http.StatusInternalServerError
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalid, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}

	var i18nErr *I18nError
	if errors.As(err, &i18nErr) {
		return i18nErr.Code == code
	}

	return false
}

func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// Client Errors (4xx)
func NewInvalidRequest() *I18nError {
	return &I18nError{
		MessageKey: "invalid",
		Code:       CodeInvalid,
		HTTPCode:   http.StatusBadRequest,
	}
}

func NewValidationFailed() *I18nError {
	return &I18nError{
		MessageKey: "validation_failed",
		Code:       CodeValidationFailed,
		HTTPCode:   http.StatusBadRequest,
	}
}

func NewValidationFieldFailed(field string) *I18nError {
	return &I18nError{
		MessageKey:  "validation_failed_field",
		MessageArgs: map[string]any{"Field": field},
		Code:        CodeValidationFailed,
		HTTPCode:    http.StatusBadRequest,
	}
}

func NewUnauthorized() *I18nError {
	return &I18nError{
		MessageKey: "unauthorized",
		Code:       CodeUnauthorized,
		HTTPCode:   http.StatusUnauthorized,
	}
}

func NewNotFound() *I18nError {
	return &I18nError{
		MessageKey: "not_found",
		Code:       CodeNotFound,
		HTTPCode:   http.StatusNotFound,
	}
}

func NewMethodNotAllowed() *I18nError {
	return &I18nError{
		MessageKey: "method_not_allowed",
		Code:       CodeMethodNotAllowed,
		HTTPCode:   http.StatusMethodNotAllowed,
	}
}

func NewConflict() *I18nError {
	return &I18nError{
		MessageKey: "conflict",
		Code:       CodeConflict,
		HTTPCode:   http.StatusConflict,
	}
}

func NewRateLimitExceeded() *I18nError {
	return &I18nError{
		MessageKey: "rate_limit_exceeded",
		Code:       CodeRateLimitExceeded,
		HTTPCode:   http.StatusTooManyRequests,
	}
}

// Business Logic Errors
func NewBusinessRuleViolation() *I18nError {
	return &I18nError{
		MessageKey: "business_rule_violation",
		Code:       CodeBusinessRuleViolation,
		HTTPCode:   http.StatusUnprocessableEntity,
	}
}

// Server Errors (5xx)
func NewInternalError() *I18nError {
	return &I18nError{
		MessageKey: "internal_error",
		Code:       CodeInternal,
		HTTPCode:   http.StatusInternalServerError,
	}
}

func NewServiceUnavailable() *I18nError {
	return &I18nError{
		MessageKey: "service_unavailable",
		Code:       CodeServiceUnavailable,
		HTTPCode:   http.StatusServiceUnavailable,
	}
}
