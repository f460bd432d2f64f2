package errorx

type Code string

func (c Code) String() string {
	return string(c)
}

const (
	// Client errors (4xx)
	CodeInvalid           Code = "INVALID"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeMethodNotAllowed  Code = "METHOD_NOT_ALLOWED"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"

	// Business logic
	CodeBusinessRuleViolation Code = "BUSINESS_RULE_VIOLATION"

	// Server errors (5xx)
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)
