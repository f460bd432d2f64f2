package fixtures

import "time"

// Test emails
const (
	ValidEmail       = "alice@example.com"
	ValidEmail2      = "bob@example.com"
	MixedCaseEmail   = "Alice@EXAMPLE.com"
	CanonicalEmail   = "Alice@example.com"
	InvalidEmail     = "notanemail"
	DisplayNameEmail = "Alice <alice@example.com>"
)

const (
	ClientID          = "rp-1"
	ClientID2         = "rp-2"
	ClientName        = "Relying Party"
	RedirectURI       = "https://rp.example.com/cb"
	RedirectURI2      = "http://localhost:3000/cb"
	UnregisteredURI   = "https://evil.example.com/cb"
	BaseURL           = "https://id.example.com"
	SenderAddress     = "noreply@example.com"
	SenderName        = "Identity Broker"
	JWTIssuer         = "https://id.example.com"
	KnownCode         = "a7KmQ2"
	WrongCode         = "a7KmQ3"
	SessionTTL        = 15 * time.Minute
	MaxAttempts       = 5
	UnknownSessionID  = "c2Vzc2lvbi1kb2VzLW5vdC1leGlzdA"
	DefaultCodeLength = 6
)

var (
	SessionIDKey = []byte("test-session-id-key-0123456789ab")
	JWTSecret    = []byte("test-jwt-secret-0123456789abcdef")
)
