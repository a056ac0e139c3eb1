package auth

import (
	"errors"
	"regexp"
	"time"

	"github.com/nerrad567/conveyor-core/internal/ledger"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// pinPattern is exactly four ASCII digits.
var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// IsValidPIN reports whether pin is exactly four digits.
func IsValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// Login is the result of a successful PIN login.
type Login struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Operator  ledger.Operator `json:"operator"`
	Session   ledger.Session  `json:"session"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidPIN         = errors.New("PIN must be 4 digits")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidCredentials = errors.New("invalid PIN")
	ErrNoOperators        = errors.New("no operators registered")
	ErrUsernameExists     = errors.New("username already exists")
	ErrPINInUse           = errors.New("PIN already in use")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrSessionClosed      = errors.New("session has ended")
)
