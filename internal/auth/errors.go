package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned by stores when no live record matches.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by CredentialStore.Create when the email is taken.
	ErrConflict = errors.New("conflict")
)

// ErrorKind classifies a domain failure
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindConflict
	KindInvalidCredentials
	KindUnauthenticated
	KindInvalidToken
	KindEmailNotVerified
	KindInvalidOrExpiredToken
	KindRateLimited
	KindInternal
)

var kindNames = map[ErrorKind]string{
	KindInvalidInput:          "InvalidInput",
	KindConflict:              "Conflict",
	KindInvalidCredentials:    "InvalidCredentials",
	KindUnauthenticated:       "Unauthenticated",
	KindInvalidToken:          "InvalidToken",
	KindEmailNotVerified:      "EmailNotVerified",
	KindInvalidOrExpiredToken: "InvalidOrExpiredToken",
	KindRateLimited:           "RateLimited",
	KindInternal:              "Internal",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// HTTPStatus maps the kind to its response status code
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindInvalidOrExpiredToken:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthenticated, KindInvalidToken:
		return http.StatusUnauthorized
	case KindEmailNotVerified:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain failure whose Message is safe to show to clients
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter int
	Expired    bool
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the kind of a domain error, or KindInternal for anything else
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Messages that must stay identical across branches to avoid account enumeration.
const (
	msgInvalidCredentials = "Invalid email or password"
	msgForgotPassword     = "If an account exists with this email, a password reset link has been sent."
	msgSessionNotFound    = "Refresh token not found or expired"
)
