package clientcreds

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidDescriptor is wrapped by errors returned for unusable descriptors.
	// No request is sent when this error is returned.
	ErrInvalidDescriptor = errors.New("clientcreds: invalid resource descriptor")

	// ErrMalformedResponse is wrapped by errors returned when the token endpoint
	// answers 2xx with a body that cannot be turned into an access token.
	ErrMalformedResponse = errors.New("clientcreds: malformed token response")
)

// TokenError is returned when the token endpoint answers with a non-2xx status.
//
// WWWAuthenticate is the challenge header exactly as received. ErrorCode and
// ErrorDescription are filled from an RFC 6749 error body when one is present.
type TokenError struct {
	StatusCode       int
	WWWAuthenticate  string
	Body             string
	ErrorCode        string
	ErrorDescription string
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("clientcreds: token endpoint returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.ErrorCode != "" {
		msg += ": " + e.ErrorCode
		if e.ErrorDescription != "" {
			msg += " (" + e.ErrorDescription + ")"
		}
	}
	return msg
}

// ConnectivityError is returned when the token request could not be completed
// at the transport level (DNS, refused connection, timeout, cancellation).
type ConnectivityError struct {
	TokenURL string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("clientcreds: token request to %s failed: %v", e.TokenURL, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err contains a TokenError with status 401.
func IsUnauthorized(err error) bool {
	var tokenErr *TokenError
	return errors.As(err, &tokenErr) && tokenErr.StatusCode == http.StatusUnauthorized
}
