package clientcreds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// AccessToken is the result of a successful client-credentials exchange.
//
// RefreshToken is always empty: the client-credentials grant never issues one,
// and a refresh_token sent by a misbehaving server is discarded.
type AccessToken struct {
	Value        string
	TokenType    string
	ExpiresIn    time.Duration // zero when the server did not report a lifetime
	Expiry       time.Time     // receipt time plus ExpiresIn, zero when unknown
	Scope        []string
	RefreshToken string

	// Extra holds response members not mapped to a field above.
	Extra map[string]any
}

// Type returns the token type, defaulting to "Bearer" when the server omitted it.
func (t *AccessToken) Type() string {
	if t.TokenType == "" {
		return "Bearer"
	}
	return t.TokenType
}

// HasScope reports whether scope was granted.
func (t *AccessToken) HasScope(scope string) bool {
	for _, s := range t.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// Valid reports whether the token has a value and is not expired at now.
// Tokens without a known expiry are considered valid.
func (t *AccessToken) Valid(now time.Time) bool {
	if t == nil || t.Value == "" {
		return false
	}
	return t.Expiry.IsZero() || now.Before(t.Expiry)
}

// OAuth2Token converts the token to the golang.org/x/oauth2 representation.
// The granted scope is exposed through Extra("scope").
func (t *AccessToken) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: t.Value,
		TokenType:   t.Type(),
		Expiry:      t.Expiry,
		ExpiresIn:   int64(t.ExpiresIn / time.Second),
	}

	extra := make(map[string]any, len(t.Extra)+1)
	for k, v := range t.Extra {
		extra[k] = v
	}
	if len(t.Scope) > 0 {
		extra["scope"] = strings.Join(t.Scope, " ")
	}
	return tok.WithExtra(extra)
}

type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    json.RawMessage `json:"expires_in"`
	Scope        json.RawMessage `json:"scope"`
	RefreshToken string          `json:"refresh_token"`
}

var knownMembers = []string{"access_token", "token_type", "expires_in", "scope", "refresh_token"}

// decodeToken parses a 2xx token endpoint body. requested is echoed as the
// granted scope when the response carries no scope member or a null one.
// An empty scope string counts as present and grants no scope.
func decodeToken(body []byte, requested []string, received time.Time) (*AccessToken, bool, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.AccessToken == "" {
		return nil, false, fmt.Errorf("%w: missing access_token", ErrMalformedResponse)
	}

	expiresIn, err := parseExpiresIn(resp.ExpiresIn)
	if err != nil {
		return nil, false, err
	}

	scope, present, err := parseScope(resp.Scope)
	if err != nil {
		return nil, false, err
	}
	if !present {
		scope = requested
	}

	tok := &AccessToken{
		Value:     resp.AccessToken,
		TokenType: resp.TokenType,
		ExpiresIn: expiresIn,
		Scope:     scopeSet(scope),
		Extra:     extraMembers(body),
	}
	if expiresIn > 0 {
		tok.Expiry = received.Add(expiresIn)
	}

	return tok, resp.RefreshToken != "", nil
}

func parseExpiresIn(raw json.RawMessage) (time.Duration, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: expires_in: %v", ErrMalformedResponse, err)
		}
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return 0, fmt.Errorf("%w: invalid expires_in %s", ErrMalformedResponse, raw)
	}
	if seconds > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("%w: expires_in out of range %s", ErrMalformedResponse, raw)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// parseScope accepts the standard space-delimited string as well as a JSON array.
func parseScope(raw json.RawMessage) ([]string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, fmt.Errorf("%w: scope: %v", ErrMalformedResponse, err)
		}
		return strings.Fields(s), true, nil
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false, fmt.Errorf("%w: scope: %v", ErrMalformedResponse, err)
		}
		return list, true, nil
	default:
		return nil, false, fmt.Errorf("%w: invalid scope %s", ErrMalformedResponse, raw)
	}
}

// scopeSet removes blanks and duplicates while keeping first-seen order.
func scopeSet(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func extraMembers(body []byte) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var all map[string]any
	if err := dec.Decode(&all); err != nil {
		return nil
	}
	for _, k := range knownMembers {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// newTokenError builds a TokenError, parsing RFC 6749 error members when possible.
func newTokenError(status int, challenge string, body []byte) *TokenError {
	tokenErr := &TokenError{
		StatusCode:      status,
		WWWAuthenticate: challenge,
		Body:            string(body),
	}

	var resp errorResponse
	if json.Unmarshal(body, &resp) == nil {
		tokenErr.ErrorCode = resp.Error
		tokenErr.ErrorDescription = resp.ErrorDescription
	}

	return tokenErr
}
