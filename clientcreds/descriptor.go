package clientcreds

import (
	"fmt"
	"net/url"
	"strings"
)

// AuthScheme selects where client credentials are placed in a token request.
type AuthScheme int

const (
	// AuthSchemeBasic sends credentials as "Authorization: Basic base64(id:secret)".
	AuthSchemeBasic AuthScheme = iota
	// AuthSchemeForm sends credentials as client_id and client_secret body parameters.
	AuthSchemeForm
)

// String returns the lower-case scheme name.
func (s AuthScheme) String() string {
	switch s {
	case AuthSchemeBasic:
		return "basic"
	case AuthSchemeForm:
		return "form"
	default:
		return fmt.Sprintf("AuthScheme(%d)", int(s))
	}
}

// ParseAuthScheme converts a configuration value into an AuthScheme.
// Accepted values are "basic"/"header" and "form"/"post", case-insensitive.
func ParseAuthScheme(value string) (AuthScheme, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "basic", "header":
		return AuthSchemeBasic, nil
	case "form", "post":
		return AuthSchemeForm, nil
	default:
		return AuthSchemeBasic, fmt.Errorf("clientcreds: unknown auth scheme %q", value)
	}
}

// ResourceDescriptor describes a client and the token endpoint it authenticates against.
//
// It is a plain value: the With* helpers return modified copies and never share
// the Scopes backing array with the receiver.
type ResourceDescriptor struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	AuthScheme   AuthScheme
}

// Validate checks that the descriptor can be used for a token request.
func (d ResourceDescriptor) Validate() error {
	if strings.TrimSpace(d.ClientID) == "" {
		return fmt.Errorf("%w: client ID is required", ErrInvalidDescriptor)
	}
	if d.TokenURL == "" {
		return fmt.Errorf("%w: token URL is required", ErrInvalidDescriptor)
	}

	u, err := url.Parse(d.TokenURL)
	if err != nil {
		return fmt.Errorf("%w: token URL: %v", ErrInvalidDescriptor, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: token URL must be absolute: %q", ErrInvalidDescriptor, d.TokenURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported token URL scheme %q", ErrInvalidDescriptor, u.Scheme)
	}

	switch d.AuthScheme {
	case AuthSchemeBasic, AuthSchemeForm:
	default:
		return fmt.Errorf("%w: unknown auth scheme %v", ErrInvalidDescriptor, d.AuthScheme)
	}

	return nil
}

// WithAuthScheme returns a copy of d using the given scheme.
func (d ResourceDescriptor) WithAuthScheme(scheme AuthScheme) ResourceDescriptor {
	c := d.clone()
	c.AuthScheme = scheme
	return c
}

// WithScopes returns a copy of d requesting the given scopes.
// Calling it without arguments clears the scope list.
func (d ResourceDescriptor) WithScopes(scopes ...string) ResourceDescriptor {
	c := d.clone()
	c.Scopes = append([]string(nil), scopes...)
	return c
}

// WithCredentials returns a copy of d with a different client ID and secret.
func (d ResourceDescriptor) WithCredentials(clientID, clientSecret string) ResourceDescriptor {
	c := d.clone()
	c.ClientID = clientID
	c.ClientSecret = clientSecret
	return c
}

// scopeParam returns the space-joined scope parameter, skipping blank entries.
func (d ResourceDescriptor) scopeParam() string {
	scopes := make([]string, 0, len(d.Scopes))
	for _, s := range d.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return strings.Join(scopes, " ")
}

func (d ResourceDescriptor) clone() ResourceDescriptor {
	c := d
	if d.Scopes != nil {
		c.Scopes = append([]string(nil), d.Scopes...)
	}
	return c
}
