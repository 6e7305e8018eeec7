package tokenverify

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims extracted from a verified access token.
type Claims struct {
	ID       string
	Subject  string
	ClientID string
	Issuer   string
	Audience []string
	Expiry   time.Time
	IssuedAt time.Time
	Scopes   []string
}

// Logger is an interface for optional logging in Verifier.
type Logger interface {
	Printf(format string, args ...any)
}

// Verifier checks JWT access tokens against the signing keys published at a JWKS URL.
type Verifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
	logger   Logger
}

type options struct {
	httpClient      *http.Client
	refreshInterval time.Duration
	logger          Logger
}

// Option is a functional option for configuring Verifier.
type Option func(*options)

// WithHTTPClient sets the client used to fetch the JWKS.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithRefreshInterval sets how often the JWKS is refetched in the background.
// Zero disables periodic refresh; unknown key IDs still trigger a refetch.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.refreshInterval = d
	}
}

// WithLogger sets a logger for verification and JWKS refresh events.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New fetches the key set at jwksURL and returns a Verifier.
// An empty issuer or audience disables the corresponding check.
func New(jwksURL, issuer, audience string, opts ...Option) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("tokenverify: JWKS URL is required")
	}

	o := options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Client: o.httpClient,
		RefreshErrorHandler: func(err error) {
			if o.logger != nil {
				o.logger.Printf("tokenverify: JWKS refresh error: %v", err)
			}
		},
		RefreshInterval:   o.refreshInterval,
		RefreshRateLimit:  time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tokenverify: failed to load JWKS: %w", err)
	}

	return &Verifier{
		jwks:     jwks,
		issuer:   issuer,
		audience: audience,
		logger:   o.logger,
	}, nil
}

// Verify checks the token signature, expiry, issuer and audience and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errors.New("tokenverify: token is empty")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name,
		}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("tokenverify: token validation failed: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("tokenverify: failed to extract token claims")
	}

	claims := &Claims{
		Scopes: extractScopes(mapClaims),
	}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Issuer, _ = mapClaims.GetIssuer()
	claims.Audience, _ = mapClaims.GetAudience()
	if exp, _ := mapClaims.GetExpirationTime(); exp != nil {
		claims.Expiry = exp.Time
	}
	if iat, _ := mapClaims.GetIssuedAt(); iat != nil {
		claims.IssuedAt = iat.Time
	}
	if id, ok := mapClaims["jti"].(string); ok {
		claims.ID = id
	}
	if clientID, ok := mapClaims["client_id"].(string); ok {
		claims.ClientID = clientID
	}

	if v.logger != nil {
		v.logger.Printf("tokenverify: verified token for subject %s with scopes %v", claims.Subject, claims.Scopes)
	}

	return claims, nil
}

// HasScope reports whether scope is among the token's scopes.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Close stops background JWKS refresh.
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// extractScopes reads "scope" or "scp", as a space-separated string or an array.
func extractScopes(claims jwt.MapClaims) []string {
	for _, key := range []string{"scope", "scp"} {
		switch val := claims[key].(type) {
		case string:
			return strings.Fields(val)
		case []any:
			scopes := make([]string, 0, len(val))
			for _, s := range val {
				if str, ok := s.(string); ok {
					scopes = append(scopes, str)
				}
			}
			return scopes
		}
	}
	return []string{}
}
