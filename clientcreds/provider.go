package clientcreds

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxResponseSize caps how much of a token endpoint response is read.
const maxResponseSize = 1 << 20

// Logger is an interface for optional logging in Provider.
type Logger interface {
	Printf(format string, args ...any)
}

// Provider performs OAuth2 client-credentials token requests.
//
// A Provider holds no per-request state and is safe for concurrent use as long
// as its HTTP client is. Every AcquireToken call sends exactly one request.
type Provider struct {
	httpClient *http.Client
	userAgent  string
	logger     Logger
	now        func() time.Time
}

// Option is a functional option for configuring Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for token requests.
// Without it, a client stored in the request context under oauth2.HTTPClient
// is used, falling back to http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithUserAgent sets the User-Agent header of token requests.
func WithUserAgent(userAgent string) Option {
	return func(p *Provider) {
		p.userAgent = userAgent
	}
}

// WithLogger sets a custom logger for token exchanges.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
func WithLoggingEnabled() Option {
	return func(p *Provider) {
		p.logger = log.Default()
	}
}

// NewProvider creates a client-credentials token provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		now: time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// AcquireToken exchanges the descriptor's client credentials for an access token.
//
// Errors:
//   - ErrInvalidDescriptor (wrapped): the descriptor failed validation, nothing was sent
//   - *ConnectivityError: the request could not be completed
//   - *TokenError: the endpoint answered with a non-2xx status
//   - ErrMalformedResponse (wrapped): a 2xx answer without a usable token
func (p *Provider) AcquireToken(ctx context.Context, d ResourceDescriptor) (*AccessToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	req, err := p.newTokenRequest(ctx, d)
	if err != nil {
		return nil, err
	}

	resp, err := p.client(ctx).Do(req)
	if err != nil {
		return nil, &ConnectivityError{TokenURL: d.TokenURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))

	// A rejection keeps its status and challenge even if the body is cut short.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		tokenErr := newTokenError(resp.StatusCode, resp.Header.Get("WWW-Authenticate"), body)
		if p.logger != nil {
			p.logger.Printf("clientcreds: token request for client %s rejected with status %d", d.ClientID, resp.StatusCode)
		}
		return nil, tokenErr
	}

	if err != nil {
		return nil, &ConnectivityError{TokenURL: d.TokenURL, Err: fmt.Errorf("read response: %w", err)}
	}

	token, hadRefresh, err := decodeToken(body, d.Scopes, p.now())
	if err != nil {
		return nil, err
	}

	if p.logger != nil {
		if hadRefresh {
			p.logger.Printf("clientcreds: ignoring refresh_token returned for client %s", d.ClientID)
		}
		p.logger.Printf("clientcreds: obtained access token for client %s (scheme: %s, scope: %q)",
			d.ClientID, d.AuthScheme, strings.Join(token.Scope, " "))
	}

	return token, nil
}

func (p *Provider) newTokenRequest(ctx context.Context, d ResourceDescriptor) (*http.Request, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if scope := d.scopeParam(); scope != "" {
		form.Set("scope", scope)
	}

	if d.AuthScheme == AuthSchemeForm {
		form.Set("client_id", d.ClientID)
		if d.ClientSecret != "" {
			form.Set("client_secret", d.ClientSecret)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	if d.AuthScheme == AuthSchemeBasic {
		req.SetBasicAuth(d.ClientID, d.ClientSecret)
	}

	return req, nil
}

func (p *Provider) client(ctx context.Context) *http.Client {
	if p.httpClient != nil {
		return p.httpClient
	}
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		return c
	}
	return http.DefaultClient
}
