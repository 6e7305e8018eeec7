package oauth2client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/AmmannChristian/go-clientcreds/clientcreds"
)

// Logger is an interface for optional logging in TokenManager.
// Implementations can log token refresh events if desired.
type Logger interface {
	Printf(format string, args ...any)
}

// TokenManager caches client-credentials tokens and refreshes them before expiry.
// It is safe for concurrent access.
type TokenManager struct {
	descriptor   clientcreds.ResourceDescriptor
	provider     *clientcreds.Provider
	token        *clientcreds.AccessToken
	mu           sync.RWMutex
	ctx          context.Context // used by Token(), which has no context parameter
	expiryLeeway time.Duration
	now          func() time.Time
	logger       Logger // optional logger
}

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithProvider sets the provider used to fetch tokens.
// By default a provider with default settings is created.
func WithProvider(p *clientcreds.Provider) Option {
	return func(tm *TokenManager) {
		tm.provider = p
	}
}

// WithExpiryLeeway sets how long before expiry a cached token is replaced.
// Default is one minute.
func WithExpiryLeeway(d time.Duration) Option {
	return func(tm *TokenManager) {
		tm.expiryLeeway = d
	}
}

// WithLogger sets a custom logger for token refresh events.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(tm *TokenManager) {
		tm.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
// This is a convenience option that sets the logger to log.Default().
func WithLoggingEnabled() Option {
	return func(tm *TokenManager) {
		tm.logger = log.Default()
	}
}

// NewTokenManager creates a token manager for the given client.
//
// Parameters:
//   - ctx: Context used by Token(), which has no context parameter. Cancellation
//     is stripped so a cancelled parent does not break later refreshes; values
//     (such as an oauth2.HTTPClient) are preserved.
//   - descriptor: Client credentials, token endpoint, scopes and authentication scheme
//   - opts: Optional configuration options
func NewTokenManager(ctx context.Context, descriptor clientcreds.ResourceDescriptor, opts ...Option) *TokenManager {
	if ctx == nil {
		ctx = context.Background()
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	tm := &TokenManager{
		descriptor:   descriptor.WithScopes(descriptor.Scopes...),
		ctx:          ctx,
		expiryLeeway: time.Minute, // refresh a bit before expiry to avoid near-expiry races
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(tm)
	}

	if tm.provider == nil {
		tm.provider = clientcreds.NewProvider()
	}

	return tm
}

// Descriptor returns a copy of the descriptor tokens are requested with.
func (tm *TokenManager) Descriptor() clientcreds.ResourceDescriptor {
	return tm.descriptor.WithScopes(tm.descriptor.Scopes...)
}

// AccessToken returns a valid token, fetching a new one if the cached token is
// missing or inside the expiry leeway. It uses double-checked locking, so
// concurrent callers share one fetch.
//
// Errors from the provider are wrapped, so callers can still match
// *clientcreds.TokenError and the other clientcreds error kinds.
func (tm *TokenManager) AccessToken(ctx context.Context) (*clientcreds.AccessToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	tm.mu.RLock()
	if tm.tokenValid() {
		token := tm.token
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the write lock.
	if tm.tokenValid() {
		return tm.token, nil
	}

	token, err := tm.provider.AcquireToken(tm.withHTTPClient(ctx), tm.descriptor)
	if err != nil {
		return nil, fmt.Errorf("oauth2client: failed to fetch token: %w", err)
	}

	tm.token = token

	if tm.logger != nil {
		expires := "unknown"
		if !token.Expiry.IsZero() {
			expires = token.Expiry.Format(time.RFC3339)
		}
		tm.logger.Printf("oauth2client: obtained new access token for %s (expires: %s)", tm.descriptor.ClientID, expires)
	}

	return token, nil
}

// GetTokenWithContext returns a valid access token string.
// This method respects the provided context's cancellation and deadline.
func (tm *TokenManager) GetTokenWithContext(ctx context.Context) (string, error) {
	token, err := tm.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	return token.Value, nil
}

// GetToken returns a valid access token string using the context given to NewTokenManager.
// Prefer GetTokenWithContext when a request-scoped context is available.
func (tm *TokenManager) GetToken() (string, error) {
	return tm.GetTokenWithContext(tm.ctx)
}

// Token implements oauth2.TokenSource using the context given to NewTokenManager.
func (tm *TokenManager) Token() (*oauth2.Token, error) {
	token, err := tm.AccessToken(tm.ctx)
	if err != nil {
		return nil, err
	}
	return token.OAuth2Token(), nil
}

// Invalidate drops the cached token if its value is rejected, so the next call
// fetches a new one. Use it when a resource server rejects a token before its
// reported expiry. A token that was already replaced is left alone.
func (tm *TokenManager) Invalidate(rejected string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.token != nil && tm.token.Value == rejected {
		tm.token = nil
	}
}

// withHTTPClient carries the oauth2.HTTPClient from the construction context
// over to ctx when ctx does not name one itself.
func (tm *TokenManager) withHTTPClient(ctx context.Context) context.Context {
	if _, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return ctx
	}
	if client, ok := tm.ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	return ctx
}

// tokenValid reports whether the cached token is still usable with a small safety window.
// Callers must hold tm.mu.
func (tm *TokenManager) tokenValid() bool {
	if tm.token == nil {
		return false
	}
	if !tm.token.Expiry.IsZero() && tm.token.Expiry.Sub(tm.now()) <= tm.expiryLeeway {
		return false
	}
	return tm.token.Valid(tm.now())
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
//
// The interceptor adds the token as "authorization: Bearer <token>" to the outgoing
// request context metadata. If token fetch fails, the RPC call is aborted with an error.
// The interceptor respects the RPC context's cancellation and deadline.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(tokenManager.UnaryClientInterceptor()),
//	)
func (tm *TokenManager) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := tm.authorize(ctx)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
//
// If token fetch fails, stream creation is aborted with an error.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithStreamInterceptor(tokenManager.StreamClientInterceptor()),
//	)
func (tm *TokenManager) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := tm.authorize(ctx)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

func (tm *TokenManager) authorize(ctx context.Context) (context.Context, error) {
	token, err := tm.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2client: failed to get token: %w", err)
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token.Value), nil
}
