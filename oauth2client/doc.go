// Package oauth2client caches client-credentials tokens for gRPC and HTTP clients.
//
// A TokenManager wraps a clientcreds.Provider. It keeps the last token,
// replaces it shortly before expiry, and offers gRPC client interceptors that
// inject Authorization metadata automatically. The provider itself never
// caches; all reuse happens here.
//
// # Features
//
//   - Caching with early refresh (WithExpiryLeeway, default one minute)
//   - Context-aware token fetching with cancellation and deadline support
//   - oauth2.TokenSource implementation for code built on golang.org/x/oauth2
//   - gRPC unary and stream client interceptors that inject Bearer tokens
//   - Invalidate to drop a token the resource server rejected
//   - Optional logging (WithLogger, WithLoggingEnabled)
//
// # Quick Start
//
//	tm := oauth2client.NewTokenManager(ctx, clientcreds.ResourceDescriptor{
//	    ClientID:     "client-id",
//	    ClientSecret: "client-secret",
//	    TokenURL:     "https://auth.example.com/oauth/token",
//	    Scopes:       []string{"read", "write"},
//	}, oauth2client.WithLoggingEnabled())
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(tm.UnaryClientInterceptor()),
//	    grpc.WithStreamInterceptor(tm.StreamClientInterceptor()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client := http.Client{Transport: httpclient.NewOAuth2Transport(tm, nil)}
//
// # Notes
//
//   - Fetch errors wrap the clientcreds error kinds; use errors.As and errors.Is to inspect them.
//   - An oauth2.HTTPClient stored in the context passed to NewTokenManager is used for
//     every fetch unless the request context names its own.
//   - TokenManager is safe for concurrent use and uses double-checked locking.
package oauth2client
