// Package clientcreds implements the OAuth2 client-credentials grant (RFC 6749 section 4.4).
//
// A ResourceDescriptor names the client, its secret, the token endpoint, the
// requested scopes, and how the client authenticates: HTTP Basic or form body
// parameters. Provider.AcquireToken performs one token request per call and
// returns either an AccessToken or a typed error.
//
// # Quick Start
//
//	provider := clientcreds.NewProvider(clientcreds.WithLoggingEnabled())
//
//	token, err := provider.AcquireToken(ctx, clientcreds.ResourceDescriptor{
//	    ClientID:     "my-client",
//	    ClientSecret: "secret",
//	    TokenURL:     "https://auth.example.com/oauth/token",
//	    Scopes:       []string{"read", "write"},
//	    AuthScheme:   clientcreds.AuthSchemeForm,
//	})
//
// # Errors
//
//   - *TokenError: non-2xx from the endpoint. StatusCode and the verbatim
//     WWW-Authenticate header tell callers which scheme the server expected.
//   - ErrMalformedResponse: 2xx without a usable access_token.
//   - *ConnectivityError: transport failure. The cause is available via errors.Is/As.
//   - ErrInvalidDescriptor: the descriptor was rejected before sending.
//
// # Notes
//
//   - Provider never caches or retries. oauth2client.TokenManager adds caching on top.
//   - When the response omits scope, the requested scopes are echoed. The provider
//     never substitutes a default scope set of its own.
package clientcreds
