// Package httpclient offers HTTP client construction helpers with OAuth2 authentication and TLS/mTLS options.
//
// It provides a fluent Builder that creates an http.Client with automatic Bearer token injection using
// oauth2client.TokenManager, configurable TLS (custom CA, mTLS, insecure for tests), timeouts, base transports,
// and redirect handling. OAuth2Transport can wrap any RoundTripper.
//
// # Features
//
//   - Fluent builder for http.Client with client-credentials token injection
//   - Token requests share the builder's TLS configuration and timeout
//   - TLS 1.2+ by default, with custom CA/mTLS and optional InsecureSkipVerify
//   - Custom timeouts, base transport override, and redirect disabling
//   - Reusable OAuth2Transport for manual composition
//
// # Quick Start
//
//	client, err := httpclient.NewBuilder().
//	    WithClientCredentials(ctx, clientcreds.ResourceDescriptor{
//	        ClientID:     "client-id",
//	        ClientSecret: "client-secret",
//	        TokenURL:     "https://auth.example.com/oauth/token",
//	        Scopes:       []string{"read"},
//	        AuthScheme:   clientcreds.AuthSchemeForm,
//	    }).
//	    WithTLS("/path/to/ca.crt", "", "").
//	    WithTimeout(60 * time.Second).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Get("https://api.example.com/data")
//
// # Manual Transport Wrapping
//
//	transport := httpclient.NewOAuth2Transport(tm, nil)
//	client := &http.Client{Transport: transport}
//
// All components are safe for concurrent use if the provided TokenManager is.
package httpclient
