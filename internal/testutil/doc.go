// Package testutil provides test helpers for go-clientcreds packages.
//
// # Utilities
//
//   - NewLocalHTTPServer: start an httptest server bound to 127.0.0.1, closed on cleanup
//   - TokenEndpoint: in-memory token endpoint that records method, headers, Basic
//     credentials and the decoded form body of every request
//   - StaticJSONResponse / StaticResponse / RoundTripFunc: inline http.RoundTripper stubs
//   - GenerateTestKey / SignToken: RSA keys and RS256 tokens
//   - WriteTestCACert / WriteTestCertAndKey: temporary CA and leaf certificates for TLS tests
//
// TokenEndpoint does not touch http.DefaultClient. Tests pass TokenEndpoint.Client
// explicitly or carry it in TokenEndpoint.Ctx.
package testutil
