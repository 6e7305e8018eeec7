package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
// The server is closed via tb.Cleanup.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RecordedRequest is a snapshot of a request received by a TokenEndpoint.
type RecordedRequest struct {
	Method       string
	Path         string
	Header       http.Header
	Form         url.Values
	Username     string
	Password     string
	HasBasicAuth bool
	ContentType  string
	RawBody      string
}

// TokenEndpoint simulates an OAuth2 token endpoint without real sockets.
// It records every request (with its decoded form body) and serves responses
// through a custom RoundTripper.
type TokenEndpoint struct {
	URL string
	Ctx context.Context

	// Client routes requests to the endpoint. It is also stored in Ctx under
	// oauth2.HTTPClient.
	Client *http.Client

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewTokenEndpoint builds a mock token endpoint backed by an in-memory RoundTripper.
// If handler is nil, it returns a default successful token response.
func NewTokenEndpoint(tb testing.TB, handler RoundTripFunc) *TokenEndpoint {
	tb.Helper()

	endpoint := &TokenEndpoint{
		URL: "https://mock-oauth.example.com/oauth/token",
	}

	if handler == nil {
		handler = StaticJSONResponse(http.StatusOK, `{
			"access_token": "mock-access-token",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)
	}

	rt := RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := endpoint.record(req); err != nil {
			return nil, err
		}
		return handler(req)
	})

	endpoint.Client = &http.Client{Transport: rt}
	endpoint.Ctx = context.WithValue(context.Background(), oauth2.HTTPClient, endpoint.Client)

	return endpoint
}

func (e *TokenEndpoint) record(req *http.Request) error {
	var raw []byte
	if req.Body != nil {
		var err error
		raw, err = io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(strings.NewReader(string(raw)))
	}

	form, _ := url.ParseQuery(string(raw))
	user, pass, ok := req.BasicAuth()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, RecordedRequest{
		Method:       req.Method,
		Path:         req.URL.Path,
		Header:       req.Header.Clone(),
		Form:         form,
		Username:     user,
		Password:     pass,
		HasBasicAuth: ok,
		ContentType:  req.Header.Get("Content-Type"),
		RawBody:      string(raw),
	})
	return nil
}

// Requests returns a copy of the recorded requests in arrival order.
func (e *TokenEndpoint) Requests() []RecordedRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecordedRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

// LastRequest returns the most recent request. It fails the test if none was received.
func (e *TokenEndpoint) LastRequest(tb testing.TB) RecordedRequest {
	tb.Helper()

	reqs := e.Requests()
	if len(reqs) == 0 {
		tb.Fatal("token endpoint received no requests")
	}
	return reqs[len(reqs)-1]
}

// StaticJSONResponse returns a RoundTripper that always responds with the given status and JSON body.
func StaticJSONResponse(status int, body string) RoundTripFunc {
	return StaticResponse(status, http.Header{"Content-Type": {"application/json"}}, body)
}

// StaticResponse returns a RoundTripper that always responds with the given status, headers and body.
func StaticResponse(status int, header http.Header, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     header.Clone(),
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// GenerateTestKey generates an RSA key for signing test tokens.
func GenerateTestKey(tb testing.TB) *rsa.PrivateKey {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate RSA key: %v", err)
	}
	return privateKey
}

// SignToken signs claims with RS256 and the given key ID.
func SignToken(tb testing.TB, privateKey *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	tb.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(privateKey)
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// WriteTestCACert writes a self-signed CA certificate to the provided path for TLS tests.
func WriteTestCACert(tb testing.TB, path string) {
	tb.Helper()

	privateKey := GenerateTestKey(tb)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		Subject:               pkix.Name{CommonName: "test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create CA certificate: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		tb.Fatalf("failed to write CA certificate: %v", err)
	}
}

// WriteTestCertAndKey writes a self-signed certificate and key to the provided paths.
func WriteTestCertAndKey(tb testing.TB, certPath, keyPath string) {
	tb.Helper()

	privateKey := GenerateTestKey(tb)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		Subject:      pkix.Name{CommonName: "test-cert"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		tb.Fatalf("failed to write certificate: %v", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		tb.Fatalf("failed to write key: %v", err)
	}
}
