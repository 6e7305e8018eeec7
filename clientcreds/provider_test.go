package clientcreds

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/AmmannChristian/go-clientcreds/internal/testutil"
)

type stubLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *stubLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *stubLogger) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, len(l.messages))
	copy(msgs, l.messages)
	return msgs
}

func testDescriptor(tokenURL string) ResourceDescriptor {
	return ResourceDescriptor{
		ClientID:     "my-client",
		ClientSecret: "s3cret",
		TokenURL:     tokenURL,
		Scopes:       []string{"read", "write"},
	}
}

func TestAcquireToken_BasicScheme(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client), WithUserAgent("clientcreds-test/1.0"))

	token, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}

	if token.Value != "mock-access-token" {
		t.Errorf("unexpected token value %q", token.Value)
	}
	if token.RefreshToken != "" {
		t.Error("expected no refresh token")
	}

	req := endpoint.LastRequest(t)
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if req.ContentType != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type %q", req.ContentType)
	}
	if req.Header.Get("Accept") != "application/json" {
		t.Errorf("unexpected Accept %q", req.Header.Get("Accept"))
	}
	if req.Header.Get("User-Agent") != "clientcreds-test/1.0" {
		t.Errorf("unexpected User-Agent %q", req.Header.Get("User-Agent"))
	}
	if !req.HasBasicAuth || req.Username != "my-client" || req.Password != "s3cret" {
		t.Errorf("expected basic credentials, got %v %q/%q", req.HasBasicAuth, req.Username, req.Password)
	}
	if want := "Basic bXktY2xpZW50OnMzY3JldA=="; req.Header.Get("Authorization") != want {
		t.Errorf("expected Authorization %q, got %q", want, req.Header.Get("Authorization"))
	}
	if req.Form.Has("client_id") || req.Form.Has("client_secret") {
		t.Errorf("basic scheme must not put credentials in the body: %v", req.Form)
	}
	if req.Form.Get("grant_type") != "client_credentials" || req.Form.Get("scope") != "read write" {
		t.Errorf("unexpected form: %v", req.Form)
	}
}

func TestAcquireToken_FormScheme(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))

	_, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL).WithAuthScheme(AuthSchemeForm))
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}

	req := endpoint.LastRequest(t)
	if _, ok := req.Header["Authorization"]; ok {
		t.Error("form scheme must not send an Authorization header")
	}
	if req.Form.Get("client_id") != "my-client" || req.Form.Get("client_secret") != "s3cret" {
		t.Errorf("expected credentials in body, got %v", req.Form)
	}
}

func TestAcquireToken_EmptySecret(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))

	d := testDescriptor(endpoint.URL).WithCredentials("public-client", "")

	if _, err := p.AcquireToken(context.Background(), d.WithAuthScheme(AuthSchemeForm)); err != nil {
		t.Fatalf("AcquireToken (form) failed: %v", err)
	}
	formReq := endpoint.LastRequest(t)
	if formReq.Form.Has("client_secret") {
		t.Errorf("empty secret must be omitted from the body: %v", formReq.Form)
	}

	if _, err := p.AcquireToken(context.Background(), d); err != nil {
		t.Fatalf("AcquireToken (basic) failed: %v", err)
	}
	basicReq := endpoint.LastRequest(t)
	if !basicReq.HasBasicAuth || basicReq.Username != "public-client" || basicReq.Password != "" {
		t.Errorf("unexpected basic credentials %q/%q", basicReq.Username, basicReq.Password)
	}
}

// Both schemes must produce the same grant parameters and differ only in where
// the credentials are placed.
func TestAcquireToken_SchemesShareProtocolParameters(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))

	d := testDescriptor(endpoint.URL)
	for _, scheme := range []AuthScheme{AuthSchemeBasic, AuthSchemeForm} {
		if _, err := p.AcquireToken(context.Background(), d.WithAuthScheme(scheme)); err != nil {
			t.Fatalf("AcquireToken (%s) failed: %v", scheme, err)
		}
	}

	reqs := endpoint.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}

	basicForm, formForm := reqs[0].Form, reqs[1].Form
	formForm.Del("client_id")
	formForm.Del("client_secret")
	if diff := cmp.Diff(basicForm, formForm); diff != "" {
		t.Errorf("protocol parameters differ (-basic +form):\n%s", diff)
	}
	if reqs[0].Path != reqs[1].Path || reqs[0].Method != reqs[1].Method {
		t.Error("both schemes must POST to the same endpoint")
	}
}

func TestAcquireToken_NoScopeParameterWhenEmpty(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))

	token, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL).WithScopes())
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}

	if endpoint.LastRequest(t).Form.Has("scope") {
		t.Error("scope parameter must be omitted when no scopes are configured")
	}
	if len(token.Scope) != 0 {
		t.Errorf("provider must not invent scopes, got %v", token.Scope)
	}
}

func TestAcquireToken_ScopeEchoedWhenResponseOmitsIt(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))

	token, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}
	if diff := cmp.Diff([]string{"read", "write"}, token.Scope); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
}

func TestAcquireToken_Expiry(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	p := NewProvider(WithHTTPClient(endpoint.Client))
	p.now = func() time.Time { return fixed }

	token, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}
	if token.ExpiresIn != time.Hour {
		t.Errorf("expected ExpiresIn 1h, got %v", token.ExpiresIn)
	}
	if !token.Expiry.Equal(fixed.Add(time.Hour)) {
		t.Errorf("unexpected expiry %v", token.Expiry)
	}
}

func TestAcquireToken_RefreshTokenDiscarded(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"access_token":"abc","token_type":"bearer","refresh_token":"nope"}`))
	logger := &stubLogger{}
	p := NewProvider(WithHTTPClient(endpoint.Client), WithLogger(logger))

	token, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}
	if token.RefreshToken != "" {
		t.Errorf("expected refresh token to be discarded, got %q", token.RefreshToken)
	}
	if _, ok := token.Extra["refresh_token"]; ok {
		t.Error("refresh_token must not leak through Extra")
	}

	found := false
	for _, msg := range logger.getMessages() {
		if strings.Contains(msg, "ignoring refresh_token") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a log about the ignored refresh token, got %v", logger.getMessages())
	}
}

func TestAcquireToken_TokenError(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		challenge    string
		body         string
		wantCode     string
		unauthorized bool
	}{
		{
			name:         "basic challenge",
			status:       http.StatusUnauthorized,
			challenge:    `Basic realm="sparklr2/client", error="unauthorized", error_description="Bad client credentials"`,
			body:         `{"error":"invalid_client","error_description":"Bad client credentials"}`,
			wantCode:     "invalid_client",
			unauthorized: true,
		},
		{
			name:         "form challenge",
			status:       http.StatusUnauthorized,
			challenge:    `Form realm="sparklr2/client", error="unauthorized"`,
			body:         `{"error":"invalid_client"}`,
			wantCode:     "invalid_client",
			unauthorized: true,
		},
		{
			name:     "bad request without challenge",
			status:   http.StatusBadRequest,
			body:     `{"error":"invalid_scope"}`,
			wantCode: "invalid_scope",
		},
		{
			name:   "server error with text body",
			status: http.StatusBadGateway,
			body:   "bad gateway",
		},
		{
			name:      "redirect status is not success",
			status:    http.StatusFound,
			challenge: "",
			body:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.challenge != "" {
				header.Set("WWW-Authenticate", tt.challenge)
			}
			endpoint := testutil.NewTokenEndpoint(t, testutil.StaticResponse(tt.status, header, tt.body))
			p := NewProvider(WithHTTPClient(endpoint.Client))

			token, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))
			if token != nil {
				t.Fatal("no token may be returned on failure")
			}

			var tokenErr *TokenError
			if !errors.As(err, &tokenErr) {
				t.Fatalf("expected *TokenError, got %T: %v", err, err)
			}
			if tokenErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tokenErr.StatusCode)
			}
			if tokenErr.WWWAuthenticate != tt.challenge {
				t.Errorf("challenge must pass through verbatim: want %q, got %q", tt.challenge, tokenErr.WWWAuthenticate)
			}
			if tokenErr.Body != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, tokenErr.Body)
			}
			if tokenErr.ErrorCode != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, tokenErr.ErrorCode)
			}
			if IsUnauthorized(err) != tt.unauthorized {
				t.Errorf("IsUnauthorized = %v, want %v", IsUnauthorized(err), tt.unauthorized)
			}
			if errors.Is(err, ErrMalformedResponse) {
				t.Error("TokenError must not be classified as malformed")
			}
		})
	}
}

func TestAcquireToken_MalformedResponse(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, testutil.StaticJSONResponse(http.StatusOK, `{"token_type":"bearer"}`))
	p := NewProvider(WithHTTPClient(endpoint.Client))

	_, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	var tokenErr *TokenError
	var connErr *ConnectivityError
	if errors.As(err, &tokenErr) || errors.As(err, &connErr) {
		t.Errorf("malformed response misclassified: %T", err)
	}
}

func TestAcquireToken_ConnectivityFailure(t *testing.T) {
	transportErr := errors.New("dial tcp: connection refused")
	endpoint := testutil.NewTokenEndpoint(t, func(*http.Request) (*http.Response, error) {
		return nil, transportErr
	})
	p := NewProvider(WithHTTPClient(endpoint.Client))

	_, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))

	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectivityError, got %T: %v", err, err)
	}
	if !errors.Is(err, transportErr) {
		t.Errorf("expected the transport error in the chain, got %v", err)
	}
	if connErr.TokenURL != endpoint.URL {
		t.Errorf("unexpected URL %q", connErr.TokenURL)
	}
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		t.Error("connectivity failure must not be a TokenError")
	}
}

// brokenBody yields data once and then fails, like a connection reset mid-body.
type brokenBody struct {
	data string
	err  error
	done bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if b.done {
		return 0, b.err
	}
	b.done = true
	return copy(p, b.data), nil
}

func (b *brokenBody) Close() error { return nil }

func TestAcquireToken_BodyReadFailure(t *testing.T) {
	resetErr := errors.New("connection reset")

	tests := []struct {
		name       string
		status     int
		challenge  string
		wantStatus int
	}{
		{name: "rejection keeps status and challenge", status: http.StatusUnauthorized, challenge: `Basic realm="x"`, wantStatus: http.StatusUnauthorized},
		{name: "server error", status: http.StatusBadGateway, wantStatus: http.StatusBadGateway},
		{name: "success is a connectivity failure", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := testutil.NewTokenEndpoint(t, func(req *http.Request) (*http.Response, error) {
				header := make(http.Header)
				if tt.challenge != "" {
					header.Set("WWW-Authenticate", tt.challenge)
				}
				return &http.Response{
					StatusCode: tt.status,
					Header:     header,
					Body:       &brokenBody{data: `{"error":"inv`, err: resetErr},
					Request:    req,
				}, nil
			})
			p := NewProvider(WithHTTPClient(endpoint.Client))

			_, err := p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))

			if tt.wantStatus == 0 {
				var connErr *ConnectivityError
				if !errors.As(err, &connErr) {
					t.Fatalf("expected *ConnectivityError, got %T: %v", err, err)
				}
				if !errors.Is(err, resetErr) {
					t.Errorf("expected the read error in the chain, got %v", err)
				}
				return
			}

			var tokenErr *TokenError
			if !errors.As(err, &tokenErr) {
				t.Fatalf("expected *TokenError, got %T: %v", err, err)
			}
			if tokenErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, tokenErr.StatusCode)
			}
			if tokenErr.WWWAuthenticate != tt.challenge {
				t.Errorf("expected challenge %q, got %q", tt.challenge, tokenErr.WWWAuthenticate)
			}
			if tokenErr.Body != `{"error":"inv` {
				t.Errorf("expected the bytes read before the failure, got %q", tokenErr.Body)
			}
			var connErr *ConnectivityError
			if errors.As(err, &connErr) {
				t.Error("rejection must not be a ConnectivityError")
			}
		})
	}
}

func TestAcquireToken_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	p := NewProvider(WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	_, err = p.AcquireToken(context.Background(), testDescriptor("http://"+addr+"/oauth/token"))

	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectivityError, got %T: %v", err, err)
	}
}

func TestAcquireToken_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewProvider().AcquireToken(ctx, testDescriptor(server.URL+"/oauth/token"))

	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectivityError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded in chain, got %v", err)
	}
}

func TestAcquireToken_InvalidDescriptorSendsNothing(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))

	_, err := p.AcquireToken(context.Background(), ResourceDescriptor{TokenURL: endpoint.URL})
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
	}
	if n := len(endpoint.Requests()); n != 0 {
		t.Errorf("expected no requests, got %d", n)
	}
}

func TestAcquireToken_ContextHTTPClient(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)

	// No WithHTTPClient: the client is taken from the context.
	token, err := NewProvider().AcquireToken(endpoint.Ctx, testDescriptor(endpoint.URL))
	if err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}
	if token.Value != "mock-access-token" {
		t.Errorf("unexpected token %q", token.Value)
	}
	if len(endpoint.Requests()) != 1 {
		t.Errorf("expected the context client to be used")
	}
}

func TestAcquireToken_NilContext(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))

	//lint:ignore SA1012 intentionally verify nil context falls back to background
	//nolint:staticcheck // golangci-lint
	if _, err := p.AcquireToken(nil, testDescriptor(endpoint.URL)); err != nil {
		t.Fatalf("AcquireToken failed: %v", err)
	}
}

func TestAcquireToken_NoCaching(t *testing.T) {
	var counter atomic.Int64
	endpoint := testutil.NewTokenEndpoint(t, func(req *http.Request) (*http.Response, error) {
		n := counter.Add(1)
		return testutil.StaticJSONResponse(http.StatusOK,
			fmt.Sprintf(`{"access_token":"token-%d","token_type":"bearer"}`, n))(req)
	})
	p := NewProvider(WithHTTPClient(endpoint.Client))
	d := testDescriptor(endpoint.URL)

	first, err := p.AcquireToken(context.Background(), d)
	if err != nil {
		t.Fatalf("first AcquireToken failed: %v", err)
	}
	second, err := p.AcquireToken(context.Background(), d)
	if err != nil {
		t.Fatalf("second AcquireToken failed: %v", err)
	}

	if len(endpoint.Requests()) != 2 {
		t.Fatalf("expected two exchanges, got %d", len(endpoint.Requests()))
	}
	if first.Value == second.Value {
		t.Errorf("expected independent tokens, both were %q", first.Value)
	}
	if first.RefreshToken != "" || second.RefreshToken != "" {
		t.Error("expected no refresh tokens")
	}
}

func TestAcquireToken_Concurrent(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, nil)
	p := NewProvider(WithHTTPClient(endpoint.Client))
	d := testDescriptor(endpoint.URL)

	const goroutines = 10
	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			token, err := p.AcquireToken(context.Background(), d)
			if err != nil {
				return err
			}
			if token.Value != "mock-access-token" {
				return fmt.Errorf("unexpected token %q", token.Value)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent AcquireToken failed: %v", err)
	}

	if n := len(endpoint.Requests()); n != goroutines {
		t.Errorf("expected %d requests, got %d", goroutines, n)
	}
}

func TestAcquireToken_LogsRejection(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t, testutil.StaticJSONResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`))
	logger := &stubLogger{}
	p := NewProvider(WithHTTPClient(endpoint.Client), WithLogger(logger))

	_, _ = p.AcquireToken(context.Background(), testDescriptor(endpoint.URL))

	msgs := logger.getMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "rejected with status 401") {
		t.Errorf("unexpected log messages: %v", msgs)
	}
}

func TestWithLoggingEnabled(t *testing.T) {
	p := NewProvider(WithLoggingEnabled())
	if p.logger == nil {
		t.Fatal("expected default logger to be set")
	}
}
