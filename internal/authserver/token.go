package authserver

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// OAuth2 error codes (RFC 6749 section 5.2).
const (
	ErrInvalidRequest       = "invalid_request"
	ErrInvalidClient        = "invalid_client"
	ErrUnauthorizedClient   = "unauthorized_client"
	ErrUnsupportedGrantType = "unsupported_grant_type"
	ErrInvalidScope         = "invalid_scope"
	ErrServerError          = "server_error"
)

// Challenge schemes announced in WWW-Authenticate.
const (
	SchemeBasic = "Basic"
	SchemeForm  = "Form"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "failed to parse form")
		return
	}

	client, scheme, ok := s.authenticateClient(w, r)
	if !ok {
		return
	}

	grantType := r.PostForm.Get("grant_type")
	if grantType != GrantClientCredentials {
		writeError(w, http.StatusBadRequest, ErrUnsupportedGrantType, fmt.Sprintf("unsupported grant type: %s", grantType))
		return
	}
	if !client.allowsGrant(grantType) {
		writeError(w, http.StatusBadRequest, ErrUnauthorizedClient, "client does not support client_credentials grant")
		return
	}

	scopes := strings.Fields(r.PostForm.Get("scope"))
	if len(scopes) == 0 {
		scopes = append([]string(nil), client.Scopes...)
	}
	for _, scope := range scopes {
		if !client.allowsScope(scope) {
			writeError(w, http.StatusBadRequest, ErrInvalidScope, fmt.Sprintf("invalid scope: %s", scope))
			return
		}
	}

	accessToken, err := s.issueToken(client, scopes)
	if err != nil {
		s.logf("authserver: failed to sign token for client %s: %v", client.ID, err)
		writeError(w, http.StatusInternalServerError, ErrServerError, "failed to generate access token")
		return
	}

	s.logf("authserver: issued token to client %s via %s authentication (scope: %q)", client.ID, scheme, strings.Join(scopes, " "))

	writeJSON(w, http.StatusOK, &tokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(s.cfg.TokenTTL.Seconds()),
		Scope:       strings.Join(scopes, " "),
	})
}

// authenticateClient resolves the client from either the Basic Authorization
// header or the client_id/client_secret form members. On failure it writes the
// response and returns ok=false.
func (s *Server) authenticateClient(w http.ResponseWriter, r *http.Request) (*Client, string, bool) {
	_, hasHeader := r.Header["Authorization"]
	formID := r.PostForm.Get("client_id")

	var (
		scheme       string
		clientID     string
		clientSecret string
	)

	switch {
	case hasHeader && formID != "":
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "multiple client authentication methods")
		return nil, "", false
	case hasHeader:
		scheme = SchemeBasic
		var ok bool
		clientID, clientSecret, ok = r.BasicAuth()
		if !ok {
			s.challenge(w, SchemeBasic, "Invalid basic authentication token")
			return nil, "", false
		}
	case formID != "":
		scheme = SchemeForm
		clientID = formID
		clientSecret = r.PostForm.Get("client_secret")
	default:
		s.challenge(w, SchemeBasic, "Full authentication is required to access this resource")
		return nil, "", false
	}

	client, ok := s.clients[clientID]
	if !ok || subtle.ConstantTimeCompare([]byte(client.Secret), []byte(clientSecret)) != 1 {
		s.logf("authserver: rejected %s credentials for client %s", scheme, clientID)
		s.challenge(w, scheme, "Bad client credentials")
		return nil, "", false
	}

	return client, scheme, true
}

// challenge answers 401 with a WWW-Authenticate header naming the scheme the client used.
func (s *Server) challenge(w http.ResponseWriter, scheme, description string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`%s realm="%s", error="unauthorized", error_description="%s"`,
		scheme, s.cfg.Realm, description,
	))
	writeError(w, http.StatusUnauthorized, ErrInvalidClient, description)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, &errorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
