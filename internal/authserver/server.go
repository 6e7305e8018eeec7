package authserver

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWKSPath is the route serving the signing key set.
const JWKSPath = "/.well-known/jwks.json"

// Server is an in-process OAuth2 authorization server for the client-credentials grant.
type Server struct {
	cfg        Config
	clients    map[string]*Client
	privateKey *rsa.PrivateKey
	keyID      string
	router     *chi.Mux
	now        func() time.Time
}

// New creates a Server with a fresh RS256 signing key.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	if cfg.PathPrefix != "" && !strings.HasPrefix(cfg.PathPrefix, "/") {
		return nil, fmt.Errorf("authserver: path prefix must start with '/': %q", cfg.PathPrefix)
	}
	cfg.PathPrefix = strings.TrimSuffix(cfg.PathPrefix, "/")

	clients := make(map[string]*Client, len(cfg.Clients))
	for i := range cfg.Clients {
		c := cfg.Clients[i]
		if c.ID == "" {
			return nil, errors.New("authserver: client ID is required")
		}
		if _, dup := clients[c.ID]; dup {
			return nil, fmt.Errorf("authserver: duplicate client %q", c.ID)
		}
		clients[c.ID] = &c
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("authserver: failed to generate signing key: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		clients:    clients,
		privateKey: privateKey,
		keyID:      uuid.NewString(),
		now:        time.Now,
	}
	s.router = s.routes()

	return s, nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	if s.cfg.RequestLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.Post(s.TokenPath(), s.handleToken)
	r.Get(JWKSPath, s.handleJWKS)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// TokenPath returns the path of the token endpoint.
func (s *Server) TokenPath() string {
	return s.cfg.PathPrefix + "/oauth/token"
}

// Issuer returns the iss claim of issued tokens.
func (s *Server) Issuer() string {
	return s.cfg.Issuer
}

// Audience returns the aud claim of issued tokens.
func (s *Server) Audience() string {
	return s.cfg.Audience
}

// JWKS returns the JSON Web Key Set with the server's public signing key.
func (s *Server) JWKS() map[string]any {
	pub := &s.privateKey.PublicKey
	return map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"use": "sig",
				"kid": s.keyID,
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.JWKS())
}

func (s *Server) issueToken(client *Client, scopes []string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":       s.cfg.Issuer,
		"sub":       client.ID,
		"aud":       s.cfg.Audience,
		"client_id": client.ID,
		"scope":     strings.Join(scopes, " "),
		"iat":       now.Unix(),
		"exp":       now.Add(s.cfg.TokenTTL).Unix(),
		"jti":       uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	return token.SignedString(s.privateKey)
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
