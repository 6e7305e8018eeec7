package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-clientcreds/internal/tokenverify"
)

type claimsOutput struct {
	ID        string    `json:"jti,omitempty"`
	Subject   string    `json:"sub,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	Audience  []string  `json:"aud,omitempty"`
	ExpiresAt time.Time `json:"exp"`
	IssuedAt  time.Time `json:"iat,omitzero"`
	Scopes    []string  `json:"scope,omitempty"`
}

func newVerifyCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <token|->",
		Short: "Verify a JWT access token against a JWKS endpoint",
		Long: `verify checks the token signature with keys from --jwks-url and validates
expiry, plus issuer and audience when given. Pass "-" to read the token from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWKSURL == "" {
				return fmt.Errorf("--jwks-url is required")
			}

			raw := args[0]
			if raw == "-" {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				raw = string(data)
			}

			opts := []tokenverify.Option{
				tokenverify.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			}
			if cfg.Verbose {
				opts = append(opts, tokenverify.WithLogger(log.Default()))
			}

			verifier, err := tokenverify.New(cfg.JWKSURL, cfg.Issuer, cfg.Audience, opts...)
			if err != nil {
				return err
			}
			defer verifier.Close()

			claims, err := verifier.Verify(strings.TrimSpace(raw))
			if err != nil {
				return err
			}

			return writeJSON(cmd, claimsOutput{
				ID:        claims.ID,
				Subject:   claims.Subject,
				ClientID:  claims.ClientID,
				Issuer:    claims.Issuer,
				Audience:  claims.Audience,
				ExpiresAt: claims.Expiry,
				IssuedAt:  claims.IssuedAt,
				Scopes:    claims.Scopes,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.JWKSURL, "jwks-url", cfg.JWKSURL, "JWKS endpoint URL")
	flags.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "Expected issuer (optional)")
	flags.StringVar(&cfg.Audience, "audience", cfg.Audience, "Expected audience (optional)")

	return cmd
}
