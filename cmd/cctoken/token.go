package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-clientcreds/clientcreds"
)

type tokenOutput struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in,omitempty"`
	Expiry      time.Time `json:"expiry,omitzero"`
	Scope       string    `json:"scope,omitempty"`
}

func newTokenCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Request an access token and print it as JSON",
		Example: `  cctoken token --token-url https://auth.example.com/oauth/token \
    --client-id my-client --client-secret s3cret --scope read,write --auth-scheme form`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := cfg.descriptor()
			if err != nil {
				return err
			}

			opts := []clientcreds.Option{
				clientcreds.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
				clientcreds.WithUserAgent(cfg.UserAgent),
			}
			if cfg.Verbose {
				opts = append(opts, clientcreds.WithLogger(log.Default()))
			}

			token, err := clientcreds.NewProvider(opts...).AcquireToken(cmd.Context(), d)
			if err != nil {
				var tokenErr *clientcreds.TokenError
				if errors.As(err, &tokenErr) && tokenErr.WWWAuthenticate != "" {
					return fmt.Errorf("%w (WWW-Authenticate: %s)", err, tokenErr.WWWAuthenticate)
				}
				return err
			}

			return writeJSON(cmd, tokenOutput{
				AccessToken: token.Value,
				TokenType:   token.Type(),
				ExpiresIn:   int64(token.ExpiresIn / time.Second),
				Expiry:      token.Expiry,
				Scope:       strings.Join(token.Scope, " "),
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.TokenURL, "token-url", cfg.TokenURL, "Token endpoint URL")
	flags.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "Client identifier")
	flags.StringVar(&cfg.ClientSecret, "client-secret", cfg.ClientSecret, "Client secret")
	flags.StringSliceVar(&cfg.Scopes, "scope", cfg.Scopes, "Requested scopes (repeatable or comma separated)")
	flags.StringVar(&cfg.AuthScheme, "auth-scheme", cfg.AuthScheme, "Client authentication: basic or form")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent sent to the token endpoint")

	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
