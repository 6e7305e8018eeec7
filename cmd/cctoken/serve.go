package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-clientcreds/internal/authserver"
)

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local authorization server for testing",
		Long: `serve runs a client credentials authorization server with the sample
client registrations (my-client-with-registered-redirect, my-client-with-secret
and my-trusted-client). Tokens are RS256 JWTs; the signing key is generated at
startup and published at ` + authserver.JWKSPath + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flags.StringVar(&cfg.Realm, "realm", cfg.Realm, "Realm announced in WWW-Authenticate challenges")
	flags.StringVar(&cfg.PathPrefix, "path-prefix", cfg.PathPrefix, "Prefix for the token route, e.g. /sparklr2")
	flags.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "Issuer claim of issued tokens")
	flags.StringVar(&cfg.Audience, "audience", cfg.Audience, "Audience claim of issued tokens")
	flags.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "Lifetime of issued tokens")

	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	as, err := authserver.New(authserver.Config{
		Issuer:         cfg.Issuer,
		Audience:       cfg.Audience,
		Realm:          cfg.Realm,
		PathPrefix:     cfg.PathPrefix,
		TokenTTL:       cfg.TokenTTL,
		Logger:         log.Default(),
		RequestLogging: cfg.Verbose,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	httpServer := &http.Server{
		Handler:           as,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}

	serverErrors := make(chan error, 1)
	go func() {
		base := "http://" + ln.Addr().String()
		log.Printf("Token endpoint: %s%s", base, as.TokenPath())
		log.Printf("JWKS endpoint: %s%s", base, authserver.JWKSPath)
		serverErrors <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)

	case <-ctx.Done():
		log.Println("Starting shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("Error closing server: %v", err)
			}
		}
		return nil
	}
}
