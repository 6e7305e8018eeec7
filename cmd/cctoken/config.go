package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/AmmannChristian/go-clientcreds/clientcreds"
)

const envPrefix = "CCTOKEN"

// Config holds CLI defaults loaded from CCTOKEN_* environment variables.
// Command-line flags override these values.
type Config struct {
	TokenURL     string        `envconfig:"TOKEN_URL"`
	ClientID     string        `envconfig:"CLIENT_ID"`
	ClientSecret string        `envconfig:"CLIENT_SECRET"`
	Scopes       []string      `envconfig:"SCOPES"`
	AuthScheme   string        `envconfig:"AUTH_SCHEME" default:"basic"`
	UserAgent    string        `envconfig:"USER_AGENT" default:"cctoken"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s"`
	Verbose      bool          `envconfig:"VERBOSE"`

	JWKSURL  string `envconfig:"JWKS_URL"`
	Issuer   string `envconfig:"ISSUER"`
	Audience string `envconfig:"AUDIENCE"`

	Addr       string        `envconfig:"ADDR" default:"127.0.0.1:8080"`
	Realm      string        `envconfig:"REALM"`
	PathPrefix string        `envconfig:"PATH_PREFIX"`
	TokenTTL   time.Duration `envconfig:"TOKEN_TTL" default:"12h"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// descriptor builds the resource descriptor for the token command.
// Scope values may be separated by commas or spaces.
func (c Config) descriptor() (clientcreds.ResourceDescriptor, error) {
	scheme, err := clientcreds.ParseAuthScheme(c.AuthScheme)
	if err != nil {
		return clientcreds.ResourceDescriptor{}, err
	}

	var scopes []string
	for _, s := range c.Scopes {
		scopes = append(scopes, strings.Fields(s)...)
	}

	d := clientcreds.ResourceDescriptor{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       scopes,
		AuthScheme:   scheme,
	}
	if err := d.Validate(); err != nil {
		return clientcreds.ResourceDescriptor{}, fmt.Errorf("invalid client configuration: %w", err)
	}
	return d, nil
}
