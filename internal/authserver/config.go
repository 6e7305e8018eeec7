package authserver

import "time"

// GrantClientCredentials is the only grant type the server issues tokens for.
const GrantClientCredentials = "client_credentials"

const (
	defaultIssuer   = "https://sparklr.local"
	defaultAudience = "sparklr"
	defaultRealm    = "sparklr2/client"
	defaultTokenTTL = 12 * time.Hour
)

// Logger is an interface for optional logging in Server.
type Logger interface {
	Printf(format string, args ...any)
}

// Client is a registered OAuth2 client.
type Client struct {
	ID     string
	Secret string // empty means the client authenticates with an empty secret

	// Scopes are the scopes the client may request. They are also granted when
	// a request carries no scope parameter.
	Scopes []string

	// GrantTypes lists the grants the client may use. Empty allows client_credentials.
	GrantTypes []string
}

func (c *Client) allowsGrant(grantType string) bool {
	if len(c.GrantTypes) == 0 {
		return grantType == GrantClientCredentials
	}
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

func (c *Client) allowsScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Config configures a Server. Zero values are replaced by defaults.
type Config struct {
	Issuer     string
	Audience   string
	Realm      string // realm announced in WWW-Authenticate challenges
	PathPrefix string // prefix for the token route, e.g. "/sparklr2"
	TokenTTL   time.Duration
	Clients    []Client

	Logger         Logger
	RequestLogging bool // log every request with chi's middleware.Logger
}

// DefaultClients returns the client registrations of the sparklr2 sample.
func DefaultClients() []Client {
	return []Client{
		{
			ID:         "my-client-with-registered-redirect",
			Scopes:     []string{"read", "trust"},
			GrantTypes: []string{GrantClientCredentials, "authorization_code"},
		},
		{
			ID:     "my-client-with-secret",
			Secret: "secret",
			Scopes: []string{"read", "write"},
		},
		{
			ID:         "my-trusted-client",
			Scopes:     []string{"read", "write", "trust"},
			GrantTypes: []string{"password", "authorization_code", "refresh_token", "implicit"},
		},
	}
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = defaultIssuer
	}
	if c.Audience == "" {
		c.Audience = defaultAudience
	}
	if c.Realm == "" {
		c.Realm = defaultRealm
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.Clients == nil {
		c.Clients = DefaultClients()
	}
	return c
}
