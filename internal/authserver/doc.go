// Package authserver is a small in-process OAuth2 authorization server used as a
// fixture for client-credentials tests and by "cctoken serve".
//
// It registers clients with secrets and scope sets, authenticates them with either
// HTTP Basic or form parameters, and issues RS256-signed JWT access tokens. When a
// request carries no scope parameter, the client's registered scopes are granted.
//
// Failed client authentication is answered with 401 and a challenge whose scheme
// follows the method the client used:
//
//	WWW-Authenticate: Basic realm="sparklr2/client", error="unauthorized", ...
//	WWW-Authenticate: Form realm="sparklr2/client", error="unauthorized", ...
//
// Routes:
//
//   - POST {PathPrefix}/oauth/token
//   - GET  /.well-known/jwks.json
package authserver
