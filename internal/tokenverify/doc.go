// Package tokenverify verifies JWT access tokens against a JWKS endpoint.
//
// Keys are fetched with keyfunc and refreshed when a token carries an unknown key ID.
// Issuer and audience checks are applied when configured.
package tokenverify
