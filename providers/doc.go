// Package providers implements the OAuth2 authorization-code client used by
// the handshake to build authorization URLs and exchange codes for tokens.
package providers
