// Package pkce verifies RFC 7636 code verifiers against the challenge recorded at authorization time.
package pkce

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

// Supported reports whether method is accepted at the authorization endpoint. An empty method
// defaults to S256.
func Supported(method string) bool {
	return method == "" || method == MethodPlain || method == MethodS256
}

// Verify checks a verifier against a challenge. Unknown methods and empty challenges never verify.
func Verify(verifier, challenge, method string) bool {
	if challenge == "" || verifier == "" {
		return false
	}

	var calculated string
	switch method {
	case MethodPlain:
		calculated = verifier
	case MethodS256, "":
		calculated = oauth2.S256ChallengeFromVerifier(verifier)
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(calculated), []byte(challenge)) == 1
}
