// Package oauth implements the GitHub authorization flows used by pagelift:
// the PKCE (Proof Key for Code Exchange, RFC 7636) authorization-code flow
// and the Device Authorization flow (RFC 8628). Neither flow carries a
// client secret; both are safe for a public client.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// PKCEParams holds a verifier/challenge pair for one authorization attempt.
// Single use; never persisted beyond the attempt.
type PKCEParams struct {
	Verifier  string
	Challenge string
	Method    string // always "S256"
}

// GeneratePKCE generates a fresh PKCE pair. The verifier is 32 random
// bytes base64url-encoded without padding (43 characters), the challenge
// is the S256 digest of the verifier.
func GeneratePKCE() (PKCEParams, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return PKCEParams{}, err
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)

	hash := sha256.Sum256([]byte(verifier))
	return PKCEParams{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(hash[:]),
		Method:    "S256",
	}, nil
}

// GenerateState generates a cryptographically random state parameter
// for CSRF protection.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
