// Package capability encrypts delegated credentials into opaque, time-boxed tokens.
//
// Tokens are compact JWEs using direct encryption with A256GCM. The expiry is an exp claim inside the
// encrypted body, so it cannot be read or altered without the key.
package capability

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCapability is the only error Decode returns. Expired, tampered and malformed tokens all
// map to it.
var ErrInvalidCapability = errors.New("invalid capability")

var (
	keyAlgorithms      = []jose.KeyAlgorithm{jose.DIRECT}
	contentEncryptions = []jose.ContentEncryption{jose.A256GCM}
)

// Codec encodes and decodes capabilities under one symmetric key.
type Codec struct {
	key []byte
	now func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec for a KeySize-byte key.
func NewCodec(key []byte, opts ...Option) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("capability key must be %d bytes, got %d", KeySize, len(key))
	}
	c := &Codec{
		key: append([]byte(nil), key...),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode encrypts the payload with an expiry of now+ttl.
func (c *Codec) Encode(p Payload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("capability ttl must be positive, got %s", ttl)
	}

	cl, err := toClaims(p)
	if err != nil {
		return "", err
	}
	if cl.AccessToken == "" {
		return "", fmt.Errorf("capability requires an access token")
	}

	now := c.now()
	cl.IssuedAt = jwt.NewNumericDate(now)
	cl.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	plaintext, err := json.Marshal(cl)
	if err != nil {
		return "", fmt.Errorf("failed to marshal capability: %w", err)
	}

	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: c.key},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create encrypter: %w", err)
	}

	object, err := encrypter.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt capability: %w", err)
	}

	return object.CompactSerialize()
}

// Decode verifies and decrypts a token. Any failure yields ErrInvalidCapability.
func (c *Codec) Decode(token string) (Payload, error) {
	p, err := c.decode(token)
	if err != nil {
		log.Printf("Rejected capability: %v", err)
		return nil, ErrInvalidCapability
	}
	return p, nil
}

func (c *Codec) decode(token string) (Payload, error) {
	if !canonical(token) {
		return nil, fmt.Errorf("token is not a canonical compact JWE")
	}

	object, err := jose.ParseEncryptedCompact(token, keyAlgorithms, contentEncryptions)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	plaintext, err := object.Decrypt(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}

	var cl claims
	if err := json.Unmarshal(plaintext, &cl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal claims: %w", err)
	}

	validator := jwt.NewValidator(jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err := validator.Validate(cl); err != nil {
		return nil, fmt.Errorf("claims rejected: %w", err)
	}

	return fromClaims(cl)
}

// LooksLikeToken reports whether s has the shape of a compact JWE (five dot-separated parts).
func LooksLikeToken(s string) bool {
	return strings.Count(s, ".") == 4
}

// canonical requires five segments of strict unpadded base64url, so that no two distinct strings
// decode to the same token.
func canonical(token string) bool {
	if strings.ContainsAny(token, "\r\n= ") {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 5 {
		return false
	}
	for _, part := range parts {
		if _, err := base64.RawURLEncoding.Strict().DecodeString(part); err != nil {
			return false
		}
	}
	return true
}
