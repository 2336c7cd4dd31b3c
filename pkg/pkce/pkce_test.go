package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	sum := sha256.Sum256([]byte("abc123"))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	t.Run("S256", func(t *testing.T) {
		assert.True(t, Verify("abc123", challenge, MethodS256))
		assert.False(t, Verify("abc124", challenge, MethodS256))
		assert.False(t, Verify("", challenge, MethodS256))
	})

	t.Run("DefaultMethodIsS256", func(t *testing.T) {
		assert.True(t, Verify("abc123", challenge, ""))
		assert.False(t, Verify("abc123", "abc123", ""))
	})

	t.Run("Plain", func(t *testing.T) {
		assert.True(t, Verify("abc123", "abc123", MethodPlain))
		assert.False(t, Verify("abc123", challenge, MethodPlain))
	})

	t.Run("UnknownMethodFailsClosed", func(t *testing.T) {
		assert.False(t, Verify("abc123", "abc123", "S512"))
		assert.False(t, Verify("abc123", challenge, "s256"))
	})

	t.Run("EmptyChallenge", func(t *testing.T) {
		assert.False(t, Verify("abc123", "", MethodPlain))
	})
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(""))
	assert.True(t, Supported("S256"))
	assert.True(t, Supported("plain"))
	assert.False(t, Supported("S512"))
}
