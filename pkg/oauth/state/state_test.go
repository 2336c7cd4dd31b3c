package state

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/netlify/mcp-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	req := types.AuthRequest{
		ResponseType:        "code",
		ClientID:            "client-1",
		RedirectURI:         "http://localhost:6274/oauth/callback?debug=true",
		State:               "opaque-client-state",
		Scope:               "read write",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}

	blob, err := Encode(req)
	require.NoError(t, err)

	_, err = base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err, "state must be padded standard base64")

	decoded, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestDecodeLenient(t *testing.T) {
	req := types.AuthRequest{ResponseType: "code", ClientID: "c", RedirectURI: "https://example.com/cb?a=~~~???"}
	blob, err := Encode(req)
	require.NoError(t, err)
	require.Contains(t, blob, "+")
	require.Contains(t, blob, "/")
	require.True(t, strings.HasSuffix(blob, "="))

	t.Run("URLAlphabet", func(t *testing.T) {
		urlBlob := strings.NewReplacer("+", "-", "/", "_").Replace(blob)
		decoded, err := Decode(urlBlob)
		require.NoError(t, err)
		assert.Equal(t, req, decoded)
	})

	t.Run("Unpadded", func(t *testing.T) {
		decoded, err := Decode(strings.TrimRight(blob, "="))
		require.NoError(t, err)
		assert.Equal(t, req, decoded)
	})

	t.Run("PlusAsSpace", func(t *testing.T) {
		decoded, err := Decode(strings.ReplaceAll(blob, "+", " "))
		require.NoError(t, err)
		assert.Equal(t, req, decoded)
	})
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("%%%not-base64%%%")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = Decode(base64.StdEncoding.EncodeToString([]byte(`{"client_id":"c"}`)))
	assert.ErrorIs(t, err, ErrInvalidState)
}
