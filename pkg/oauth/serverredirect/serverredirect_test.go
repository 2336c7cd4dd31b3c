package serverredirect

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/netlify/mcp-gateway/pkg/capability"
	"github.com/netlify/mcp-gateway/pkg/db"
	"github.com/netlify/mcp-gateway/pkg/oauth/state"
	"github.com/netlify/mcp-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuer = "https://gw.example.com"

type failingEncoder struct{}

func (failingEncoder) Encode(capability.Payload, time.Duration) (string, error) {
	return "", errors.New("boom")
}

func newCodec(t *testing.T) *capability.Codec {
	t.Helper()
	codec, err := capability.NewCodec(capability.DeriveKey("server-redirect-test"))
	require.NoError(t, err)
	return codec
}

func encodeState(t *testing.T, req types.AuthRequest) string {
	t.Helper()
	blob, err := state.Encode(req)
	require.NoError(t, err)
	return blob
}

func serve(h http.Handler, query url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth-server/server-redirect?"+query.Encode(), nil))
	return w
}

var authReq = types.AuthRequest{
	ResponseType:  "code",
	ClientID:      "client-1",
	RedirectURI:   "http://localhost:3000/cb?keep=yes",
	State:         "client-state",
	CodeChallenge: "challenge",
}

func TestServerRedirect(t *testing.T) {
	codec := newCodec(t)
	h := NewHandler(codec, db.NewMemoryStore(), issuer, time.Minute, false, nil)

	w := serve(h, url.Values{"init-state": {encodeState(t, authReq)}, "token": {"upstream-token"}})
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", loc.Host)
	assert.Equal(t, "/cb", loc.Path)
	assert.Equal(t, "yes", loc.Query().Get("keep"))
	assert.Equal(t, "client-state", loc.Query().Get("state"))
	assert.Equal(t, issuer, loc.Query().Get("iss"))

	payload, err := codec.Decode(loc.Query().Get("code"))
	require.NoError(t, err)
	assert.Equal(t, &capability.AuthorizationCode{State: authReq, AccessToken: "upstream-token"}, payload)
}

func TestServerRedirectMissingParameters(t *testing.T) {
	h := NewHandler(newCodec(t), db.NewMemoryStore(), issuer, time.Minute, false, nil)

	for name, tc := range map[string]struct {
		query url.Values
		want  string
	}{
		"Both":      {url.Values{}, "Missing required parameters: init-state token"},
		"InitState": {url.Values{"token": {"t"}}, "Missing required parameters: init-state"},
		"Token":     {url.Values{"init-state": {"s"}}, "Missing required parameters: token"},
	} {
		t.Run(name, func(t *testing.T) {
			w := serve(h, tc.query)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body types.OAuthError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "invalid_request", body.Error)
			assert.Equal(t, tc.want, body.ErrorDescription)
		})
	}
}

func TestServerRedirectInvalidState(t *testing.T) {
	t.Run("Undecodable", func(t *testing.T) {
		h := NewHandler(newCodec(t), db.NewMemoryStore(), issuer, time.Minute, false, nil)
		w := serve(h, url.Values{"init-state": {"!!!"}, "token": {"t"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid init-state parameter")
	})

	t.Run("RelativeRedirect", func(t *testing.T) {
		h := NewHandler(newCodec(t), db.NewMemoryStore(), issuer, time.Minute, false, nil)
		blob := encodeState(t, types.AuthRequest{ResponseType: "code", ClientID: "c", RedirectURI: "/cb"})
		w := serve(h, url.Values{"init-state": {blob}, "token": {"t"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, w.Header().Get("Location"))
	})

	t.Run("MintFailureRedirectsError", func(t *testing.T) {
		h := NewHandler(failingEncoder{}, db.NewMemoryStore(), issuer, time.Minute, false, nil)
		w := serve(h, url.Values{"init-state": {encodeState(t, authReq)}, "token": {"t"}})
		require.Equal(t, http.StatusFound, w.Code)

		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_request", loc.Query().Get("error"))
		assert.Equal(t, "Invalid init-state parameter", loc.Query().Get("error_description"))
		assert.Equal(t, issuer, loc.Query().Get("iss"))
		assert.Equal(t, "client-state", loc.Query().Get("state"))
		assert.False(t, loc.Query().Has("code"))
	})
}

func TestServerRedirectProviderError(t *testing.T) {
	h := NewHandler(newCodec(t), db.NewMemoryStore(), issuer, time.Minute, false, nil)
	w := serve(h, url.Values{"init-state": {encodeState(t, authReq)}, "token": {""}, "error": {"access_denied"}})
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "client-state", loc.Query().Get("state"))
}

func TestServerRedirectUnknownProviderError(t *testing.T) {
	h := NewHandler(newCodec(t), db.NewMemoryStore(), issuer, time.Minute, false, nil)

	for _, value := range []string{"temporarily_unavailable", "<script>", "login_required extra"} {
		w := serve(h, url.Values{"init-state": {encodeState(t, authReq)}, "error": {value}})
		require.Equal(t, http.StatusFound, w.Code)

		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		if value == "temporarily_unavailable" {
			assert.Equal(t, value, loc.Query().Get("error"))
		} else {
			assert.Equal(t, "access_denied", loc.Query().Get("error"), value)
		}
	}
}

func TestServerRedirectRegisteredClients(t *testing.T) {
	store := db.NewMemoryStore()
	require.NoError(t, store.StoreClient(&types.ClientInfo{ClientID: "client-1", RedirectUris: []string{"https://other.example.com/cb"}}))
	h := NewHandler(newCodec(t), store, issuer, time.Minute, true, nil)

	w := serve(h, url.Values{"init-state": {encodeState(t, authReq)}, "token": {"t"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}
