package clientredirect

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRedirectPage(t *testing.T) {
	h, err := NewHandler("/oauth-server/server-redirect")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth-server/client-redirect", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))

	body := w.Body.String()
	assert.Contains(t, body, "oauth-server")
	assert.Contains(t, body, "server-redirect")
	assert.Contains(t, body, "params.get('access_token') || params.get('token')")
	assert.Contains(t, body, "encodeURIComponent(state)")
}

func TestClientRedirectPathIsEscaped(t *testing.T) {
	h, err := NewHandler(`/x"</script><script>alert(1)</script>`)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, w.Body.String(), "<script>alert(1)")
}
