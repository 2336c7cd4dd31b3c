// Package clientredirect serves the page the identity provider returns the user to. The provider puts
// the token in the URL fragment, which browsers never send to a server, so a script reads it and
// forwards it to the server-redirect endpoint as query parameters.
package clientredirect

import (
	"bytes"
	"html/template"
	"log"
	"net/http"

	"github.com/netlify/mcp-gateway/pkg/handlerutils"
)

type Handler struct {
	page []byte
}

// NewHandler creates the page handler. serverRedirectPath is the path of the server-redirect endpoint.
func NewHandler(serverRedirectPath string) (http.Handler, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, struct{ ServerRedirectPath string }{serverRedirectPath}); err != nil {
		return nil, err
	}
	return &Handler{page: buf.Bytes()}, nil
}

var pageTemplate = template.Must(template.New("client-redirect").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>OAuth Client Redirect</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
            margin: 0;
            height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #333;
        }
    </style>
</head>
<body>
    <p>Redirecting to the client application...</p>
    <script>
        (function () {
            var hash = window.location.hash;
            var token = '';
            var state = '';
            var error = '';

            if (hash.charAt(0) === '#') {
                hash = hash.slice(1);
            }
            if (hash.charAt(0) === '?') {
                hash = hash.slice(1);
            }

            if (hash.indexOf('=') !== -1) {
                var params = new URLSearchParams(hash);
                token = params.get('access_token') || params.get('token') || '';
                state = params.get('state') || '';
                error = params.get('error') || '';
            } else {
                token = decodeURIComponent(hash);
            }

            var target = {{.ServerRedirectPath}} +
                '?token=' + encodeURIComponent(token) +
                '&init-state=' + encodeURIComponent(state);
            if (error) {
                target += '&error=' + encodeURIComponent(error);
            }
            window.location.replace(target);
        })();
    </script>
</body>
</html>
`))

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handlerutils.NoStore(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.page); err != nil {
		log.Printf("Failed to write client redirect page: %v", err)
	}
}
