package handlerutils

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/netlify/mcp-gateway/pkg/capability"
)

const redacted = "REDACTED"

// sensitiveParams are query parameters that carry credentials or codes.
var sensitiveParams = []string{"code", "token", "init-state", "access_token", "code_verifier"}

// LogFormatter writes Common Log Format lines with credentials removed from the URL. It is meant for
// handlers.CustomLoggingHandler.
func LogFormatter(w io.Writer, params handlers.LogFormatterParams) {
	req := params.Request
	_, _ = fmt.Fprintf(w, "%s - - [%s] \"%s %s %s\" %d %d\n",
		GetClientIP(req),
		params.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
		req.Method,
		RedactURL(&params.URL),
		req.Proto,
		params.StatusCode,
		params.Size,
	)
}

// RedactURL renders the request URI with proxy capabilities and sensitive query values replaced.
func RedactURL(u *url.URL) string {
	path := u.EscapedPath()
	if rest, ok := strings.CutPrefix(path, "/proxy/"); ok {
		first, tail, _ := strings.Cut(rest, "/")
		if capability.LooksLikeToken(first) {
			path = "/proxy/" + redacted
			if tail != "" {
				path += "/" + tail
			}
		}
	}

	if u.RawQuery == "" {
		return path
	}

	q := u.Query()
	for _, name := range sensitiveParams {
		if q.Has(name) {
			q.Set(name, redacted)
		}
	}
	return path + "?" + q.Encode()
}
