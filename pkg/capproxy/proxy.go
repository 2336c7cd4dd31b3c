// Package capproxy forwards requests carrying a capability to the upstream API with the real
// credential substituted in.
package capproxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/netlify/mcp-gateway/pkg/capability"
	"github.com/netlify/mcp-gateway/pkg/handlerutils"
	"github.com/netlify/mcp-gateway/pkg/metrics"
	"github.com/netlify/mcp-gateway/pkg/scope"
	"github.com/netlify/mcp-gateway/pkg/types"
)

// Prefix is the path every proxied request starts with.
const Prefix = "/proxy"

// Decoder opens capabilities.
type Decoder interface {
	Decode(token string) (capability.Payload, error)
}

// Encoder mints capabilities.
type Encoder interface {
	Encode(p capability.Payload, ttl time.Duration) (string, error)
}

type Handler struct {
	decoder Decoder
	policy  scope.Policy
	proxy   *httputil.ReverseProxy
	metrics *metrics.Metrics
}

// NewTransport returns a transport whose dial and response header waits are bounded by timeout.
func NewTransport(timeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.ResponseHeaderTimeout = timeout
	return transport
}

// NewHandler creates the proxy for an upstream origin such as https://api.netlify.com. A nil
// transport uses NewTransport with a 30 second timeout.
func NewHandler(decoder Decoder, upstreamURL string, policy scope.Policy, transport http.RoundTripper, m *metrics.Metrics) (*Handler, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstreamURL)
	}
	if transport == nil {
		transport = NewTransport(30 * time.Second)
	}

	h := &Handler{
		decoder: decoder,
		policy:  policy,
		metrics: m,
	}
	h.proxy = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = u.Scheme
			req.URL.Host = u.Host
			// An empty Host makes the client send the upstream host.
			req.Host = ""
		},
		Transport: transport,
		ModifyResponse: func(*http.Response) error {
			h.metrics.ProxyDecision("forwarded")
			return nil
		},
		ErrorHandler: h.upstreamError,
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, rawPath := h.extract(r)
	if token == "" {
		h.reject(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.decoder.Decode(token)
	if err != nil {
		h.reject(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	path, err := url.PathUnescape(rawPath)
	if err != nil {
		h.reject(w, http.StatusForbidden, "forbidden")
		return
	}

	method := r.Method
	query := r.URL.RawQuery
	switch v := p.(type) {
	case *capability.LegacyPinned:
		pinned, err := url.Parse(v.APIPath)
		if err != nil {
			h.reject(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		path, rawPath = pinned.Path, pinned.EscapedPath()
		if pinned.RawQuery != "" {
			query = pinned.RawQuery
		}
		if v.APIMethod != "" {
			method = v.APIMethod
		}
	case *capability.Access:
		if !h.policy.Allows(v.APIsAllowed, path, method) {
			log.Printf("Capability does not allow %s %s", method, path)
			h.reject(w, http.StatusForbidden, "forbidden")
			return
		}
	default:
		h.reject(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if hasDotSegment(path) {
		log.Printf("Rejected dot segments in proxied path %s", path)
		h.reject(w, http.StatusForbidden, "forbidden")
		return
	}

	out := r.Clone(r.Context())
	out.Method = method
	out.URL.Path = path
	out.URL.RawPath = rawPath
	out.URL.RawQuery = query
	out.Header.Set("Authorization", "Bearer "+p.Credential())

	h.proxy.ServeHTTP(w, out)
}

// extract returns the capability and the escaped upstream path. A capability in the first path
// segment takes precedence over the Authorization header.
func (h *Handler) extract(r *http.Request) (string, string) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), Prefix)
	first, remainder, _ := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
	if capability.LooksLikeToken(first) {
		return first, "/" + remainder
	}

	if rest == "" {
		rest = "/"
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", rest
	}
	return strings.TrimSpace(token), rest
}

// hasDotSegment reports whether the decoded path contains a "." or ".." segment, which an
// upstream could resolve to a path outside the capability's allow-list.
func hasDotSegment(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		if segment == "." || segment == ".." {
			return true
		}
	}
	return false
}

func (h *Handler) reject(w http.ResponseWriter, status int, outcome string) {
	h.metrics.ProxyDecision(outcome)
	w.WriteHeader(status)
}

func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		log.Printf("Upstream timeout: %s %s", r.Method, r.URL.Path)
		h.metrics.ProxyDecision("upstream_timeout")
		handlerutils.JSON(w, http.StatusGatewayTimeout, types.OAuthError{
			Error:            "upstream_timeout",
			ErrorDescription: "The upstream API did not respond in time",
		})
		return
	}

	log.Printf("Upstream request failed: %s %s: %v", r.Method, r.URL.Path, err)
	h.metrics.ProxyDecision("upstream_error")
	handlerutils.JSON(w, http.StatusBadGateway, types.OAuthError{
		Error:            "upstream_error",
		ErrorDescription: "Failed to reach the upstream API",
	})
}

// NewDelegatedURL mints a scoped capability for accessToken and returns the proxy base URL that
// embeds it. Requests to the returned URL plus an upstream path are forwarded when allowed.
func NewDelegatedURL(codec Encoder, issuer, accessToken string, allowances []scope.Allowance, ttl time.Duration) (string, error) {
	if len(allowances) == 0 {
		return "", fmt.Errorf("a delegated capability needs at least one allowance")
	}
	if err := scope.Validate(allowances); err != nil {
		return "", err
	}

	token, err := codec.Encode(&capability.Access{
		AccessToken: accessToken,
		APIsAllowed: allowances,
	}, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to mint delegated capability: %w", err)
	}

	return strings.TrimSuffix(issuer, "/") + Prefix + "/" + token, nil
}
