package proxy

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/netlify/mcp-gateway/pkg/capability"
	"github.com/netlify/mcp-gateway/pkg/capproxy"
	"github.com/netlify/mcp-gateway/pkg/db"
	"github.com/netlify/mcp-gateway/pkg/handlerutils"
	"github.com/netlify/mcp-gateway/pkg/metrics"
	"github.com/netlify/mcp-gateway/pkg/oauth/authorize"
	"github.com/netlify/mcp-gateway/pkg/oauth/clientredirect"
	"github.com/netlify/mcp-gateway/pkg/oauth/register"
	"github.com/netlify/mcp-gateway/pkg/oauth/serverredirect"
	"github.com/netlify/mcp-gateway/pkg/oauth/token"
	"github.com/netlify/mcp-gateway/pkg/oauth/validate"
	"github.com/netlify/mcp-gateway/pkg/providers"
	"github.com/netlify/mcp-gateway/pkg/ratelimit"
	"github.com/netlify/mcp-gateway/pkg/scope"
	"github.com/netlify/mcp-gateway/pkg/types"
	"github.com/netlify/mcp-gateway/pkg/upstream"
)

const (
	ModeProxy       = "proxy"
	ModeForwardAuth = "forward_auth"
	Middleware      = "middleware"
)

const (
	defaultAuthCodeTTL     = time.Minute
	defaultAccessTokenTTL  = 48 * time.Hour
	defaultUpstreamTimeout = 30 * time.Second
)

// errBackendUnauthorized turns a 401 from the MCP backend into the gate challenge.
var errBackendUnauthorized = errors.New("backend rejected credential")

type Gateway struct {
	config      *types.Config
	issuer      string
	metadata    *types.OAuthMetadata
	codec       *capability.Codec
	db          db.ClientStore
	provider    providers.Provider
	gate        *validate.Gate
	capProxy    *capproxy.Handler
	mcpBackend  *httputil.ReverseProxy
	rateLimiter *ratelimit.RateLimiter
	metrics     *metrics.Metrics
}

func NewGateway(config *types.Config) (*Gateway, error) {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.AuthCodeTTL <= 0 {
		config.AuthCodeTTL = defaultAuthCodeTTL
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = defaultAccessTokenTTL
	}
	if config.UpstreamTimeout <= 0 {
		config.UpstreamTimeout = defaultUpstreamTimeout
	}

	switch config.Mode {
	case "":
		log.Println("Defaulting to proxy mode")
		config.Mode = ModeProxy
	case ModeProxy, ModeForwardAuth, Middleware:
	default:
		return nil, fmt.Errorf("invalid mode: %s", config.Mode)
	}

	issuer := strings.TrimSuffix(config.Issuer, "/")
	if u, err := url.Parse(issuer); err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("issuer must be an absolute http(s) URL: %q", config.Issuer)
	}

	var mcpServerURL *url.URL
	if config.Mode == ModeProxy {
		u, err := url.Parse(config.MCPServerURL)
		if err != nil || u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid MCP server URL: %q", config.MCPServerURL)
		} else if u.Path != "" && u.Path != "/" || u.RawQuery != "" || u.Fragment != "" {
			return nil, fmt.Errorf("MCP server URL must not contain a path, query, or fragment")
		}
		mcpServerURL = u
	}

	key, err := capability.LoadKey(config.JWESecret, config.AllowInsecureDefaultSecret)
	if err != nil {
		return nil, err
	}
	codec, err := capability.NewCodec(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capability codec: %w", err)
	}

	log.Printf("Using %s client store", db.Type(config.DatabaseDSN))
	store, err := db.Open(config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	transport := capproxy.NewTransport(config.UpstreamTimeout)
	upstreamClient, err := upstream.NewClient(config.UpstreamAPIURL, &http.Client{Transport: transport}, config.UpstreamTimeout)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.New("mcp_gateway")

	capProxy, err := capproxy.NewHandler(codec, config.UpstreamAPIURL, scope.Policy{PermitUnscoped: config.PermitUnscoped}, transport, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if config.PermitUnscoped {
		log.Println("WARNING: capabilities without an allow-list may reach any upstream path")
	}

	prefix := config.RoutePrefix
	metadata := &types.OAuthMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + prefix + "/authorize",
		TokenEndpoint:                     issuer + prefix + "/token",
		RegistrationEndpoint:              issuer + prefix + "/register",
		ResponseTypesSupported:            []string{"code"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		GrantTypesSupported:               []string{"authorization_code"},
		AuthorizationResponseIssParameter: true,
	}

	g := &Gateway{
		config:      config,
		issuer:      issuer,
		metadata:    metadata,
		codec:       codec,
		db:          store,
		provider:    providers.NewImplicitProvider(config.OAuthAuthorizeURL, config.OAuthClientID),
		gate:        validate.NewGate(codec, upstreamClient, config.RawTokenPrefixes, issuer, m),
		capProxy:    capProxy,
		rateLimiter: ratelimit.NewRateLimiter(config.RateLimitWindow, config.RateLimitMax),
		metrics:     m,
	}
	if mcpServerURL != nil {
		g.mcpBackend = g.newMCPBackend(mcpServerURL, transport)
	}

	return g, nil
}

// Codec returns the capability codec, for embedders that mint delegated capabilities.
func (g *Gateway) Codec() *capability.Codec {
	return g.codec
}

func (g *Gateway) Close() error {
	if g.db != nil {
		return g.db.Close()
	}
	return nil
}

// SetupRoutes registers every gateway endpoint on mux. next serves authenticated MCP requests in
// middleware mode.
func (g *Gateway) SetupRoutes(mux *http.ServeMux, next http.Handler) error {
	prefix := g.config.RoutePrefix

	clientRedirect, err := clientredirect.NewHandler(prefix + "/server-redirect")
	if err != nil {
		return err
	}
	authorizeHandler := authorize.NewHandler(g.db, g.provider, g.issuer, g.issuer+prefix+"/client-redirect", g.config.RequireRegisteredClients)
	serverRedirect := serverredirect.NewHandler(g.codec, g.db, g.issuer, g.config.AuthCodeTTL, g.config.RequireRegisteredClients, g.metrics)
	tokenHandler := token.NewHandler(g.codec, g.config.AccessTokenTTL, g.metrics)

	mux.HandleFunc("GET /health", g.withCORS(g.healthHandler))
	mux.Handle("GET /metrics", g.metrics.Handler())

	// Authorization code flow
	mux.HandleFunc("GET "+prefix+"/authorize", g.withCORS(g.withRateLimit(authorizeHandler)))
	mux.HandleFunc("GET "+prefix+"/client-redirect", g.withCORS(g.withRateLimit(clientRedirect)))
	mux.HandleFunc("GET "+prefix+"/server-redirect", g.withCORS(g.withRateLimit(serverRedirect)))
	mux.HandleFunc("POST "+prefix+"/token", g.withCORS(g.withRateLimit(tokenHandler)))
	mux.HandleFunc("POST "+prefix+"/register", g.withCORS(g.withRateLimit(register.NewHandler(g.db))))

	// Clients that ignore the metadata document
	if prefix != "" {
		mux.HandleFunc("GET /authorize", g.withCORS(g.withRateLimit(authorizeHandler)))
		mux.HandleFunc("POST /token", g.withCORS(g.withRateLimit(tokenHandler)))
	}

	// Metadata endpoints
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", g.withCORS(g.oauthMetadataHandler))
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", g.withCORS(g.protectedResourceMetadataHandler))
	mux.HandleFunc("GET /.well-known/oauth-protected-resource/{path...}", g.withCORS(g.protectedResourceMetadataHandler))

	mux.Handle(capproxy.Prefix+"/", g.withCORS(g.capProxy.ServeHTTP))

	// The MCP server is stateless, so there are no streams to open or sessions to close.
	mux.HandleFunc("GET /mcp", g.withCORS(methodNotAllowed))
	mux.HandleFunc("DELETE /mcp", g.withCORS(methodNotAllowed))
	mux.HandleFunc("/mcp", g.withCORS(g.gate.WithTokenValidation(func(w http.ResponseWriter, r *http.Request) {
		g.mcpHandler(w, r, next)
	})))

	return nil
}

// GetHandler returns an http.Handler for the gateway
func (g *Gateway) GetHandler() (http.Handler, error) {
	mux := http.NewServeMux()
	if err := g.SetupRoutes(mux, nil); err != nil {
		return nil, err
	}

	// Preflight requests are answered before method-specific routes can reject them.
	recovered := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(g.withCORS(mux.ServeHTTP))
	return handlers.CustomLoggingHandler(os.Stdout, recovered, handlerutils.LogFormatter), nil
}

// withCORS wraps a handler with CORS headers
func (g *Gateway) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, mcp-protocol-version")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, WWW-Authenticate")
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int((12 * time.Hour).Seconds())))

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// withRateLimit wraps a handler with rate limiting
func (g *Gateway) withRateLimit(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.rateLimiter != nil {
			clientIP := handlerutils.GetClientIP(r)
			if !g.rateLimiter.Allow(clientIP) {
				handlerutils.JSON(w, http.StatusTooManyRequests, types.OAuthError{
					Error:            "too_many_requests",
					ErrorDescription: "Rate limit exceeded",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	}
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	handlerutils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) oauthMetadataHandler(w http.ResponseWriter, r *http.Request) {
	handlerutils.JSON(w, http.StatusOK, g.metadata)
}

func (g *Gateway) protectedResourceMetadataHandler(w http.ResponseWriter, r *http.Request) {
	handlerutils.JSON(w, http.StatusOK, types.OAuthProtectedResourceMetadata{
		Resource:               g.issuer,
		AuthorizationServers:   []string{g.issuer},
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "Netlify MCP",
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	handlerutils.JSON(w, http.StatusMethodNotAllowed, map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    -32002,
			"message": "Method not allowed.",
		},
		"id": nil,
	})
}

func (g *Gateway) mcpHandler(w http.ResponseWriter, r *http.Request, next http.Handler) {
	switch g.config.Mode {
	case Middleware:
		if next == nil {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	case ModeForwardAuth:
		setHeaders(w.Header(), validate.GetCredential(r))
	case ModeProxy:
		g.mcpBackend.ServeHTTP(w, r)
	}
}

func (g *Gateway) newMCPBackend(target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.Header.Del("Authorization")
			req.Header.Set("X-Forwarded-Host", req.Host)

			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host

			setHeaders(req.Header, validate.GetCredential(req))
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode == http.StatusUnauthorized {
				return errBackendUnauthorized
			}
			return nil
		},
		ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
			if errors.Is(err, errBackendUnauthorized) {
				g.gate.Challenge(rw)
				return
			}
			log.Printf("MCP backend error: %v", err)
			rw.WriteHeader(http.StatusBadGateway)
		},
	}
}

func setHeaders(header http.Header, cred *validate.Credential) {
	for _, name := range []string{"X-Forwarded-User", "X-Forwarded-Email", "X-Forwarded-Name", "X-Forwarded-Access-Token"} {
		header.Del(name)
	}
	if cred == nil {
		return
	}
	header.Set("X-Forwarded-Access-Token", cred.AccessToken)
	if cred.User == nil {
		return
	}
	if cred.User.ID != "" {
		header.Set("X-Forwarded-User", cred.User.ID)
	}
	if cred.User.Email != "" {
		header.Set("X-Forwarded-Email", cred.User.Email)
	}
	if cred.User.FullName != "" {
		header.Set("X-Forwarded-Name", cred.User.FullName)
	}
}

// ParseList splits a comma-separated setting and trims whitespace from each entry.
func ParseList(value string) []string {
	raw := strings.Split(value, ",")
	list := make([]string, 0, len(raw))
	for _, item := range raw {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
