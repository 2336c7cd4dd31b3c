// Package serverredirect completes the provider round trip. It receives the provider token together
// with the client's authorization request, mints a short-lived authorization code capability and sends
// the user back to the client.
package serverredirect

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/netlify/mcp-gateway/pkg/capability"
	"github.com/netlify/mcp-gateway/pkg/db"
	"github.com/netlify/mcp-gateway/pkg/handlerutils"
	"github.com/netlify/mcp-gateway/pkg/metrics"
	"github.com/netlify/mcp-gateway/pkg/oauth/state"
	"github.com/netlify/mcp-gateway/pkg/types"
)

// providerErrors are the authorization error codes of RFC 6749 section 4.1.2.1. Anything else the
// identity provider sends is reported to the client as access_denied.
var providerErrors = []string{
	"invalid_request",
	"unauthorized_client",
	"access_denied",
	"unsupported_response_type",
	"invalid_scope",
	"server_error",
	"temporarily_unavailable",
}

type Encoder interface {
	Encode(p capability.Payload, ttl time.Duration) (string, error)
}

type ClientStore interface {
	GetClient(clientID string) (*types.ClientInfo, error)
}

type Handler struct {
	codec             Encoder
	db                ClientStore
	issuer            string
	codeTTL           time.Duration
	requireRegistered bool
	metrics           *metrics.Metrics
}

func NewHandler(codec Encoder, db ClientStore, issuer string, codeTTL time.Duration, requireRegistered bool, m *metrics.Metrics) http.Handler {
	return &Handler{
		codec:             codec,
		db:                db,
		issuer:            issuer,
		codeTTL:           codeTTL,
		requireRegistered: requireRegistered,
		metrics:           m,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	initState := query.Get("init-state")
	token := query.Get("token")
	providerError := query.Get("error")
	if providerError != "" && !slices.Contains(providerErrors, providerError) {
		providerError = "access_denied"
	}

	if providerError != "" && initState != "" {
		if authReq, err := state.Decode(initState); err == nil && p.redirectAllowed(authReq) &&
			handlerutils.ErrorRedirect(w, r, authReq.RedirectURI, p.issuer, providerError, "The identity provider did not grant access", authReq.State) {
			return
		}
	}

	var missing []string
	if initState == "" {
		missing = append(missing, "init-state")
	}
	if token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Missing required parameters: " + strings.Join(missing, " "),
		})
		return
	}

	authReq, err := state.Decode(initState)
	if err != nil {
		log.Printf("Failed to parse init-state: %v", err)
		p.invalidState(w)
		return
	}

	redirectURL, err := url.Parse(authReq.RedirectURI)
	if err != nil || !redirectURL.IsAbs() || redirectURL.Host == "" {
		log.Printf("init-state carries an unusable redirect_uri %q", authReq.RedirectURI)
		p.invalidState(w)
		return
	}

	if !p.redirectAllowed(authReq) {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid redirect URI",
		})
		return
	}

	code, err := p.codec.Encode(&capability.AuthorizationCode{State: authReq, AccessToken: token}, p.codeTTL)
	if err != nil {
		log.Printf("Failed to mint authorization code: %v", err)
		if !handlerutils.ErrorRedirect(w, r, authReq.RedirectURI, p.issuer, "invalid_request", "Invalid init-state parameter", authReq.State) {
			p.invalidState(w)
		}
		return
	}
	p.metrics.CapabilityIssued("code")

	q := redirectURL.Query()
	if authReq.State != "" {
		q.Set("state", authReq.State)
	}
	q.Set("iss", p.issuer)
	q.Set("code", code)
	redirectURL.RawQuery = q.Encode()

	handlerutils.NoStore(w)
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// redirectAllowed is false when registered clients are required and the decoded request does not
// name a registered client and redirect URI.
func (p *Handler) redirectAllowed(authReq types.AuthRequest) bool {
	if !p.requireRegistered {
		return true
	}
	clientInfo, err := p.db.GetClient(authReq.ClientID)
	if err != nil {
		if !errors.Is(err, db.ErrClientNotFound) {
			log.Printf("Failed to look up client %s: %v", authReq.ClientID, err)
		}
		return false
	}
	return clientInfo != nil && slices.Contains(clientInfo.RedirectUris, authReq.RedirectURI)
}

func (p *Handler) invalidState(w http.ResponseWriter) {
	handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
		Error:            "invalid_request",
		ErrorDescription: "Invalid init-state parameter",
	})
}
