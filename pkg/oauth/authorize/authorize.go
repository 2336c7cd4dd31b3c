package authorize

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/netlify/mcp-gateway/pkg/db"
	"github.com/netlify/mcp-gateway/pkg/handlerutils"
	"github.com/netlify/mcp-gateway/pkg/oauth/state"
	"github.com/netlify/mcp-gateway/pkg/pkce"
	"github.com/netlify/mcp-gateway/pkg/providers"
	"github.com/netlify/mcp-gateway/pkg/types"
)

type AuthorizationStore interface {
	GetClient(clientID string) (*types.ClientInfo, error)
}

type Handler struct {
	db                AuthorizationStore
	provider          providers.Provider
	issuer            string
	callbackURL       string
	requireRegistered bool
}

// NewHandler creates the authorization endpoint. callbackURL is where the provider sends the user
// back to, normally the client-redirect page. With requireRegistered, only clients known to db may
// start a flow.
func NewHandler(db AuthorizationStore, provider providers.Provider, issuer, callbackURL string, requireRegistered bool) http.Handler {
	return &Handler{
		db:                db,
		provider:          provider,
		issuer:            issuer,
		callbackURL:       callbackURL,
		requireRegistered: requireRegistered,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params url.Values
	if r.Method == http.MethodGet {
		params = r.URL.Query()
	} else {
		if err := r.ParseForm(); err != nil {
			handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
				Error:            "invalid_request",
				ErrorDescription: "Failed to parse form data",
			})
			return
		}
		params = r.Form
	}

	authReq := types.AuthRequest{
		ResponseType:        params.Get("response_type"),
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		State:               params.Get("state"),
		Scope:               params.Get("scope"),
		Nonce:               params.Get("nonce"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
	}

	var missing []string
	for _, param := range []struct{ name, value string }{
		{"response_type", authReq.ResponseType},
		{"client_id", authReq.ClientID},
		{"redirect_uri", authReq.RedirectURI},
	} {
		if param.value == "" {
			missing = append(missing, param.name)
		}
	}
	if len(missing) > 0 {
		p.fail(w, r, authReq, "invalid_request", "Missing required parameters: "+strings.Join(missing, ", "), !p.requireRegistered)
		return
	}

	// Registered clients are checked before any redirect so errors never go to an unverified URI.
	if p.requireRegistered {
		if ok := p.checkClient(w, authReq); !ok {
			return
		}
	}

	if authReq.ResponseType != "code" {
		p.fail(w, r, authReq, "unsupported_response_type", "Only the 'code' response type is supported", true)
		return
	}

	if !pkce.Supported(authReq.CodeChallengeMethod) {
		p.fail(w, r, authReq, "invalid_request", "Unsupported code_challenge_method", true)
		return
	}

	encodedState, err := state.Encode(authReq)
	if err != nil {
		log.Printf("Failed to encode authorization state: %v", err)
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to encode state",
		})
		return
	}

	http.Redirect(w, r, p.provider.GetAuthorizationURL(p.callbackURL, encodedState), http.StatusFound)
}

// fail redirects the error to the client when redirecting is allowed and its redirect URI is absolute,
// and answers with JSON otherwise.
func (p *Handler) fail(w http.ResponseWriter, r *http.Request, authReq types.AuthRequest, code, description string, redirect bool) {
	if redirect && authReq.RedirectURI != "" && handlerutils.ErrorRedirect(w, r, authReq.RedirectURI, p.issuer, code, description, authReq.State) {
		return
	}
	handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
		Error:            code,
		ErrorDescription: description,
	})
}

func (p *Handler) checkClient(w http.ResponseWriter, authReq types.AuthRequest) bool {
	clientInfo, err := p.db.GetClient(authReq.ClientID)
	if errors.Is(err, db.ErrClientNotFound) || err == nil && clientInfo == nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_client",
			ErrorDescription: "Client not found",
		})
		return false
	} else if err != nil {
		log.Printf("Failed to look up client %s: %v", authReq.ClientID, err)
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to look up client",
		})
		return false
	}

	if !slices.Contains(clientInfo.RedirectUris, authReq.RedirectURI) {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid redirect URI",
		})
		return false
	}
	return true
}
