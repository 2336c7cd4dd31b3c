package token

import (
	"log"
	"net/http"
	"time"

	"github.com/netlify/mcp-gateway/pkg/capability"
	"github.com/netlify/mcp-gateway/pkg/handlerutils"
	"github.com/netlify/mcp-gateway/pkg/metrics"
	"github.com/netlify/mcp-gateway/pkg/pkce"
	"github.com/netlify/mcp-gateway/pkg/types"
)

// Codec mints and opens capabilities.
type Codec interface {
	Encode(p capability.Payload, ttl time.Duration) (string, error)
	Decode(token string) (capability.Payload, error)
}

type Handler struct {
	codec     Codec
	accessTTL time.Duration
	metrics   *metrics.Metrics
}

func NewHandler(codec Codec, accessTTL time.Duration, m *metrics.Metrics) http.Handler {
	return &Handler{
		codec:     codec,
		accessTTL: accessTTL,
		metrics:   m,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid request body",
		})
		return
	}

	if grantType := r.PostForm.Get("grant_type"); grantType != "" && grantType != "authorization_code" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "unsupported_grant_type",
			ErrorDescription: "The grant type is not supported by this authorization server",
		})
		return
	}

	code := r.PostForm.Get("code")
	codeVerifier := r.PostForm.Get("code_verifier")

	if code == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Missing required parameter: code",
		})
		return
	}

	payload, err := p.codec.Decode(code)
	if err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Invalid authorization code",
		})
		return
	}

	grant, ok := payload.(*capability.AuthorizationCode)
	if !ok {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Invalid authorization code",
		})
		return
	}

	// The verifier is optional, but once supplied it has to match.
	if codeVerifier != "" && !pkce.Verify(codeVerifier, grant.State.CodeChallenge, grant.State.CodeChallengeMethod) {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "PKCE verification failed",
		})
		return
	}

	accessToken, err := p.codec.Encode(&capability.Access{AccessToken: grant.AccessToken}, p.accessTTL)
	if err != nil {
		log.Printf("Failed to mint access capability: %v", err)
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to issue access token",
		})
		return
	}
	p.metrics.CapabilityIssued("access")

	handlerutils.NoStore(w)
	handlerutils.JSON(w, http.StatusOK, types.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(p.accessTTL / time.Second),
	})
}
