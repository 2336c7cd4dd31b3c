// Package validate decides whether a request to the primary service carries a usable credential.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/netlify/mcp-gateway/pkg/capability"
	"github.com/netlify/mcp-gateway/pkg/handlerutils"
	"github.com/netlify/mcp-gateway/pkg/metrics"
	"github.com/netlify/mcp-gateway/pkg/upstream"
)

// ErrReauthenticate means the caller has to go through the authorization flow again.
var ErrReauthenticate = errors.New("re-authentication required")

// Decoder opens capabilities.
type Decoder interface {
	Decode(token string) (capability.Payload, error)
}

// Verifier confirms an upstream credential is live.
type Verifier interface {
	CurrentUser(ctx context.Context, accessToken string) (*upstream.User, error)
}

// Credential is the verified upstream identity of a request.
type Credential struct {
	AccessToken string
	User        *upstream.User
	// Raw is set when the bearer was a long-lived token rather than a capability.
	Raw bool
}

type Gate struct {
	decoder     Decoder
	verifier    Verifier
	rawPrefixes []string
	issuer      string
	metrics     *metrics.Metrics
}

func NewGate(decoder Decoder, verifier Verifier, rawPrefixes []string, issuer string, m *metrics.Metrics) *Gate {
	return &Gate{
		decoder:     decoder,
		verifier:    verifier,
		rawPrefixes: rawPrefixes,
		issuer:      strings.TrimSuffix(issuer, "/"),
		metrics:     m,
	}
}

// IsAuthenticated reports whether Authenticate succeeds.
func (g *Gate) IsAuthenticated(r *http.Request) bool {
	_, err := g.Authenticate(r)
	return err == nil
}

// Authenticate resolves and verifies the bearer credential of r. Every call hits the upstream.
func (g *Gate) Authenticate(r *http.Request) (*Credential, error) {
	cred, err := g.authenticate(r)
	switch {
	case err == nil:
		g.metrics.AuthResult("ok")
	case errors.Is(err, ErrReauthenticate):
		g.metrics.AuthResult("reauthenticate")
	default:
		g.metrics.AuthResult("error")
	}
	return cred, err
}

func (g *Gate) authenticate(r *http.Request) (*Credential, error) {
	bearer, ok := BearerToken(r)
	if !ok {
		return nil, ErrReauthenticate
	}

	cred := &Credential{}
	if g.isRaw(bearer) {
		cred.AccessToken = bearer
		cred.Raw = true
	} else {
		p, err := g.decoder.Decode(bearer)
		if err != nil {
			return nil, ErrReauthenticate
		}
		// Only the unscoped access capability minted by the token endpoint stands for the user.
		// Scoped and pinned capabilities are limited to the proxy.
		access, ok := p.(*capability.Access)
		if !ok || len(access.APIsAllowed) > 0 {
			return nil, ErrReauthenticate
		}
		cred.AccessToken = access.AccessToken
	}

	user, err := g.verifier.CurrentUser(r.Context(), cred.AccessToken)
	if errors.Is(err, upstream.ErrUnauthorized) {
		return nil, ErrReauthenticate
	} else if err != nil {
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}
	cred.User = user

	return cred, nil
}

func (g *Gate) isRaw(token string) bool {
	for _, prefix := range g.rawPrefixes {
		if prefix != "" && strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

// ResourceMetadataURL is advertised in the challenge so clients can discover the authorization server.
func (g *Gate) ResourceMetadataURL() string {
	return g.issuer + "/.well-known/oauth-protected-resource"
}

// Challenge writes the 401 that tells a client to start the authorization flow.
func (g *Gate) Challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer resource_metadata="%s"`, g.ResourceMetadataURL()))
	handlerutils.JSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "unauthenticated",
		"error_description": "You must authenticate to use this tool",
	})
}

func (g *Gate) WithTokenValidation(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, err := g.Authenticate(r)
		if errors.Is(err, ErrReauthenticate) {
			g.Challenge(w)
			return
		} else if err != nil {
			log.Printf("Credential verification failed: %v", err)
			handlerutils.JSON(w, http.StatusBadGateway, map[string]string{
				"error":             "upstream_error",
				"error_description": "Failed to verify credential with the upstream API",
			})
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), credentialKey{}, cred)))
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header. The scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetCredential returns the credential stored by WithTokenValidation, or nil.
func GetCredential(r *http.Request) *Credential {
	cred, _ := r.Context().Value(credentialKey{}).(*Credential)
	return cred
}

type credentialKey struct{}
