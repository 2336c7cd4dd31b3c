package capability

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/netlify/mcp-gateway/pkg/scope"
	"github.com/netlify/mcp-gateway/pkg/types"
)

// Payload is the decoded content of a capability. It is one of *AuthorizationCode, *Access or
// *LegacyPinned.
type Payload interface {
	// Credential returns the delegated upstream access token.
	Credential() string
	isPayload()
}

// AuthorizationCode is minted at the end of the redirect dance and exchanged once for an Access
// capability.
type AuthorizationCode struct {
	State       types.AuthRequest
	AccessToken string
}

// Access is the bearer capability handed to clients. A nil APIsAllowed places no path restriction,
// subject to the proxy's scope policy.
type Access struct {
	AccessToken string
	APIsAllowed []scope.Allowance
}

// LegacyPinned authorizes exactly one upstream path and method.
type LegacyPinned struct {
	AccessToken string
	APIPath     string
	APIMethod   string
}

func (p *AuthorizationCode) Credential() string { return p.AccessToken }
func (p *Access) Credential() string            { return p.AccessToken }
func (p *LegacyPinned) Credential() string      { return p.AccessToken }

func (*AuthorizationCode) isPayload() {}
func (*Access) isPayload()            {}
func (*LegacyPinned) isPayload()      {}

// claims is the JSON body encrypted into the token.
type claims struct {
	jwt.RegisteredClaims
	AccessToken string             `json:"accessToken"`
	State       *types.AuthRequest `json:"state,omitempty"`
	APIPath     string             `json:"apiPath,omitempty"`
	APIMethod   string             `json:"apiMethod,omitempty"`
	APIsAllowed []scope.Allowance  `json:"apisAllowed,omitempty"`
}

func toClaims(p Payload) (claims, error) {
	switch v := p.(type) {
	case *AuthorizationCode:
		state := v.State
		return claims{AccessToken: v.AccessToken, State: &state}, nil
	case *Access:
		return claims{AccessToken: v.AccessToken, APIsAllowed: v.APIsAllowed}, nil
	case *LegacyPinned:
		if v.APIPath == "" {
			return claims{}, fmt.Errorf("pinned capability requires an api path")
		}
		return claims{AccessToken: v.AccessToken, APIPath: v.APIPath, APIMethod: v.APIMethod}, nil
	default:
		return claims{}, fmt.Errorf("unsupported capability payload %T", p)
	}
}

// fromClaims picks the variant by which optional fields are present.
func fromClaims(c claims) (Payload, error) {
	if c.AccessToken == "" {
		return nil, fmt.Errorf("capability has no access token")
	}
	switch {
	case c.State != nil:
		return &AuthorizationCode{State: *c.State, AccessToken: c.AccessToken}, nil
	case c.APIPath != "":
		return &LegacyPinned{AccessToken: c.AccessToken, APIPath: c.APIPath, APIMethod: c.APIMethod}, nil
	default:
		return &Access{AccessToken: c.AccessToken, APIsAllowed: c.APIsAllowed}, nil
	}
}
