package types

import (
	"time"
)

// Config holds all configuration values for the gateway
type Config struct {
	Host string
	Port string

	// Issuer is the public base URL of this gateway. It is echoed as the RFC 9207 iss parameter
	// and used to build the protected resource metadata URL.
	Issuer string

	// JWESecret is the secret the capability key is derived from.
	JWESecret string
	// AllowInsecureDefaultSecret permits the well-known fallback key when JWESecret is empty.
	AllowInsecureDefaultSecret bool

	UpstreamAPIURL  string
	UpstreamTimeout time.Duration

	OAuthAuthorizeURL string
	OAuthClientID     string

	// RawTokenPrefixes identify long-lived credentials that are passed through without decoding.
	RawTokenPrefixes []string

	// PermitUnscoped lets a capability without an allow-list reach any upstream path.
	PermitUnscoped bool
	// RequireRegisteredClients restricts the authorization flow to dynamically registered clients.
	RequireRegisteredClients bool

	AuthCodeTTL    time.Duration
	AccessTokenTTL time.Duration

	DatabaseDSN string

	MCPServerURL string
	Mode         string
	RoutePrefix  string

	RateLimitWindow time.Duration
	RateLimitMax    int
}

// AuthRequest is the authorization request state that round-trips through the identity provider
// as the base64 JSON state parameter.
type AuthRequest struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	State               string `json:"state,omitempty"`
	Scope               string `json:"scope,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// ClientInfo represents OAuth client registration information
type ClientInfo struct {
	ClientID                string      `gorm:"primaryKey" json:"client_id"`
	ClientSecret            string      `json:"client_secret,omitempty"`
	RedirectUris            StringSlice `gorm:"type:text" json:"redirect_uris"`
	ClientName              string      `json:"client_name,omitempty"`
	LogoURI                 string      `json:"logo_uri,omitempty"`
	ClientURI               string      `json:"client_uri,omitempty"`
	PolicyURI               string      `json:"policy_uri,omitempty"`
	TosURI                  string      `json:"tos_uri,omitempty"`
	JwksURI                 string      `json:"jwks_uri,omitempty"`
	Contacts                StringSlice `gorm:"type:text" json:"contacts"`
	GrantTypes              StringSlice `gorm:"type:text" json:"grant_types,omitempty"`
	ResponseTypes           StringSlice `gorm:"type:text" json:"response_types,omitempty"`
	RegistrationDate        int64       `json:"client_id_issued_at,omitempty"`
	TokenEndpointAuthMethod string      `json:"token_endpoint_auth_method"`
}

// OAuthMetadata represents OAuth authorization server metadata
type OAuthMetadata struct {
	Issuer                                   string   `json:"issuer"`
	ServiceDocumentation                     string   `json:"service_documentation,omitempty"`
	AuthorizationEndpoint                    string   `json:"authorization_endpoint"`
	ResponseTypesSupported                   []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported            []string `json:"code_challenge_methods_supported"`
	TokenEndpoint                            string   `json:"token_endpoint"`
	TokenEndpointAuthMethodsSupported        []string `json:"token_endpoint_auth_methods_supported"`
	GrantTypesSupported                      []string `json:"grant_types_supported"`
	ScopesSupported                          []string `json:"scopes_supported,omitempty"`
	RegistrationEndpoint                     string   `json:"registration_endpoint,omitempty"`
	RegistrationEndpointAuthMethodsSupported []string `json:"registration_endpoint_auth_methods_supported,omitempty"`
	AuthorizationResponseIssParameter        bool     `json:"authorization_response_iss_parameter_supported"`
}

// OAuthProtectedResourceMetadata represents protected resource metadata
type OAuthProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	Scopes                 []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// TokenResponse represents OAuth token response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// OAuthError represents OAuth error response
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
