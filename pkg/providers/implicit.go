package providers

import (
	"net/url"

	"golang.org/x/oauth2"
)

// ImplicitProvider sends users to an IdP that answers with the access token in the URL fragment
// (response_type=token). The token never reaches this server directly.
type ImplicitProvider struct {
	name   string
	config oauth2.Config
}

// NewImplicitProvider creates a provider for the given authorize endpoint and registered client id.
func NewImplicitProvider(authorizeURL, clientID string) *ImplicitProvider {
	name := authorizeURL
	if u, err := url.Parse(authorizeURL); err == nil && u.Host != "" {
		name = u.Host
	}
	return &ImplicitProvider{
		name: name,
		config: oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{AuthURL: authorizeURL},
		},
	}
}

func (p *ImplicitProvider) GetAuthorizationURL(redirectURI, state string) string {
	config := p.config
	config.RedirectURL = redirectURI
	return config.AuthCodeURL(state, oauth2.SetAuthURLParam("response_type", "token"))
}

func (p *ImplicitProvider) GetName() string {
	return p.name
}
