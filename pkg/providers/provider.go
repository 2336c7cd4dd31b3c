package providers

// Provider is the external identity provider the authorization flow hands the user off to.
type Provider interface {
	// GetAuthorizationURL returns the provider URL that starts a login and returns to redirectURI
	// with the given opaque state.
	GetAuthorizationURL(redirectURI, state string) string

	// GetName returns the provider name
	GetName() string
}
