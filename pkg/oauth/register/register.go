package register

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"github.com/netlify/mcp-gateway/pkg/handlerutils"
	"github.com/netlify/mcp-gateway/pkg/types"
)

const maxBodySize = 1024 * 1024

type ClientStore interface {
	StoreClient(client *types.ClientInfo) error
}

func NewHandler(db ClientStore) http.Handler {
	return &Handler{
		db:  db,
		now: time.Now,
	}
}

type Handler struct {
	db  ClientStore
	now func() time.Time
}

// registrationRequest is the RFC 7591 client metadata this server understands.
type registrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name"`
	LogoURI                 string   `json:"logo_uri"`
	ClientURI               string   `json:"client_uri"`
	PolicyURI               string   `json:"policy_uri"`
	TosURI                  string   `json:"tos_uri"`
	JwksURI                 string   `json:"jwks_uri"`
	Contacts                []string `json:"contacts"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

func (r *registrationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RedirectURIs,
			validation.Required.Error("at least one redirect URI is required"),
			validation.Each(validation.Required, validation.By(absoluteURL)),
		),
		validation.Field(&r.ClientName, validation.Length(0, 255)),
		validation.Field(&r.LogoURI, validation.By(absoluteURL)),
		validation.Field(&r.ClientURI, validation.By(absoluteURL)),
		validation.Field(&r.PolicyURI, validation.By(absoluteURL)),
		validation.Field(&r.TosURI, validation.By(absoluteURL)),
		validation.Field(&r.JwksURI, validation.By(absoluteURL)),
		validation.Field(&r.GrantTypes,
			validation.Each(validation.In("authorization_code").Error("only authorization_code is supported")),
		),
		validation.Field(&r.ResponseTypes,
			validation.Each(validation.In("code").Error("only code is supported")),
		),
	)
}

// absoluteURL accepts empty strings so that optional fields can reuse it.
func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return validation.NewError("validation_absolute_url", "must be an absolute URL")
	}
	return nil
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handlerutils.JSON(w, http.StatusMethodNotAllowed, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Method not allowed",
		})
		return
	}

	if r.ContentLength > maxBodySize {
		handlerutils.JSON(w, http.StatusRequestEntityTooLarge, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Request payload too large, must be under 1 MiB",
		})
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
				Error:            "invalid_client_metadata",
				ErrorDescription: fmt.Sprintf("field %s has the wrong type", typeErr.Field),
			})
			return
		}
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON payload",
		})
		return
	}

	if err := req.Validate(); err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_client_metadata",
			ErrorDescription: err.Error(),
		})
		return
	}

	if req.TokenEndpointAuthMethod == "" {
		req.TokenEndpointAuthMethod = "none"
	}
	// Only public clients are supported; the token endpoint never authenticates clients.
	if req.TokenEndpointAuthMethod != "none" {
		handlerutils.JSON(w, http.StatusNotImplemented, types.OAuthError{
			Error:            "unimplemented_feature",
			ErrorDescription: "Client secret generation is not implemented",
		})
		return
	}

	clientInfo := &types.ClientInfo{
		ClientID:                uuid.NewString(),
		RedirectUris:            req.RedirectURIs,
		ClientName:              req.ClientName,
		LogoURI:                 req.LogoURI,
		ClientURI:               req.ClientURI,
		PolicyURI:               req.PolicyURI,
		TosURI:                  req.TosURI,
		JwksURI:                 req.JwksURI,
		Contacts:                req.Contacts,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		RegistrationDate:        p.now().Unix(),
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
	}
	// the MCP inspector rejects a null contacts list
	if len(clientInfo.Contacts) == 0 {
		clientInfo.Contacts = []string{}
	}
	if len(clientInfo.GrantTypes) == 0 {
		clientInfo.GrantTypes = []string{"authorization_code"}
	}
	if len(clientInfo.ResponseTypes) == 0 {
		clientInfo.ResponseTypes = []string{"code"}
	}

	if err := p.db.StoreClient(clientInfo); err != nil {
		log.Printf("Failed to store client: %v", err)
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to register client",
		})
		return
	}

	handlerutils.NoStore(w)
	handlerutils.JSON(w, http.StatusCreated, clientInfo)
}
