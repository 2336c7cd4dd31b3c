// Package state serializes an in-flight authorization request into the opaque state parameter that
// round-trips through the identity provider. Nothing is stored server side.
package state

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/netlify/mcp-gateway/pkg/types"
)

var ErrInvalidState = errors.New("invalid authorization state")

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

// Encode returns the padded standard base64 of the request's JSON.
func Encode(req types.AuthRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a state blob produced by Encode. Any base64 alphabet is accepted, padded or not, and
// spaces are read as '+' since an unescaped '+' arrives as a space in a query string.
func Decode(blob string) (types.AuthRequest, error) {
	var req types.AuthRequest

	blob = strings.ReplaceAll(strings.TrimSpace(blob), " ", "+")
	data, err := decodeAny(blob)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if req.RedirectURI == "" {
		return req, fmt.Errorf("%w: redirect_uri is missing", ErrInvalidState)
	}
	return req, nil
}

func decodeAny(blob string) ([]byte, error) {
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(blob)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
