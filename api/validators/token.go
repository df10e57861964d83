package validators

import (
	"errors"
	"net/http"
	"strings"
)

var ErrMissingToken = errors.New("missing bearer token")

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return "", ErrMissingToken
	}
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(raw[7:])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
