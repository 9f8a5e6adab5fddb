package auth

import (
	"errors"
	"net/http"
	"strings"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	// browsers cannot set headers on a websocket handshake
	accessTokenParam = "access_token"
)

var (
	errMissingAuthorizationHeader = errors.New("missing Authorization header")
	errInvalidAuthorizationHeader = errors.New("invalid Authorization header")
)

func BearerTokenFromRequest(r *http.Request) (string, error) {
	reqToken := r.Header.Get(authorizationHeader)
	if reqToken == "" {
		return "", errMissingAuthorizationHeader
	}
	splitToken := strings.Split(reqToken, bearerPrefix)
	if len(splitToken) != 2 {
		return "", errInvalidAuthorizationHeader
	}
	return strings.TrimSpace(splitToken[1]), nil
}

// tokenFromRequest prefers the Authorization header and falls back to the
// access_token query parameter.
func tokenFromRequest(r *http.Request) (string, error) {
	token, err := BearerTokenFromRequest(r)
	if !errors.Is(err, errMissingAuthorizationHeader) {
		return token, err
	}
	if r.URL != nil {
		if token := strings.TrimSpace(r.URL.Query().Get(accessTokenParam)); token != "" {
			return token, nil
		}
	}
	return "", err
}
