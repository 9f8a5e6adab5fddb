package auth

import (
	"context"
	"errors"
	"net/http"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

var errMissingEmailClaim = errors.New("token has no email claim")

// Verifier is the part of the Firebase auth client the service uses.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Session is the signed-in identity of one request. Handlers read it and
// never change it.
type Session struct {
	UID      string
	Email    string
	PhotoURL string
}

type sessionCtxKey struct{}

func NewVerifier(ctx context.Context, app *firebase.App) (Verifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func Authenticate(req *http.Request, v Verifier) (Session, error) {
	jwtToken, err := tokenFromRequest(req)
	if err != nil {
		return Session{}, err
	}
	token, err := v.VerifyIDToken(req.Context(), jwtToken)
	if err != nil {
		return Session{}, err
	}
	email, _ := token.Claims["email"].(string)
	if email == "" {
		return Session{}, errMissingEmailClaim
	}
	photo, _ := token.Claims["picture"].(string)
	return Session{UID: token.UID, Email: email, PhotoURL: photo}, nil
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(Session)
	return s, ok
}

// Middleware rejects requests without a valid ID token and puts the
// session into the request context. onError is called before the 401.
func Middleware(v Verifier, onError func(*http.Request, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Authenticate(r, v)
		if err != nil {
			if onError != nil {
				onError(r, err)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}
