package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/journal/internal/apperror"
)

// contextKey is unexported so no other package can read or overwrite the
// user ID stored under it.
type contextKey string

const userIDKey contextKey = "userID"

// ErrorWriter renders an authentication failure. The handler package supplies
// its writeError so 401 bodies look like every other error body.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth rejects requests without a valid bearer token and stores the
// token's user ID in the request context otherwise.
//
// Rejection happens here, before the handler runs, so an unauthenticated
// request never reaches the store.
//
//	req → RequestID → RealIP → Logger → RequireAuth → handler
func RequireAuth(tokens *TokenService, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := Authenticate(r, tokens)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// Authenticate extracts and validates the bearer token of r.
//
// A missing header, a scheme other than Bearer, an empty token or one that
// is not a JWT at all is apperror.Unauthenticated. A well-formed token that
// fails verification is apperror.InvalidToken.
func Authenticate(r *http.Request, tokens *TokenService) (string, error) {
	token, ok := BearerToken(r)
	if !ok {
		return "", apperror.Unauthenticated()
	}
	return tokens.Validate(token)
}

// BearerToken returns the token from "Authorization: Bearer <token>". The
// scheme is matched case-insensitively (RFC 6750 §2.1).
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID.
// Returns ("", false) outside of a RequireAuth-protected route.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
