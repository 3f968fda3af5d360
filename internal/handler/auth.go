package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/auth"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/service"
)

// AuthService is the part of service.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, email, password, displayName string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error)
	Me(ctx context.Context, userID string) (*model.User, error)
}

// GitHubAuthenticator is the part of auth.GitHubProvider the callback uses.
type GitHubAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

const stateCookie = "oauth_state"

// AuthHandler serves account registration, password login, the current-user
// endpoint and, when configured, the GitHub OAuth flow.
//
//   - HandleRegister       → create an account, return a token
//   - HandleLogin          → check credentials, return a token
//   - HandleMe             → profile of the bearer of the token
//   - HandleGitHubLogin    → redirect the browser to GitHub
//   - HandleGitHubCallback → finish the OAuth flow, hand the token to the app
type AuthHandler struct {
	accounts AuthService
	github   GitHubAuthenticator // nil when GitHub sign-in is not configured
	appURL   string
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil. appURL is where
// the browser lands after a GitHub sign-in.
func NewAuthHandler(accounts AuthService, github GitHubAuthenticator, appURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		github:   github,
		appURL:   strings.TrimRight(appURL, "/"),
		logger:   logger,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	// Username is accepted as an older name for displayName.
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/register
// REQUEST BODY: {"email": "...", "password": "...", "displayName": "..."}
// RESPONSE: 201 {"user": {...}, "token": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	result, err := h.accounts.Register(r.Context(), req.Email, req.Password, displayName)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// HandleLogin exchanges credentials for a token.
//
// HTTP: POST /api/login
// REQUEST BODY: {"email": "...", "password": "..."}
// RESPONSE: 200 {"user": {...}, "token": "..."}
//
// A wrong password and an unknown email produce the same 401 body.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth puts the user ID in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(h.logger, w, r, apperror.Unauthenticated())
		return
	}

	user, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// GitHubEnabled reports whether the GitHub routes should be mounted.
func (h *AuthHandler) GitHubEnabled() bool {
	return h.github != nil
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes both into a short-lived HttpOnly cookie and into
// the authorization URL. The callback only proceeds if the two match, which
// proves the flow was started by this browser on this server.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Find or create the matching journal user
//  4. Redirect to APP_URL/#token=<jwt>
//
// The token travels in the URL fragment, which browsers never send to a
// server, so it does not end up in access logs or Referer headers. Failures
// after the state check also land on the app, as #error=<kind>, because the
// user is in a browser tab rather than an API client.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(h.logger, w, r, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/auth/github",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		h.redirectToApp(w, r, "error", "access_denied")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(h.logger, w, r, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		h.redirectToApp(w, r, "error", "github_unavailable")
		return
	}

	result, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		_, kind := errorKind(err)
		h.logger.Warn("github callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		h.redirectToApp(w, r, "error", kind)
		return
	}

	h.redirectToApp(w, r, "token", result.Token)
}

func (h *AuthHandler) redirectToApp(w http.ResponseWriter, r *http.Request, key, value string) {
	fragment := url.Values{key: {value}}.Encode()
	http.Redirect(w, r, h.appURL+"/#"+fragment, http.StatusSeeOther)
}
