// Authentication business logic.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Two ways in, one way out: email/password (Register, Login) and GitHub
// OAuth (LoginOrRegisterGitHub) both end with a signed bearer token for the
// user's internal ID.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/auth"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/repository"
)

const (
	MinPasswordLength     = 6
	MaxDisplayNameLength  = 50
	MaxEmailLength        = 254
	authOutcomeSuccess    = "success"
	authOutcomeFailure    = "failure"
	authEventRegister     = "register"
	authEventLogin        = "login"
	authEventGitHubSignIn = "github"
)

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	recorder  Recorder

	// decoyHash is compared against when a login has no real hash to check,
	// so every login attempt that reaches the store pays for one bcrypt
	// comparison.
	decoyHash string
}

// NewAuthService creates an AuthService. recorder may be nil.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
	recorder Recorder,
) *AuthService {
	// Hash only fails for input over 72 bytes. An empty decoyHash just
	// skips the decoy comparison.
	decoy, _ := passwords.Hash("journal-decoy-password")

	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		recorder:  recorderOrNop(recorder),
		decoyHash: decoy,
	}
}

// AuthResult bundles the user record and the issued token so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Register creates a password account and signs the new user in.
//
// Input is validated before the store is touched. Email uniqueness is NOT
// pre-checked with a read: the UNIQUE constraint decides, so two concurrent
// registrations for one email cannot both succeed. The store reports the
// loser as apperror.DuplicateUser.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return nil, apperror.ValidationFailed("displayName",
			fmt.Sprintf("display name must be %d characters or less", MaxDisplayNameLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.recorder.AuthEvent(authEventRegister, authOutcomeFailure)
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create user", slog.String("error", err.Error()))
		}
		return nil, err
	}

	s.recorder.AuthEvent(authEventRegister, authOutcomeSuccess)
	s.logger.Info("user registered", slog.String("userID", user.ID))

	return s.issue(user)
}

// Login verifies an email/password pair.
//
// An unknown email, a wrong password, and a GitHub-only account (no password
// hash) all produce the same apperror.InvalidCredentials, so a caller cannot
// probe which emails are registered. The first and last of those also run a
// bcrypt comparison against decoyHash so they take as long as a wrong
// password does.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.recorder.AuthEvent(authEventLogin, authOutcomeFailure)
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		s.recorder.AuthEvent(authEventLogin, authOutcomeFailure)
		if errors.Is(err, apperror.ErrNotFound) {
			s.compareDecoy(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, err
	}

	if user.PasswordHash == "" {
		s.compareDecoy(password)
		s.recorder.AuthEvent(authEventLogin, authOutcomeFailure)
		return nil, apperror.InvalidCredentials()
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.recorder.AuthEvent(authEventLogin, authOutcomeFailure)
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.InvalidCredentials()
	}

	s.recorder.AuthEvent(authEventLogin, authOutcomeSuccess)
	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback once the handler
// has exchanged the code for a profile.
//
// The GitHub ID is the stable key: a known ID signs the existing account in.
// An unknown ID creates a password-less account. If the GitHub email is
// already taken by a password account the result is DuplicateUser; the two
// are never linked silently.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil || ghUser.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.GetUserByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		s.recorder.AuthEvent(authEventGitHubSignIn, authOutcomeSuccess)
		s.logger.Info("user authenticated via GitHub", slog.String("userID", user.ID))
		return s.issue(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, err
	}

	email := strings.TrimSpace(ghUser.Email)
	if email == "" {
		s.recorder.AuthEvent(authEventGitHubSignIn, authOutcomeFailure)
		return nil, apperror.ValidationFailed("email", "the GitHub account has no verified email address")
	}

	displayName := ghUser.DisplayName()
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		displayName = string([]rune(displayName)[:MaxDisplayNameLength])
	}

	user = &model.User{
		Email:       email,
		DisplayName: displayName,
		GitHubID:    ghUser.ID,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.recorder.AuthEvent(authEventGitHubSignIn, authOutcomeFailure)
		return nil, err
	}

	s.recorder.AuthEvent(authEventGitHubSignIn, authOutcomeSuccess)
	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)

	return s.issue(user)
}

// Me returns the account behind an authenticated request.
//
// A valid token whose user no longer exists is treated as an invalid token
// rather than a 404: the caller's credential is what is wrong.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated()
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidToken(err)
		}
		return nil, err
	}
	return user, nil
}

// ValidateToken is a thin delegation to TokenService.Validate so callers only
// need the service package.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	return s.tokens.Validate(tokenStr)
}

func (s *AuthService) compareDecoy(password string) {
	if s.decoyHash != "" {
		_ = s.passwords.Verify(s.decoyHash, password)
	}
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// validateEmail accepts anything shaped like local@domain. Deliverability is
// not checked.
func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or less", MaxEmailLength))
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(email, " \t\r\n") {
		return apperror.ValidationFailed("email", "email address is not valid")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}
