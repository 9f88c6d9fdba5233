// Package auth registers and authenticates learners and issues the bearer
// tokens the HTTP API checks.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bull/robotics-tutor/internal/apperr"
	"github.com/bull/robotics-tutor/internal/database"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// UserStore is the account persistence the service needs.
type UserStore interface {
	Create(ctx context.Context, u *database.User) error
	GetByID(ctx context.Context, id string) (*database.User, error)
	GetByEmail(ctx context.Context, email string) (*database.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePreferences(ctx context.Context, id, language, theme string) (*database.User, error)
}

// SignupRequest is a new account.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is a credential pair.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned after signup or login.
type Session struct {
	User        *database.User `json:"user"`
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int64          `json:"expires_in"`
}

// Service implements account operations.
type Service struct {
	users  UserStore
	tokens *TokenIssuer
	logger *slog.Logger
	cost   int
	now    func() time.Time
}

// NewService creates an auth service.
func NewService(users UserStore, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		tokens: tokens,
		logger: logger,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Tokens returns the issuer used for verification by middleware.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Signup creates an account and logs it in.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	email := strings.TrimSpace(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.Validation("Invalid email address", map[string]any{"field": "email"})
	}
	if len(req.Password) < MinPasswordLength {
		return nil, apperr.Validation(
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength),
			map[string]any{"field": "password"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	u := &database.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(req.Name),
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			return nil, apperr.Conflict(fmt.Sprintf("Email %s is already registered", email))
		}
		return nil, apperr.ServiceUnavailable("Database", "failed to create user", err)
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return s.session(u)
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Authentication("Invalid email or password")
	}
	if err != nil {
		return nil, apperr.ServiceUnavailable("Database", "failed to load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, apperr.Authentication("Invalid email or password")
	}
	if !u.IsActive {
		return nil, apperr.Authentication("Account is inactive")
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("failed to record last login", "user_id", u.ID, "error", err)
	} else {
		u.LastLogin = &now
	}
	return s.session(u)
}

// CurrentUser loads the authenticated user.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*database.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("User", userID)
	}
	if err != nil {
		return nil, apperr.ServiceUnavailable("Database", "failed to load user", err)
	}
	return u, nil
}

// UpdatePreferences sets language and theme; empty values are unchanged.
func (s *Service) UpdatePreferences(ctx context.Context, userID, language, theme string) (*database.User, error) {
	if theme != "" && theme != "light" && theme != "dark" {
		return nil, apperr.Validation("Theme must be light or dark", map[string]any{"field": "theme"})
	}
	u, err := s.users.UpdatePreferences(ctx, userID, strings.TrimSpace(language), theme)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("User", userID)
	}
	if err != nil {
		return nil, apperr.ServiceUnavailable("Database", "failed to update user", err)
	}
	return u, nil
}

func (s *Service) session(u *database.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{
		User:        u,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}
