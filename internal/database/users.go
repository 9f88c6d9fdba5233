package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserRepository handles database operations for users and profiles.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, name, is_active, is_admin,
	language_preference, theme, created_at, updated_at, last_login`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.IsActive, &u.IsAdmin,
		&u.LanguagePreference, &u.Theme, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// Create inserts the user and an empty profile. ID and timestamps are
// filled in on success. A taken email yields ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.LanguagePreference == "" {
		u.LanguagePreference = "en"
	}
	if u.Theme == "" {
		u.Theme = "light"
	}

	// one statement keeps user and profile creation atomic
	query := `
		WITH new_user AS (
			INSERT INTO users (id, email, password_hash, name, is_active, is_admin, language_preference, theme)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		), new_profile AS (
			INSERT INTO user_profiles (id, user_id)
			SELECT $9, id FROM new_user
		)
		SELECT created_at, updated_at FROM new_user`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Name, u.IsActive, u.IsAdmin,
		u.LanguagePreference, u.Theme, uuid.NewString(),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// TouchLastLogin sets last_login to at.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last_login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePreferences changes language and theme; empty values are kept.
func (r *UserRepository) UpdatePreferences(ctx context.Context, id, language, theme string) (*User, error) {
	query := `
		UPDATE users SET
			language_preference = COALESCE(NULLIF($2, ''), language_preference),
			theme = COALESCE(NULLIF($3, ''), theme),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, id, language, theme))
}

// GetProfile retrieves the profile for a user.
func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	p := &UserProfile{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, bio, avatar_url, organization, country,
			email_notifications, show_progress_publicly, created_at, updated_at
		FROM user_profiles WHERE user_id = $1`, userID).Scan(
		&p.ID, &p.UserID, &p.Bio, &p.AvatarURL, &p.Organization, &p.Country,
		&p.EmailNotifications, &p.ShowProgressPublicly, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}
