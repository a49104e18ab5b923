package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/users"
)

type userRepo struct {
	s *Store
}

var _ users.Repo = (*userRepo)(nil)

const userColumns = `id, username, email, name, password_hash, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, u *users.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.Email = strings.ToLower(u.Email)

	_, err := r.s.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.Name, u.PasswordHash, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if isConstraintViolation(err) {
		return errors.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getBy(ctx, "email", strings.ToLower(email))
}

func (r *userRepo) getBy(ctx context.Context, column, value string) (*users.User, error) {
	var (
		u                    users.User
		createdAt, updatedAt string
	)
	err := r.s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value).
		Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFound(err, "user")
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &u, nil
}
