package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/token"
)

type tokenRepo struct {
	s *Store
}

var _ token.Repo = (*tokenRepo)(nil)

const tokenColumns = `id, application_id, user_id, token, refresh_token, scopes, expires_at, revoked_at, created_at`

func (r *tokenRepo) Create(ctx context.Context, t *token.AccessToken) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.s.exec(ctx, `
		INSERT INTO oauth_access_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ApplicationID, t.UserID, t.Token, nullString(t.RefreshToken), t.Scopes,
		formatTime(t.ExpiresAt), formatNullTime(t.RevokedAt), formatTime(t.CreatedAt))
	if isConstraintViolation(err) {
		return errors.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

func (r *tokenRepo) GetByToken(ctx context.Context, accessToken string) (*token.AccessToken, error) {
	return r.getActive(ctx, "token", accessToken)
}

func (r *tokenRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (*token.AccessToken, error) {
	return r.getActive(ctx, "refresh_token", refreshToken)
}

func (r *tokenRepo) RevokeByRefreshToken(ctx context.Context, refreshToken string, now time.Time) (bool, error) {
	return r.revoke(ctx, "refresh_token", refreshToken, now)
}

func (r *tokenRepo) RevokeByToken(ctx context.Context, accessToken string, now time.Time) (bool, error) {
	return r.revoke(ctx, "token", accessToken, now)
}

func (r *tokenRepo) RevokeByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.s.exec(ctx, `
		UPDATE oauth_access_tokens SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL
	`, formatTime(now), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user tokens: %w", err)
	}
	return res.RowsAffected()
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, accessBefore, refreshIssuedBefore time.Time) (int64, error) {
	res, err := r.s.exec(ctx, `
		DELETE FROM oauth_access_tokens
		WHERE expires_at < ? AND (refresh_token IS NULL OR created_at < ?)
	`, formatTime(accessBefore), formatTime(refreshIssuedBefore))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	return res.RowsAffected()
}

func (r *tokenRepo) revoke(ctx context.Context, column, value string, now time.Time) (bool, error) {
	res, err := r.s.exec(ctx, `
		UPDATE oauth_access_tokens SET revoked_at = ?
		WHERE `+column+` = ? AND revoked_at IS NULL
	`, formatTime(now), value)
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	return updated(res)
}

func (r *tokenRepo) getActive(ctx context.Context, column, value string) (*token.AccessToken, error) {
	row := r.s.queryRow(ctx, `
		SELECT `+tokenColumns+` FROM oauth_access_tokens
		WHERE `+column+` = ? AND revoked_at IS NULL
	`, value)

	var (
		t                    token.AccessToken
		expiresAt, createdAt string
		refreshToken         sql.NullString
		revokedAt            sql.NullString
	)
	err := row.Scan(&t.ID, &t.ApplicationID, &t.UserID, &t.Token, &refreshToken, &t.Scopes,
		&expiresAt, &revokedAt, &createdAt)
	if err != nil {
		return nil, notFound(err, "token")
	}
	t.RefreshToken = refreshToken.String
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.RevokedAt, err = parseNullTime(revokedAt); err != nil {
		return nil, fmt.Errorf("parsing revoked_at: %w", err)
	}
	return &t, nil
}

// nullString stores an empty value as NULL.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
