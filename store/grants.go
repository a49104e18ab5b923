package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/grants"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
)

type grantRepo struct {
	s *Store
}

var _ grants.Repo = (*grantRepo)(nil)

const grantColumns = `id, application_id, user_id, token, token_type, redirect_uri, scopes,
	code_challenge, code_challenge_method, expires_at, revoked_at, created_at`

func (r *grantRepo) Create(ctx context.Context, g *grants.Grant) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := r.s.exec(ctx, `
		INSERT INTO oauth_access_grants (`+grantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.ApplicationID, g.UserID, g.Token, string(g.TokenType), g.RedirectURI, g.Scopes,
		g.CodeChallenge, g.CodeChallengeMethod, formatTime(g.ExpiresAt), formatNullTime(g.RevokedAt),
		formatTime(g.CreatedAt))
	if isConstraintViolation(err) {
		return errors.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting grant: %w", err)
	}
	return nil
}

func (r *grantRepo) GetActive(ctx context.Context, token string, tokenType grants.TokenType, now time.Time) (*grants.Grant, error) {
	row := r.s.queryRow(ctx, `
		SELECT `+grantColumns+` FROM oauth_access_grants
		WHERE token = ? AND token_type = ? AND revoked_at IS NULL AND expires_at > ?
	`, token, string(tokenType), formatTime(now))

	var (
		g                    grants.Grant
		tokenTypeStr         string
		expiresAt, createdAt string
		revokedAt            sql.NullString
	)
	err := row.Scan(&g.ID, &g.ApplicationID, &g.UserID, &g.Token, &tokenTypeStr, &g.RedirectURI,
		&g.Scopes, &g.CodeChallenge, &g.CodeChallengeMethod, &expiresAt, &revokedAt, &createdAt)
	if err != nil {
		return nil, notFound(err, "grant")
	}
	g.TokenType = grants.TokenType(tokenTypeStr)
	if g.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if g.RevokedAt, err = parseNullTime(revokedAt); err != nil {
		return nil, fmt.Errorf("parsing revoked_at: %w", err)
	}
	return &g, nil
}

func (r *grantRepo) Revoke(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.s.exec(ctx, `
		UPDATE oauth_access_grants SET revoked_at = ?
		WHERE token = ? AND revoked_at IS NULL
	`, formatTime(now), token)
	if err != nil {
		return false, fmt.Errorf("revoking grant: %w", err)
	}
	return updated(res)
}

func (r *grantRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.s.exec(ctx, `DELETE FROM oauth_access_grants WHERE expires_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting expired grants: %w", err)
	}
	return res.RowsAffected()
}
