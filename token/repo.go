package token

import (
	"context"
	"time"
)

// Repo is the token ledger. Lookups only return unrevoked rows and report
// errors.ErrNotFound otherwise.
type Repo interface {
	Create(ctx context.Context, t *AccessToken) error
	GetByToken(ctx context.Context, accessToken string) (*AccessToken, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*AccessToken, error)
	// RevokeByRefreshToken and RevokeByToken report whether an unrevoked row was updated.
	RevokeByRefreshToken(ctx context.Context, refreshToken string, now time.Time) (bool, error)
	RevokeByToken(ctx context.Context, accessToken string, now time.Time) (bool, error)
	// RevokeByUser revokes every unrevoked row of the user and reports how many changed.
	RevokeByUser(ctx context.Context, userID string, now time.Time) (int64, error)
	// DeleteExpired removes rows whose access half expired before accessBefore and whose
	// refresh half, if any, was issued before refreshIssuedBefore.
	DeleteExpired(ctx context.Context, accessBefore, refreshIssuedBefore time.Time) (int64, error)
}
