package grants

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, grant *Grant) error
	// GetActive returns the unrevoked, unexpired grant of tokenType, or errors.ErrNotFound.
	GetActive(ctx context.Context, token string, tokenType TokenType, now time.Time) (*Grant, error)
	// Revoke marks an unrevoked grant revoked. Of several concurrent calls for the same
	// token exactly one reports true.
	Revoke(ctx context.Context, token string, now time.Time) (bool, error)
	// DeleteExpired removes grants that expired before the cutoff and reports how many.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
