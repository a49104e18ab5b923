package tokenfakerepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	tokens    map[string]*token.AccessToken // access token to row
	refreshes map[string]string             // refresh token to access token
	lock      sync.Mutex
}

func NewFakeTokensRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		tokens:    make(map[string]*token.AccessToken),
		refreshes: make(map[string]string),
	}
}

func (tr *FakeTokenRepo) Create(_ context.Context, t *token.AccessToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if _, ok := tr.tokens[t.Token]; ok {
		return errors.ErrDuplicate
	}
	if _, ok := tr.refreshes[t.RefreshToken]; ok && t.RefreshToken != "" {
		return errors.ErrDuplicate
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	stored := *t
	tr.tokens[t.Token] = &stored
	if t.RefreshToken != "" {
		tr.refreshes[t.RefreshToken] = t.Token
	}
	return nil
}

func (tr *FakeTokenRepo) GetByToken(_ context.Context, accessToken string) (*token.AccessToken, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	return tr.active(accessToken)
}

func (tr *FakeTokenRepo) GetByRefreshToken(_ context.Context, refreshToken string) (*token.AccessToken, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	return tr.active(tr.refreshes[refreshToken])
}

func (tr *FakeTokenRepo) RevokeByRefreshToken(_ context.Context, refreshToken string, now time.Time) (bool, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	return tr.revoke(tr.refreshes[refreshToken], now), nil
}

func (tr *FakeTokenRepo) RevokeByToken(_ context.Context, accessToken string, now time.Time) (bool, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	return tr.revoke(accessToken, now), nil
}

func (tr *FakeTokenRepo) RevokeByUser(_ context.Context, userID string, now time.Time) (int64, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	var n int64
	for k, t := range tr.tokens {
		if t.UserID == userID && tr.revoke(k, now) {
			n++
		}
	}
	return n, nil
}

func (tr *FakeTokenRepo) DeleteExpired(_ context.Context, accessBefore, refreshIssuedBefore time.Time) (int64, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	var n int64
	for k, t := range tr.tokens {
		if t.ExpiresAt.Before(accessBefore) && (t.RefreshToken == "" || t.CreatedAt.Before(refreshIssuedBefore)) {
			delete(tr.tokens, k)
			delete(tr.refreshes, t.RefreshToken)
			n++
		}
	}
	return n, nil
}

// Get returns the stored row regardless of state, for assertions.
func (tr *FakeTokenRepo) Get(accessToken string) (*token.AccessToken, bool) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	t, ok := tr.tokens[accessToken]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (tr *FakeTokenRepo) active(accessToken string) (*token.AccessToken, error) {
	t, ok := tr.tokens[accessToken]
	if !ok || t.Revoked() {
		return nil, errors.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (tr *FakeTokenRepo) revoke(accessToken string, now time.Time) bool {
	t, ok := tr.tokens[accessToken]
	if !ok || t.Revoked() {
		return false
	}
	t.RevokedAt = &now
	return true
}
