package fakegrantrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/grants"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
)

var _ grants.Repo = (*FakeGrantRepo)(nil)

type FakeGrantRepo struct {
	grants map[string]*grants.Grant // keyed by token
	lock   sync.Mutex
}

func NewFakeGrantRepo() *FakeGrantRepo {
	return &FakeGrantRepo{grants: make(map[string]*grants.Grant)}
}

func (r *FakeGrantRepo) Create(_ context.Context, grant *grants.Grant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.grants[grant.Token]; ok {
		return errors.ErrDuplicate
	}
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	stored := *grant
	r.grants[grant.Token] = &stored
	return nil
}

func (r *FakeGrantRepo) GetActive(_ context.Context, token string, tokenType grants.TokenType, now time.Time) (*grants.Grant, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	g, ok := r.grants[token]
	if !ok || g.TokenType != tokenType || !g.Active(now) {
		return nil, errors.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *FakeGrantRepo) Revoke(_ context.Context, token string, now time.Time) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	g, ok := r.grants[token]
	if !ok || g.RevokedAt != nil {
		return false, nil
	}
	g.RevokedAt = &now
	return true, nil
}

func (r *FakeGrantRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var n int64
	for k, g := range r.grants {
		if g.ExpiresAt.Before(before) {
			delete(r.grants, k)
			n++
		}
	}
	return n, nil
}

// Get returns the stored grant regardless of state, for assertions.
func (r *FakeGrantRepo) Get(token string) (*grants.Grant, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	g, ok := r.grants[token]
	if !ok {
		return nil, false
	}
	cp := *g
	return &cp, true
}
