package fakeclientrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]*clients.Client // keyed by internal ID
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (r *FakeClientRepo) Create(_ context.Context, client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, c := range r.clients {
		if c.UID == client.UID || c.Name == client.Name {
			return errors.ErrDuplicate
		}
	}
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	stored := *client
	r.clients[client.ID] = &stored
	return nil
}

func (r *FakeClientRepo) GetByID(_ context.Context, id string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *FakeClientRepo) GetByUID(_ context.Context, uid string) (*clients.Client, error) {
	return r.find(func(c *clients.Client) bool { return c.UID == uid })
}

func (r *FakeClientRepo) GetByName(_ context.Context, name string) (*clients.Client, error) {
	return r.find(func(c *clients.Client) bool { return c.Name == name })
}

func (r *FakeClientRepo) FindOrCreateByName(ctx context.Context, reg clients.Registration, newUID, newSecret string) (*clients.Client, error) {
	r.lock.Lock()
	for _, c := range r.clients {
		if c.Name == reg.Name {
			reg.Apply(c)
			c.UpdatedAt = time.Now().UTC()
			cp := *c
			r.lock.Unlock()
			return &cp, nil
		}
	}
	r.lock.Unlock()

	c := &clients.Client{UID: newUID, Secret: newSecret}
	reg.Apply(c)
	if err := r.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *FakeClientRepo) List(_ context.Context, offset, limit int) ([]*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*clients.Client, 0, len(r.clients))
	for _, v := range r.clients {
		cp := *v
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return list[offset:end], nil
}

func (r *FakeClientRepo) find(match func(*clients.Client) bool) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, c := range r.clients {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.ErrNotFound
}
