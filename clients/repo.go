package clients

import "context"

// Repo persists client applications. Lookups return errors.ErrNotFound when absent.
type Repo interface {
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id string) (*Client, error)
	GetByUID(ctx context.Context, uid string) (*Client, error)
	GetByName(ctx context.Context, name string) (*Client, error)
	// FindOrCreateByName creates the client with fresh credentials, or updates the
	// metadata of the existing client of that name while keeping its UID and secret.
	FindOrCreateByName(ctx context.Context, reg Registration, newUID, newSecret string) (*Client, error)
	List(ctx context.Context, offset, limit int) ([]*Client, error)
}
