package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/internal/utils"
)

type clientRepo struct {
	s *Store
}

var _ clients.Repo = (*clientRepo)(nil)

const clientColumns = `id, name, uid, secret, redirect_uri, scopes,
	client_uri, logo_uri, tos_uri, policy_uri, contacts, created_at, updated_at`

func (r *clientRepo) Create(ctx context.Context, c *clients.Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := r.s.exec(ctx, `
		INSERT INTO oauth_applications (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.UID, c.Secret, utils.JoinLines(c.RedirectURIs), utils.JoinScopes(c.Scopes),
		c.ClientURI, c.LogoURI, c.TosURI, c.PolicyURI, utils.JoinLines(c.Contacts),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if isConstraintViolation(err) {
		return errors.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*clients.Client, error) {
	return r.getBy(ctx, "id", id)
}

func (r *clientRepo) GetByUID(ctx context.Context, uid string) (*clients.Client, error) {
	return r.getBy(ctx, "uid", uid)
}

func (r *clientRepo) GetByName(ctx context.Context, name string) (*clients.Client, error) {
	return r.getBy(ctx, "name", name)
}

// FindOrCreateByName is a single upsert keyed on the unique name index. The credentials in
// the insert only land when the row is new; an existing row keeps its uid and secret.
func (r *clientRepo) FindOrCreateByName(ctx context.Context, reg clients.Registration, newUID, newSecret string) (*clients.Client, error) {
	now := formatTime(time.Now())
	_, err := r.s.exec(ctx, `
		INSERT INTO oauth_applications (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			redirect_uri = excluded.redirect_uri,
			scopes = excluded.scopes,
			client_uri = excluded.client_uri,
			logo_uri = excluded.logo_uri,
			tos_uri = excluded.tos_uri,
			policy_uri = excluded.policy_uri,
			contacts = excluded.contacts,
			updated_at = excluded.updated_at
	`, uuid.New().String(), reg.Name, newUID, newSecret, utils.JoinLines(reg.RedirectURIs),
		utils.JoinScopes(reg.Scopes), reg.ClientURI, reg.LogoURI, reg.TosURI, reg.PolicyURI,
		utils.JoinLines(reg.Contacts), now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting client %q: %w", reg.Name, err)
	}
	return r.GetByName(ctx, reg.Name)
}

func (r *clientRepo) List(ctx context.Context, offset, limit int) ([]*clients.Client, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.s.query(ctx, `
		SELECT `+clientColumns+` FROM oauth_applications
		ORDER BY name LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var list []*clients.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *clientRepo) getBy(ctx context.Context, column, value string) (*clients.Client, error) {
	row := r.s.queryRow(ctx, `SELECT `+clientColumns+` FROM oauth_applications WHERE `+column+` = ?`, value)
	c, err := scanClient(row)
	if err != nil {
		return nil, notFound(err, "client")
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*clients.Client, error) {
	var (
		c                               clients.Client
		redirects, scopes, contacts     string
		createdAt, updatedAt            string
		clientURI, logoURI, tos, policy sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.UID, &c.Secret, &redirects, &scopes,
		&clientURI, &logoURI, &tos, &policy, &contacts, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.RedirectURIs = utils.SplitLines(redirects)
	c.Scopes = utils.SplitScopes(scopes)
	c.Contacts = utils.SplitLines(contacts)
	c.ClientURI, c.LogoURI, c.TosURI, c.PolicyURI = clientURI.String, logoURI.String, tos.String, policy.String

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}
