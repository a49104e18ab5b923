package clients

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
)

// Client is a registered OAuth application. ID is the internal row key; UID is the public
// client_id handed to integrators. The secret is never serialized.
type Client struct {
	ID           string    `json:"id"`
	UID          string    `json:"uid"`
	Secret       string    `json:"-"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirectURIs"`
	Scopes       []string  `json:"scopes"` // Allowed scopes for this client
	ClientURI    string    `json:"clientURI,omitempty"`
	LogoURI      string    `json:"logoURI,omitempty"`
	TosURI       string    `json:"tosURI,omitempty"`
	PolicyURI    string    `json:"policyURI,omitempty"`
	Contacts     []string  `json:"contacts,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	secretDigest []byte // SHA-256 of the secret when the plaintext was not loaded
}

// SecretMatches compares secret with the client's secret in constant time.
func (c *Client) SecretMatches(secret string) bool {
	if c.Secret != "" {
		return subtle.ConstantTimeCompare([]byte(secret), []byte(c.Secret)) == 1
	}
	if len(c.secretDigest) == 0 {
		return false
	}
	sum := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(sum[:], c.secretDigest) == 1
}

// Registration is the metadata an integrator supplies; Name is the find-or-create key.
type Registration struct {
	Name         string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	ClientURI    string   `json:"client_uri,omitempty"`
	LogoURI      string   `json:"logo_uri,omitempty"`
	TosURI       string   `json:"tos_uri,omitempty"`
	PolicyURI    string   `json:"policy_uri,omitempty"`
	Contacts     []string `json:"contacts,omitempty"`
}

// Validate checks the fields every registered application needs.
func (r Registration) Validate() error {
	if r.Name == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "client name is required")
	}
	if len(r.RedirectURIs) == 0 {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "at least one redirect URI is required")
	}
	return nil
}

// Apply copies the registration metadata onto the client, leaving the credentials alone.
func (r Registration) Apply(c *Client) {
	c.Name = r.Name
	c.RedirectURIs = append([]string(nil), r.RedirectURIs...)
	c.Scopes = append([]string(nil), r.Scopes...)
	c.ClientURI = r.ClientURI
	c.LogoURI = r.LogoURI
	c.TosURI = r.TosURI
	c.PolicyURI = r.PolicyURI
	c.Contacts = append([]string(nil), r.Contacts...)
}
