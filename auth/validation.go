package auth

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
)

// ValidateScope validates a space-delimited scope string. Empty is valid.
func ValidateScope(scope string) error {
	if scope == "" {
		return nil
	}
	if strings.ContainsAny(scope, "\n\r\t\"\\") {
		return errors.Wrapf(errors.ErrInvalidScope, "scope contains invalid characters")
	}
	for _, s := range strings.Split(scope, " ") {
		if s == "" {
			return errors.Wrapf(errors.ErrInvalidScope, "scope tokens must be separated by single spaces")
		}
	}
	return nil
}

// ValidateRedirectURI accepts absolute URIs without a fragment. Native MCP clients register
// custom schemes, so any scheme is allowed except plain http to a non-loopback host.
func ValidateRedirectURI(uri string) error {
	if uri == "" {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri is required")
	}
	if strings.TrimSpace(uri) != uri {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri must not contain surrounding whitespace")
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri %q must be absolute", uri)
	}
	if u.Fragment != "" || strings.Contains(uri, "#") {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri must not contain fragments")
	}
	if strings.EqualFold(u.Scheme, "http") && !isLoopback(u.Hostname()) {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "redirect_uri must use https unless it targets a loopback host")
	}
	return nil
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
