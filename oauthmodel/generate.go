package oauthmodel

import (
	"github.com/jrsteele09/mcp-oauth-server/token"
	pkgerrors "github.com/pkg/errors"
)

func (m *Model) GenerateAccessToken() (string, error) {
	v, err := token.Generate(m.cfg.TokenLength)
	return v, pkgerrors.Wrap(err, "[Model.GenerateAccessToken]")
}

func (m *Model) GenerateRefreshToken() (string, error) {
	v, err := token.Generate(m.cfg.TokenLength)
	return v, pkgerrors.Wrap(err, "[Model.GenerateRefreshToken]")
}

func (m *Model) GenerateAuthorizationCode() (string, error) {
	v, err := token.Generate(m.cfg.TokenLength)
	return v, pkgerrors.Wrap(err, "[Model.GenerateAuthorizationCode]")
}
