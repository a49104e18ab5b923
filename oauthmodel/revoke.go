package oauthmodel

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RevokeAuthorizationCode consumes a code. Of concurrent calls for one code exactly one
// returns true; every later call returns false.
func (m *Model) RevokeAuthorizationCode(ctx context.Context, ref CodeRef) (bool, error) {
	if !validOpaque(ref.Code) {
		log.Warn().Int("length", len(ref.Code)).Msg("[Model.RevokeAuthorizationCode] malformed code reference")
		return false, nil
	}
	ok, err := m.repos.Grants.Revoke(ctx, ref.Code, m.now())
	if err != nil {
		return false, pkgerrors.Wrap(err, "[Model.RevokeAuthorizationCode] grants.Revoke")
	}
	return ok, nil
}

// RevokeToken revokes a token pair located by its refresh half.
func (m *Model) RevokeToken(ctx context.Context, ref TokenRef) (bool, error) {
	if !validOpaque(ref.RefreshToken) {
		log.Warn().Int("length", len(ref.RefreshToken)).Msg("[Model.RevokeToken] malformed token reference")
		return false, nil
	}
	ok, err := m.repos.Tokens.RevokeByRefreshToken(ctx, ref.RefreshToken, m.now())
	if err != nil {
		return false, pkgerrors.Wrap(err, "[Model.RevokeToken] tokens.RevokeByRefreshToken")
	}
	return ok, nil
}

// RevokeAccessToken revokes a token pair located by its access half.
func (m *Model) RevokeAccessToken(ctx context.Context, accessToken string) (bool, error) {
	if !validOpaque(accessToken) {
		log.Warn().Int("length", len(accessToken)).Msg("[Model.RevokeAccessToken] malformed access token")
		return false, nil
	}
	ok, err := m.repos.Tokens.RevokeByToken(ctx, accessToken, m.now())
	if err != nil {
		return false, pkgerrors.Wrap(err, "[Model.RevokeAccessToken] tokens.RevokeByToken")
	}
	return ok, nil
}

// RevokeUserTokens revokes every unrevoked token row of the user, as on logout.
func (m *Model) RevokeUserTokens(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	n, err := m.repos.Tokens.RevokeByUser(ctx, userID, m.now())
	if err != nil {
		return 0, pkgerrors.Wrap(err, "[Model.RevokeUserTokens] tokens.RevokeByUser")
	}
	return n, nil
}
