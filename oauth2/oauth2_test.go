package oauth2_test

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/mcp-oauth-server/oauth2"
	"github.com/stretchr/testify/require"
)

const testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

func TestValidatePKCE(t *testing.T) {
	t.Run("valid S256", func(t *testing.T) {
		require.NoError(t, oauth2.ValidatePKCE(testCodeChallenge, oauth2.CodeMethodTypeS256, true))
	})

	t.Run("missing both when required", func(t *testing.T) {
		err := oauth2.ValidatePKCE("", "", true)
		require.Error(t, err)
		require.Contains(t, err.Error(), "are required")
	})

	t.Run("missing both when optional", func(t *testing.T) {
		require.NoError(t, oauth2.ValidatePKCE("", "", false))
	})

	t.Run("challenge without method", func(t *testing.T) {
		require.Error(t, oauth2.ValidatePKCE(testCodeChallenge, "", false))
	})

	t.Run("challenge too short", func(t *testing.T) {
		err := oauth2.ValidatePKCE("tooshort", oauth2.CodeMethodTypeS256, false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "length must be between")
	})

	t.Run("invalid method", func(t *testing.T) {
		err := oauth2.ValidatePKCE(testCodeChallenge, "invalid", false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be 'S256' or 'plain'")
	})
}

func TestAuthorizationParameters(t *testing.T) {
	q := url.Values{}
	q.Set("client_id", "uid-1")
	q.Set("response_type", "code")
	q.Set("redirect_uri", "http://localhost:3000/cb")
	q.Set("state", "xyz")
	q.Set("code_challenge", testCodeChallenge)
	q.Set("code_challenge_method", "S256")

	p := oauth2.ParseAuthorizationParameters(q)
	require.NoError(t, p.Validate(true))
	require.Equal(t, "xyz", p.State)

	t.Run("unsupported response type", func(t *testing.T) {
		bad := *p
		bad.ResponseType = "token"
		var oe *oauth2.Error
		require.True(t, errors.As(bad.Validate(false), &oe))
		require.Equal(t, oauth2.ErrCodeUnsupportedResponseType, oe.Code)
	})

	t.Run("form_post is not offered", func(t *testing.T) {
		bad := *p
		bad.ResponseMode = "form_post"
		require.Error(t, bad.Validate(false))
	})

	t.Run("missing redirect", func(t *testing.T) {
		bad := *p
		bad.RedirectURI = ""
		require.Error(t, bad.Validate(false))
	})
}

func TestParseTokenRequest(t *testing.T) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "abc")
	form.Set("client_id", "form-id")

	t.Run("form credentials", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		tr := oauth2.ParseTokenRequest(r)
		require.Equal(t, oauth2.AuthorizationCodeGrant, tr.GrantType)
		require.Equal(t, "abc", tr.Code)
		require.Equal(t, "form-id", tr.ClientID)
	})

	t.Run("basic credentials win", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("basic-id:s%3Acret")))
		tr := oauth2.ParseTokenRequest(r)
		require.Equal(t, "basic-id", tr.ClientID)
		require.Equal(t, "s:cret", tr.ClientSecret)
	})
}

func TestErrorStatus(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, oauth2.NewError(oauth2.ErrCodeInvalidClient, "").Status)
	require.Equal(t, http.StatusBadRequest, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "").Status)
	require.Equal(t, http.StatusForbidden, oauth2.NewError(oauth2.ErrCodeInsufficientScope, "").Status)

	cause := errors.New("disk on fire")
	oe := oauth2.AsError(cause)
	require.Equal(t, oauth2.ErrCodeServerError, oe.Code)
	require.Equal(t, http.StatusInternalServerError, oe.Status)
	require.True(t, errors.Is(oe, cause))
}
