package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/oauth2"
	"github.com/jrsteele09/mcp-oauth-server/oauthmodel"
	"github.com/jrsteele09/mcp-oauth-server/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ScopeProfile is required to read the user's own profile from the userinfo endpoint.
const ScopeProfile = "profile"

// AuthorizationService runs the authorization_code and refresh_token grants on top of the
// OAuth2 model adapter. It holds no per-request state.
type AuthorizationService struct {
	model       *oauthmodel.Model
	users       users.Repo
	requirePKCE bool
	nowTime     func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// WithRequirePKCE rejects authorization requests that carry no code challenge.
func WithRequirePKCE(required bool) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.requirePKCE = required
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(model *oauthmodel.Model, userRepo users.Repo, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if model == nil {
		return nil, pkgerrors.New("[NewAuthorizationService] model is required")
	}
	if userRepo == nil {
		return nil, pkgerrors.New("[NewAuthorizationService] Users repo is required")
	}

	authService := &AuthorizationService{
		model:   model,
		users:   userRepo,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(authService)
	}
	return authService, nil
}

// Login checks a username (or email) and password.
func (as *AuthorizationService) Login(ctx context.Context, username, password string) (*users.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, InvalidCredentialsErr
	}

	user, err := as.users.GetByUsername(ctx, username)
	if errors.Is(err, errors.ErrNotFound) && strings.Contains(username, "@") {
		user, err = as.users.GetByEmail(ctx, strings.ToLower(username))
	}
	if errors.Is(err, errors.ErrNotFound) {
		users.CheckPasswordHash(password, users.DummyPasswordHash())
		return nil, InvalidCredentialsErr
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[AuthorizationService.Login] users.GetByUsername")
	}

	if !user.CheckPassword(password) {
		return nil, InvalidCredentialsErr
	}
	return user, nil
}

// Logout revokes every unrevoked token issued to the user.
func (as *AuthorizationService) Logout(ctx context.Context, userID string) (int64, error) {
	n, err := as.model.RevokeUserTokens(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "[AuthorizationService.Logout]")
	}
	return n, nil
}

// Signup registers a new user.
func (as *AuthorizationService) Signup(ctx context.Context, username, email, name, password string) (*users.User, error) {
	user, err := users.NewUser(username, email, name, password)
	if err != nil {
		return nil, pkgerrors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if err := as.users.Create(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(err, "[AuthorizationService.Signup] users.Create")
	}
	return user, nil
}

// RegisterClient registers a client by name. Without credentials only a new name is
// accepted. Updating an existing client requires its client_id and secret, so its stored
// secret is only ever returned to its owner.
func (as *AuthorizationService) RegisterClient(ctx context.Context, reg clients.Registration, clientID, clientSecret string) (*clients.Client, error) {
	if clientID == "" && clientSecret == "" {
		c, err := as.model.CreateClient(ctx, reg)
		if errors.Is(err, errors.ErrDuplicate) {
			return nil, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata, "client_name is already registered")
		}
		if err != nil {
			return nil, registrationError(err)
		}
		return c, nil
	}

	owner, err := as.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if owner.Name != reg.Name {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata, "client_name does not match the authenticated client")
	}
	c, err := as.model.RegisterClient(ctx, reg)
	if err != nil {
		return nil, registrationError(err)
	}
	return c, nil
}

func registrationError(err error) error {
	switch {
	case errors.Is(err, errors.ErrInvalidRedirectURI):
		return oauth2.WrapError(err, oauth2.ErrCodeInvalidRedirectURI, "at least one valid redirect URI is required")
	case errors.Is(err, errors.ErrInvalidRequest):
		return oauth2.WrapError(err, oauth2.ErrCodeInvalidClientMetadata, "client_name is required")
	}
	return oauth2.AsError(err)
}

// ValidateAuthorization checks an authorization request against the client's registration
// and returns the client with the scope a grant would carry.
func (as *AuthorizationService) ValidateAuthorization(ctx context.Context, parameters *oauth2.AuthorizationParameters) (*oauthmodel.Client, []string, error) {
	if err := parameters.Validate(as.requirePKCE); err != nil {
		return nil, nil, err
	}

	client, err := as.model.GetClient(ctx, parameters.ClientID, nil)
	if err != nil {
		return nil, nil, oauth2.WrapError(err, oauth2.ErrCodeServerError, "client lookup failed")
	}
	if client == nil {
		return nil, nil, oauth2.NewError(oauth2.ErrCodeInvalidClient, "unknown client_id")
	}
	if !containsString(client.RedirectURIs, parameters.RedirectURI) {
		return nil, nil, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "redirect_uri is not registered for this client")
	}

	scope, err := grantedScope(parameters.Scope, client.Scope)
	if err != nil {
		return nil, nil, err
	}
	return client, scope, nil
}

// Authorize issues an authorization code for a user who has approved the client's request.
func (as *AuthorizationService) Authorize(ctx context.Context, parameters *oauth2.AuthorizationParameters, userID string) (string, error) {
	client, scope, err := as.ValidateAuthorization(ctx, parameters)
	if err != nil {
		return "", err
	}

	user, err := as.users.GetByID(ctx, userID)
	if errors.Is(err, errors.ErrNotFound) {
		return "", oauth2.NewError(oauth2.ErrCodeAccessDenied, "unknown user")
	}
	if err != nil {
		return "", oauth2.WrapError(err, oauth2.ErrCodeServerError, "user lookup failed")
	}

	code, err := as.model.GenerateAuthorizationCode()
	if err != nil {
		return "", oauth2.AsError(err)
	}
	if _, err := as.model.SaveAuthorizationCode(ctx, oauthmodel.CodeFields{
		AuthorizationCode:   code,
		RedirectURI:         parameters.RedirectURI,
		Scope:               scope,
		CodeChallenge:       parameters.CodeChallenge,
		CodeChallengeMethod: string(parameters.CodeChallengeMethod),
	}, *client, oauthmodel.User{ID: user.ID}); err != nil {
		return "", oauth2.AsError(err)
	}
	return code, nil
}

// Token handles the OAuth 2.0 token request.
func (as *AuthorizationService) Token(ctx context.Context, request oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if request.GrantType == "" {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "grant_type is required")
	}
	if request.GrantType != oauth2.AuthorizationCodeGrant && request.GrantType != oauth2.RefreshTokenCodeGrant {
		return nil, oauth2.NewError(oauth2.ErrCodeUnsupportedGrantType, string(request.GrantType))
	}

	client, err := as.authenticateClient(ctx, request.ClientID, request.ClientSecret)
	if err != nil {
		return nil, err
	}

	if request.GrantType == oauth2.AuthorizationCodeGrant {
		return as.exchangeAuthorizationCode(ctx, client, request)
	}
	return as.exchangeRefreshToken(ctx, client, request)
}

func (as *AuthorizationService) exchangeAuthorizationCode(ctx context.Context, client *oauthmodel.Client, request oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if request.Code == "" {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "code is required")
	}

	code, err := as.model.GetAuthorizationCode(ctx, request.Code)
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if code == nil {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "authorization code is invalid or expired")
	}
	if code.Client.ID != client.ID {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "authorization code was issued to another client")
	}
	if code.RedirectURI != request.RedirectURI {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if !checkCodeChallenge(code.CodeChallenge, request.CodeVerifier, oauth2.CodeMethodType(code.CodeChallengeMethod)) {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "code_verifier does not match the code challenge")
	}

	// Only the caller that consumes the code may issue tokens for it
	consumed, err := as.model.RevokeAuthorizationCode(ctx, oauthmodel.CodeRef{Code: code.AuthorizationCode})
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if !consumed {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "authorization code has already been used")
	}

	return as.issueTokens(ctx, client, code.User, code.Scope)
}

func (as *AuthorizationService) exchangeRefreshToken(ctx context.Context, client *oauthmodel.Client, request oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if request.RefreshToken == "" {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "refresh_token is required")
	}

	current, err := as.model.GetRefreshToken(ctx, request.RefreshToken)
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if current == nil {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "refresh token is invalid or expired")
	}
	if current.Client.ID != client.ID {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "refresh token was issued to another client")
	}

	scope := current.Scope
	if request.Scope != "" {
		scope, err = grantedScope(request.Scope, current.Scope)
		if err != nil {
			return nil, err
		}
	}

	rotated, err := as.model.RevokeToken(ctx, oauthmodel.TokenRef{RefreshToken: current.RefreshToken})
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if !rotated {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidGrant, "refresh token has already been used")
	}

	return as.issueTokens(ctx, client, current.User, scope)
}

func (as *AuthorizationService) issueTokens(ctx context.Context, client *oauthmodel.Client, user oauthmodel.User, scope []string) (*oauth2.TokenResponse, error) {
	accessToken, err := as.model.GenerateAccessToken()
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	refreshToken, err := as.model.GenerateRefreshToken()
	if err != nil {
		return nil, oauth2.AsError(err)
	}

	saved, err := as.model.SaveToken(ctx, oauthmodel.TokenFields{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Scope:        scope,
	}, *client, user)
	if err != nil {
		return nil, oauth2.AsError(err)
	}

	return &oauth2.TokenResponse{
		AccessToken:  saved.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(as.model.Config().AccessTokenLifetime.Seconds()),
		RefreshToken: saved.RefreshToken,
		Scope:        strings.Join(saved.Scope, " "),
	}, nil
}

// Revoke implements RFC 7009. Unknown tokens, and tokens issued to another client, are not
// reported as errors.
func (as *AuthorizationService) Revoke(ctx context.Context, rawToken string, hint oauth2.TokenTypeHint, clientID, clientSecret string) error {
	client, err := as.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}
	if rawToken == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, "token is required")
	}

	order := []oauth2.TokenTypeHint{oauth2.RefreshTokenHint, oauth2.AccessTokenHint}
	if hint == oauth2.AccessTokenHint {
		order = []oauth2.TokenTypeHint{oauth2.AccessTokenHint, oauth2.RefreshTokenHint}
	}
	for _, kind := range order {
		handled, err := as.revokeAs(ctx, kind, rawToken, client.ID)
		if err != nil {
			return oauth2.AsError(err)
		}
		if handled {
			return nil
		}
	}
	return nil
}

func (as *AuthorizationService) revokeAs(ctx context.Context, kind oauth2.TokenTypeHint, rawToken, clientID string) (bool, error) {
	var (
		found *oauthmodel.Token
		err   error
	)
	if kind == oauth2.RefreshTokenHint {
		found, err = as.model.GetRefreshToken(ctx, rawToken)
	} else {
		found, err = as.model.GetAccessToken(ctx, rawToken)
	}
	if err != nil || found == nil {
		return false, err
	}
	if found.Client.ID != clientID {
		log.Warn().Str("client_id", clientID).Msg("[AuthorizationService.Revoke] token belongs to another client")
		return true, nil
	}

	if kind == oauth2.RefreshTokenHint {
		_, err = as.model.RevokeToken(ctx, oauthmodel.TokenRef{RefreshToken: found.RefreshToken})
	} else {
		_, err = as.model.RevokeAccessToken(ctx, found.AccessToken)
	}
	return true, err
}

// Authenticate resolves a bearer token to its token view and checks the required scope.
func (as *AuthorizationService) Authenticate(ctx context.Context, bearer, requiredScope string) (*oauthmodel.Token, error) {
	if bearer == "" {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidToken, "bearer token is required")
	}
	t, err := as.model.GetAccessToken(ctx, bearer)
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if t == nil {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidToken, "token is invalid or revoked")
	}
	if !as.nowTime().Before(t.AccessTokenExpiresAt) {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidToken, "token has expired")
	}
	if !as.model.VerifyScope(t, requiredScope) {
		return nil, oauth2.NewError(oauth2.ErrCodeInsufficientScope, "scope "+requiredScope+" is required")
	}
	return t, nil
}

// UserInfo returns the profile claims of the token's user.
func (as *AuthorizationService) UserInfo(ctx context.Context, bearer string) (map[string]interface{}, error) {
	t, err := as.Authenticate(ctx, bearer, ScopeProfile)
	if err != nil {
		return nil, err
	}
	user, err := as.users.GetByID(ctx, t.User.ID)
	if err != nil {
		return nil, oauth2.WrapError(err, oauth2.ErrCodeInvalidToken, "user not found")
	}

	userInfo := map[string]interface{}{
		"sub":                user.ID,
		"preferred_username": user.Username,
		"email":              user.Email,
		"name":               user.Name,
	}
	return userInfo, nil
}

func (as *AuthorizationService) authenticateClient(ctx context.Context, clientID, clientSecret string) (*oauthmodel.Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidClient, "client authentication is required")
	}
	client, err := as.model.GetClient(ctx, clientID, &clientSecret)
	if err != nil {
		return nil, oauth2.AsError(err)
	}
	if client == nil {
		return nil, oauth2.NewError(oauth2.ErrCodeInvalidClient, "client authentication failed")
	}
	return client, nil
}

// grantedScope checks requested against allowed. An empty request grants everything allowed;
// an empty allowed list accepts any request.
func grantedScope(requested string, allowed []string) ([]string, error) {
	want := strings.Fields(requested)
	if len(want) == 0 {
		return append([]string(nil), allowed...), nil
	}
	if len(allowed) == 0 {
		return want, nil
	}
	set := oauthmodel.ScopeSet(allowed)
	for _, s := range want {
		if _, ok := set[s]; !ok {
			return nil, oauth2.NewError(oauth2.ErrCodeInvalidScope, "scope "+s+" is not allowed")
		}
	}
	return want, nil
}

func checkCodeChallenge(storedChallenge, verifier string, method oauth2.CodeMethodType) bool {
	if storedChallenge == "" && verifier == "" { // No PKCE code challenge
		return true
	}
	switch method {
	case oauth2.CodeMethodTypeS256:
		hash := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
	case oauth2.CodeMethodTypeNone:
		return verifier != "" && subtle.ConstantTimeCompare([]byte(verifier), []byte(storedChallenge)) == 1
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
