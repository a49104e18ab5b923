package server

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/mcp-oauth-server/auth"
	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/internal/utils"
	"github.com/jrsteele09/mcp-oauth-server/oauth2"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	maxJSONBody = 64 << 10
)

// AuthorizationServerMetadata serves the RFC 8414 discovery document MCP clients read first.
func (s *Server) AuthorizationServerMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.issuer(r)

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteOAuth2Authorize,
			"token_endpoint":         baseURL + RouteOAuth2Token,
			"revocation_endpoint":    baseURL + RouteOAuth2Revoke,
			"registration_endpoint":  baseURL + RouteOAuth2Register,
			"userinfo_endpoint":      baseURL + RouteUserInfo,

			"response_types_supported":         []string{string(oauth2.CodeResponseType)},
			"response_modes_supported":         []string{string(oauth2.QueryResponseMode), string(oauth2.FragmentResponseMode)},
			"grant_types_supported":            oauth2.SupportedGrants,
			"code_challenge_methods_supported": []string{string(oauth2.CodeMethodTypeS256), string(oauth2.CodeMethodTypeNone)},

			"token_endpoint_auth_methods_supported":      []string{"client_secret_basic", "client_secret_post"},
			"revocation_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, resp)
	}
}

// Token exchanges an authorization code or refresh token for a new token pair.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request oauth2.TokenRequest
		if isJSON(r) {
			var err error
			if request, err = parseJSONTokenRequest(w, r); err != nil {
				writeOAuthError(w, oauth2.WrapError(err, oauth2.ErrCodeInvalidRequest, "invalid JSON token request"))
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "failed to parse form data"))
				return
			}
			request = oauth2.ParseTokenRequest(r)
		}

		tokenResponse, err := s.auth.Token(r.Context(), request)
		if err != nil {
			oe := oauth2.AsError(err)
			if oe.Code == oauth2.ErrCodeServerError {
				log.Err(err).Msg("[Token] failed")
			}
			if oe.Code == oauth2.ErrCodeInvalidClient {
				w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
			}
			writeOAuthError(w, oe)
			return
		}

		writeJSON(w, http.StatusOK, tokenResponse)
	}
}

// Revoke implements RFC 7009 for form bodies, and accepts JSON bodies for integrators that
// send the token wrapped in an object.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			rawToken         string
			hint             oauth2.TokenTypeHint
			clientID, secret string
		)

		if isJSON(r) {
			var body map[string]any
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&body); err != nil {
				writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "invalid JSON body"))
				return
			}
			var wrapped any = body
			if nested, ok := body["token"].(map[string]any); ok {
				wrapped = nested
			}
			ref, err := auth.UnwrapTokenRef(wrapped)
			if err != nil {
				writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "token is required"))
				return
			}
			rawToken = ref.RefreshToken
			hint = oauth2.TokenTypeHint(stringField(body, "token_type_hint"))
			clientID, secret = stringField(body, "client_id"), stringField(body, "client_secret")
		} else {
			if err := r.ParseForm(); err != nil {
				writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "failed to parse form data"))
				return
			}
			rawToken = r.PostFormValue("token")
			hint = oauth2.TokenTypeHint(r.PostFormValue("token_type_hint"))
			clientID, secret = r.PostFormValue("client_id"), r.PostFormValue("client_secret")
		}
		if id, sc, ok := oauth2.BasicClientCredentials(r); ok {
			clientID, secret = id, sc
		}

		if err := s.auth.Revoke(r.Context(), rawToken, hint, clientID, secret); err != nil {
			oe := oauth2.AsError(err)
			if oe.Code == oauth2.ErrCodeServerError {
				log.Err(err).Msg("[Revoke] failed")
			}
			writeOAuthError(w, oe)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// parseJSONTokenRequest reads a token request sent as JSON. The code and refresh token may
// be bare strings or objects carrying them.
func parseJSONTokenRequest(w http.ResponseWriter, r *http.Request) (oauth2.TokenRequest, error) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&body); err != nil {
		return oauth2.TokenRequest{}, err
	}

	request := oauth2.TokenRequest{
		GrantType:    oauth2.GrantType(stringField(body, "grant_type")),
		ClientID:     stringField(body, "client_id"),
		ClientSecret: stringField(body, "client_secret"),
		RedirectURI:  stringField(body, "redirect_uri"),
		CodeVerifier: stringField(body, "code_verifier"),
		Scope:        stringField(body, "scope"),
	}
	if v, ok := body["code"]; ok {
		ref, err := auth.UnwrapCodeRef(v)
		if err != nil {
			return oauth2.TokenRequest{}, err
		}
		request.Code = ref.Code
	}
	if v, ok := body["refresh_token"]; ok {
		ref, err := auth.UnwrapTokenRef(v)
		if err != nil {
			return oauth2.TokenRequest{}, err
		}
		request.RefreshToken = ref.RefreshToken
	}
	if id, secret, ok := oauth2.BasicClientCredentials(r); ok {
		request.ClientID, request.ClientSecret = id, secret
	}
	return request, nil
}

// registrationResponse follows RFC 7591 field names.
type registrationResponse struct {
	ClientID         string   `json:"client_id"`
	ClientSecret     string   `json:"client_secret"`
	ClientIDIssuedAt int64    `json:"client_id_issued_at"`
	ClientName       string   `json:"client_name"`
	RedirectURIs     []string `json:"redirect_uris"`
	GrantTypes       []string `json:"grant_types"`
	Scope            string   `json:"scope,omitempty"`
	ClientURI        string   `json:"client_uri,omitempty"`
	LogoURI          string   `json:"logo_uri,omitempty"`
	TosURI           string   `json:"tos_uri,omitempty"`
	PolicyURI        string   `json:"policy_uri,omitempty"`
	Contacts         []string `json:"contacts,omitempty"`
}

// registrationRequest accepts both the scopes list and the RFC 7591 space-delimited scope.
// An owner updating its client authenticates with client_id and client_secret, in the body
// or with HTTP Basic.
type registrationRequest struct {
	clients.Registration
	Scope        string `json:"scope"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Register creates a client by name. Re-registering a name updates its metadata and is only
// allowed for the authenticated owner of that client.
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registrationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata, "invalid JSON body"))
			return
		}
		reg := req.Registration
		if len(reg.Scopes) == 0 && req.Scope != "" {
			reg.Scopes = utils.SplitScopes(req.Scope)
		}
		if oe := registrationMetadataError(reg, req.Scope); oe != nil {
			writeOAuthError(w, oe)
			return
		}

		clientID, secret := req.ClientID, req.ClientSecret
		if id, sc, ok := oauth2.BasicClientCredentials(r); ok {
			clientID, secret = id, sc
		}

		client, err := s.auth.RegisterClient(r.Context(), reg, clientID, secret)
		if err != nil {
			oe := oauth2.AsError(err)
			switch oe.Code {
			case oauth2.ErrCodeServerError:
				log.Err(err).Str("client_name", reg.Name).Msg("[Register] failed")
			case oauth2.ErrCodeInvalidClient:
				w.Header().Set("WWW-Authenticate", `Basic realm="register"`)
			}
			writeOAuthError(w, oe)
			return
		}

		grantTypes := make([]string, 0, len(oauth2.SupportedGrants))
		for _, g := range oauth2.SupportedGrants {
			grantTypes = append(grantTypes, string(g))
		}
		writeJSON(w, http.StatusCreated, registrationResponse{
			ClientID:         client.UID,
			ClientSecret:     client.Secret,
			ClientIDIssuedAt: client.CreatedAt.Unix(),
			ClientName:       client.Name,
			RedirectURIs:     client.RedirectURIs,
			GrantTypes:       grantTypes,
			Scope:            utils.JoinScopes(client.Scopes),
			ClientURI:        client.ClientURI,
			LogoURI:          client.LogoURI,
			TosURI:           client.TosURI,
			PolicyURI:        client.PolicyURI,
			Contacts:         client.Contacts,
		})
	}
}

// UserInfo returns the profile of the token's user. The token needs the profile scope.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userInfo, err := s.auth.UserInfo(r.Context(), s.bearerToken(r))
		if err != nil {
			oe := oauth2.AsError(err)
			if oe.Status == http.StatusUnauthorized || oe.Status == http.StatusForbidden {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error=%q, error_description=%q`, oe.Code, oe.Description))
			}
			writeOAuthError(w, oe)
			return
		}
		writeJSON(w, http.StatusOK, userInfo)
	}
}

// Helper functions

// callbackRedirect sends the authorization response to the client's redirect URI in the
// query string or the fragment.
func callbackRedirect(w http.ResponseWriter, r *http.Request, callbackURI string, responseMode oauth2.ResponseModeType, state string, values url.Values) error {
	u, err := url.Parse(callbackURI)
	if err != nil {
		return fmt.Errorf("[callbackRedirect] invalid redirect URI: %w", err)
	}
	if state != "" {
		values.Set("state", state)
	}

	if responseMode == oauth2.FragmentResponseMode {
		u.Fragment = values.Encode()
	} else {
		params := u.Query()
		for k, v := range values {
			params[k] = v
		}
		u.RawQuery = params.Encode()
	}
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
	return nil
}

// writeOAuthError writes an OAuth2 error response
func writeOAuthError(w http.ResponseWriter, oe *oauth2.Error) {
	writeJSON(w, oe.Status, oe)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// registrationMetadataError applies the redirect URI and scope syntax checks. Empty fields
// are left to clients.Registration.Validate.
func registrationMetadataError(reg clients.Registration, scope string) *oauth2.Error {
	for _, uri := range reg.RedirectURIs {
		if err := auth.ValidateRedirectURI(uri); err != nil {
			return oauth2.NewError(oauth2.ErrCodeInvalidRedirectURI, err.Error())
		}
	}
	if err := auth.ValidateScope(scope); err != nil {
		return oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata, err.Error())
	}
	for _, sc := range reg.Scopes {
		if sc == "" || strings.Contains(sc, " ") || auth.ValidateScope(sc) != nil {
			return oauth2.NewError(oauth2.ErrCodeInvalidClientMetadata, "invalid scope "+strconv.Quote(sc))
		}
	}
	return nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
