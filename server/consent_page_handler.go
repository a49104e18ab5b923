package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/jrsteele09/mcp-oauth-server/oauth2"
	"github.com/rs/zerolog/log"
)

const consentApprove = "approve"

// ConsentPageData is what the user sees before a client gets an authorization code.
type ConsentPageData struct {
	AppName    string
	ClientName string
	Scopes     []string
	Request    string // the original authorization query, replayed on submit
	CSRFToken  string
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Authorize {{.ClientName}}</title>
</head>
<body>
  <main>
    <h1>{{.ClientName}} wants to access your {{.AppName}} account</h1>
    {{if .Scopes}}<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>{{end}}
    <form method="POST" action="/oauth2/authorize">
      <input type="hidden" name="request" value="{{.Request}}">
      <input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
      <button type="submit" name="decision" value="approve">Allow</button>
      <button type="submit" name="decision" value="deny">Deny</button>
    </form>
  </main>
</body>
</html>
`))

// Authorize validates the authorization request and asks the logged in user to approve it.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(ContextKeyUserID).(string)
		params := oauth2.ParseAuthorizationParameters(r.URL.Query())

		client, scope, err := s.auth.ValidateAuthorization(r.Context(), params)
		if err != nil {
			s.writeAuthorizeError(w, err, params.ClientID)
			return
		}

		csrf, err := s.sessions.IssueConsent(userID, client.ID)
		if err != nil {
			s.writeAuthorizeError(w, err, params.ClientID)
			return
		}

		name := client.Name
		if name == "" {
			name = client.ID
		}
		data := ConsentPageData{
			AppName:    s.config.GetAppName(),
			ClientName: name,
			Scopes:     scope,
			Request:    r.URL.RawQuery,
			CSRFToken:  csrf,
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		if err := consentTemplate.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render consent template")
		}
	}
}

// AuthorizeDecision handles the consent form. Approval issues a code; anything else sends
// access_denied back to the client.
func (s *Server) AuthorizeDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(ContextKeyUserID).(string)
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "failed to parse form data"))
			return
		}
		query, err := url.ParseQuery(r.PostFormValue("request"))
		if err != nil {
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeInvalidRequest, "malformed authorization request"))
			return
		}
		params := oauth2.ParseAuthorizationParameters(query)

		// The redirect URI is only trusted once the request validates against the client.
		if _, _, err := s.auth.ValidateAuthorization(r.Context(), params); err != nil {
			s.writeAuthorizeError(w, err, params.ClientID)
			return
		}
		if err := s.sessions.VerifyConsent(r.PostFormValue("csrf_token"), userID, params.ClientID); err != nil {
			log.Warn().Err(err).Str("client_id", params.ClientID).Msg("[AuthorizeDecision] rejecting consent form")
			writeOAuthError(w, oauth2.NewError(oauth2.ErrCodeAccessDenied, "consent form is invalid or expired"))
			return
		}

		values := url.Values{}
		if r.PostFormValue("decision") == consentApprove {
			code, err := s.auth.Authorize(r.Context(), params, userID)
			if err != nil {
				s.writeAuthorizeError(w, err, params.ClientID)
				return
			}
			values.Set("code", code)
		} else {
			values.Set("error", oauth2.ErrCodeAccessDenied)
			values.Set("error_description", "the user denied the request")
		}

		if err := callbackRedirect(w, r, params.RedirectURI, params.ResponseMode, params.State, values); err != nil {
			writeOAuthError(w, oauth2.WrapError(err, oauth2.ErrCodeInvalidRequest, "invalid redirect_uri"))
		}
	}
}

func (s *Server) writeAuthorizeError(w http.ResponseWriter, err error, clientID string) {
	oe := oauth2.AsError(err)
	if oe.Code == oauth2.ErrCodeServerError {
		log.Err(err).Str("client_id", clientID).Msg("[Authorize] failed")
	}
	writeOAuthError(w, oe)
}
