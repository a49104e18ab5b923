package server

import (
	"html/template"
	"net/http"

	"github.com/jrsteele09/mcp-oauth-server/auth"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName  string
	ReturnTo string
	Error    string
	Username string // Preserve username on error
}

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Sign in to {{.AppName}}</title>
</head>
<body>
  <main>
    <h1>Sign in to {{.AppName}}</h1>
    {{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
    <form method="POST" action="/auth/login">
      <input type="hidden" name="return_to" value="{{.ReturnTo}}">
      <label>Username or email <input type="text" name="username" value="{{.Username}}" autocomplete="username" required></label>
      <label>Password <input type="password" name="password" autocomplete="current-password" required></label>
      <button type="submit">Sign in</button>
    </form>
  </main>
</body>
</html>
`))

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data := LoginPageData{
			AppName:  s.config.GetAppName(),
			ReturnTo: safeReturnTo(q.Get("return_to")),
			Error:    q.Get("error"),
			Username: q.Get("username"),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := loginTemplate.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render login template")
		}
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		returnTo := safeReturnTo(r.PostFormValue("return_to"))
		username := r.PostFormValue("username")

		user, err := s.auth.Login(r.Context(), username, r.PostFormValue("password"))
		if err != nil {
			if !errors.Is(err, auth.InvalidCredentialsErr) {
				log.Err(err).Msg("[LoginSubmissionHandler] login failed")
			}
			http.Redirect(w, r, loginURL(returnTo, "Invalid username or password"), http.StatusSeeOther)
			return
		}

		if err := s.SetLoginSessionCookie(w, r, user.ID); err != nil {
			log.Err(err).Msg("[LoginSubmissionHandler] failed to issue login session")
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
	}
}

// LogoutHandler drops the login session and revokes the tokens issued to the user.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := s.loggedInUser(r); ok {
			n, err := s.auth.Logout(r.Context(), userID)
			if err != nil {
				log.Err(err).Str("user_id", userID).Msg("[LogoutHandler] failed to revoke tokens")
			} else {
				log.Info().Str("user_id", userID).Int64("revoked", n).Msg("user logged out")
			}
		}
		s.ClearLoginSessionCookie(w, r)
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
	}
}
