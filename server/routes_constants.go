package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteLogin      = "/login"
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"

	// Auth Routes - Signup
	RouteSignup = "/auth/signup"

	// OAuth2 Routes
	RouteWellKnownAuthServer = "/.well-known/oauth-authorization-server"
	RouteOAuth2Authorize     = "/oauth2/authorize"
	RouteOAuth2Token         = "/oauth2/token"
	RouteOAuth2Revoke        = "/oauth2/revoke"
	RouteOAuth2Register      = "/oauth2/register"
	RouteUserInfo            = "/userinfo"

	RouteHealth = "/healthz"
)
