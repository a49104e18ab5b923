package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteSignup, ChainMiddleware(s.SignupHandler(), s.APIMiddleware()...))

	// OAuth2 routes
	s.RegisterRouteHandler("GET "+RouteWellKnownAuthServer, ChainMiddleware(s.AuthorizationServerMetadata(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.Authorize(), s.HTMLMiddleWare(s.RequireLoginSession)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeDecision(), s.HTMLMiddleWare(s.RequireLoginSession)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), s.APIMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Register, ChainMiddleware(s.Register(), s.APIMiddleware(s.NoStoreMiddleware, s.RequireRegistrationToken)...))

	// Bearer access token with the profile scope
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware(s.NoStoreMiddleware)...))

	// CORS preflight for the browser-facing API routes
	for _, route := range []string{RouteOAuth2Token, RouteOAuth2Revoke, RouteOAuth2Register, RouteUserInfo, RouteWellKnownAuthServer} {
		s.RegisterRouteHandler("OPTIONS "+route, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	}
}
