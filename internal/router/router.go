package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // Echo web framework used for routing

	"github.com/iliyamo/termin-manager/internal/handler"    // handlers implementing the endpoints
	"github.com/iliyamo/termin-manager/internal/middleware" // JWT middleware for protected routes
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check used by
// load balancers and monitoring systems.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes.  Unauthenticated
// operations live under /v1/auth, the protected /v1/me endpoint verifies
// the access token via the JWT middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts either a refresh_token body or a bearer access token;
	// it does not require the JWT middleware.
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterSync registers the tenant-scoped sync endpoints: state push/pull,
// server-side backups, memberships and branding.  All routes require a
// valid access token and pass the rate limiter.  The response cache only
// covers backup reads: backups are append-only so a briefly stale listing
// is harmless, while state and branding reads carry their own cache with
// explicit invalidation inside the handlers.
func RegisterSync(e *echo.Echo, s *handler.SyncHandler, jwtSecret string, rate, cache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(rate)

	g.GET("/memberships", s.Memberships)
	g.POST("/orgs", s.CreateOrg)

	g.GET("/orgs/:id/state", s.GetState)
	g.PUT("/orgs/:id/state", s.PutState)

	g.POST("/orgs/:id/backups", s.CreateBackup)
	g.GET("/orgs/:id/backups", s.ListBackups, cache)
	g.GET("/backups/:id", s.GetBackup, cache)

	g.GET("/orgs/:id/branding", s.GetBranding)
	g.PUT("/orgs/:id/branding", s.PutBranding)
}
