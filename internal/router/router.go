package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/project-tracker/internal/handler"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Auth     *handler.AuthHandler
	Projects *handler.ProjectHandler
	Tasks    *handler.TaskHandler
	Health   echo.HandlerFunc
}

// RegisterRoutes registers the operational endpoints: a health check for
// load balancers and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the /v1/auth routes. Register, activate, login
// and refresh run before a session exists and sit behind the rate
// limiter; logout and profile need a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authn, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.GET("/activate/:uid/:token", a.Activate)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)

	g.POST("/logout", a.Logout, authn)
	g.GET("/profile", a.Profile, authn)
}

// RegisterProjects registers project and task routes. Every route
// requires an access token; the services apply per-object permissions.
func RegisterProjects(e *echo.Echo, p *handler.ProjectHandler, t *handler.TaskHandler, authn echo.MiddlewareFunc) {
	g := e.Group("/v1", authn)

	g.GET("/projects", p.List)
	g.POST("/projects", p.Create)
	g.GET("/projects/:id", p.Get)
	g.PATCH("/projects/:id", p.Update)
	g.DELETE("/projects/:id", p.Delete)
	g.POST("/projects/:id/tasks", t.Create)

	g.GET("/tasks", t.List)
	g.GET("/tasks/:id", t.Get)
	g.PATCH("/tasks/:id", t.Update)
	g.DELETE("/tasks/:id", t.Delete)
}

// Register wires all route groups.
func Register(e *echo.Echo, h Handlers, authn, limit echo.MiddlewareFunc) {
	RegisterRoutes(e, h)
	RegisterAuth(e, h.Auth, authn, limit)
	RegisterProjects(e, h.Projects, h.Tasks, authn)
}
