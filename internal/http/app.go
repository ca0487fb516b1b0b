// Package http wires domain modules onto the shared gin engine.
package http

import (
	"context"

	"itou_backend/platform/config"
	"itou_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs GET /api/health. A nil checker always reports ok.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is what cmd/api hands to the router once every dependency is built.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}

// Module mounts its own routes; the router knows nothing about endpoints.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext exposes the route groups a module may attach to.
// Protected requires a valid token, Admin additionally the admin role.
type RouterContext struct {
	V1        *gin.RouterGroup
	Protected *gin.RouterGroup
	Admin     *gin.RouterGroup
}
