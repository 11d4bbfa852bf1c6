package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
)

// Router registers operator-facing HTTP routes
type Router struct {
	operators *OperatorHandler
	health    *HealthHandler
	logger    zerolog.Logger
}

// NewRouter creates a new router
func NewRouter(operators *OperatorHandler, health *HealthHandler, logger zerolog.Logger) *Router {
	return &Router{
		operators: operators,
		health:    health,
		logger:    logger,
	}
}

// RegisterRoutes registers all routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	rt.GET("/health", r.health.Handle)

	api := rt.Group("/api/v1")

	api.POST("/login/start", r.operators.LoginStart)
	api.POST("/login/input", r.operators.LoginInput)
	api.POST("/login/cancel", r.operators.LoginCancel)

	api.GET("/operators/{operator_id}/status", r.operators.Status)
	api.POST("/operators/{operator_id}/logout", r.operators.Logout)
	api.POST("/operators/{operator_id}/chats/sync", r.operators.SyncChats)

	api.POST("/send", r.operators.Send)
	api.POST("/senddep", r.operators.SendWithDependency)
	api.POST("/join", r.operators.Join)

	api.GET("/chats", r.operators.ListChats)
	api.POST("/chats", r.operators.AddChat)
	api.PUT("/chats/{chat_id}/dependency", r.operators.SetDependency)
}
