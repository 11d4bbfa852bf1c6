package http

import (
	"go.uber.org/fx"

	"github.com/vkondratev/userbot-relay/internal/infrastructure/http/server"
	pkgerrors "github.com/vkondratev/userbot-relay/pkg/errors"
)

// Module provides HTTP delivery dependencies
var Module = fx.Module("delivery",
	fx.Provide(
		pkgerrors.NewMapper,
		NewOperatorHandler,
		NewHealthHandler,
		NewRouter,
	),
	fx.Invoke(RegisterRoutes),
)

// RegisterRoutes attaches all delivery routes to the HTTP server
func RegisterRoutes(r *Router, srv *server.Server) {
	r.RegisterRoutes(srv.Router)
}
