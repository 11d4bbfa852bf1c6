package telegram

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// Module provides the connection cache and login manager for fx DI
var Module = fx.Module("telegram",
	fx.Provide(
		func() ClientFactory { return DefaultClientFactory },
		NewConnectionCacheFx,
		NewLoginManager,
	),
)

// NewConnectionCacheFx creates the connection cache with lifecycle hooks
func NewConnectionCacheFx(lc fx.Lifecycle, factory ClientFactory, logger zerolog.Logger) domain.ConnectionCache {
	cache := NewConnectionCacheWithFactory(factory, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closed := cache.Shutdown(ctx)
			logger.Info().Int("closed", closed).Msg("userbot connections disconnected")
			return nil
		},
	})

	return cache
}
