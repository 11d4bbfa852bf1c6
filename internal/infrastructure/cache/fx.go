package cache

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/vkondratev/userbot-relay/config"
)

// Module provides the cooldown table for fx DI
var Module = fx.Module("cache",
	fx.Provide(NewCooldownTableFx),
)

// NewCooldownTableFx creates the shared cooldown table from config
func NewCooldownTableFx(cfg *config.DispatchConfig, logger zerolog.Logger) *CooldownTable {
	return NewCooldownTable(cfg.CooldownWindow, logger)
}
