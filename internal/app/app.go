package app

import (
	"go.uber.org/fx"

	"github.com/vkondratev/userbot-relay/config"
	deliveryhttp "github.com/vkondratev/userbot-relay/internal/delivery/http"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/cache"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/database"
	infrahttp "github.com/vkondratev/userbot-relay/internal/infrastructure/http"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/kafka"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/logger"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/metrics"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/telegram"
	repo "github.com/vkondratev/userbot-relay/internal/repository/postgres"
	"github.com/vkondratev/userbot-relay/internal/usecase"
)

// CreateApp creates the fx application options
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(
			config.Load,
			config.Out,
		),

		logger.Module,
		metrics.Module,
		database.Module,
		kafka.Module,
		cache.Module,
		telegram.Module,

		repo.Module,
		usecase.Module,

		infrahttp.Module,
		deliveryhttp.Module,
	)
}
