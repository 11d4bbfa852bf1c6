package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/vkondratev/userbot-relay/config"
	"github.com/vkondratev/userbot-relay/internal/domain"
)

// Module provides kafka components for fx dependency injection
var Module = fx.Module("kafka",
	fx.Provide(NewAuditProducerFx),
)

// NewAuditProducerFx creates the audit producer with fx lifecycle management
func NewAuditProducerFx(
	lc fx.Lifecycle,
	cfg *config.KafkaConfig,
	logger zerolog.Logger,
) (domain.AuditProducer, error) {
	producer, err := NewAuditProducer(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("Closing audit producer")
			return producer.Close()
		},
	})

	return producer, nil
}
