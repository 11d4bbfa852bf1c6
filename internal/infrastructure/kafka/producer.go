// Package kafka contains the audit event producer
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/config"
	"github.com/vkondratev/userbot-relay/internal/domain"
)

// auditProducer implements domain.AuditProducer over a sarama sync producer
type auditProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewAuditProducer creates a Kafka producer for the audit event stream.
// When no brokers are configured a no-op producer is returned, so the
// service keeps working without Kafka.
func NewAuditProducer(cfg *config.KafkaConfig, logger zerolog.Logger) (domain.AuditProducer, error) {
	log := logger.With().Str("component", "audit_producer").Logger()

	if len(cfg.Brokers) == 0 {
		log.Warn().Msg("no kafka brokers configured, audit events will not be published")
		return &nopAuditProducer{}, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.ClientID = "userbot-relay-producer"
	saramaConfig.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.AuditTopic).Msg("Kafka producer initialized successfully")

	return &auditProducer{
		producer: producer,
		topic:    cfg.AuditTopic,
		logger:   log,
	}, nil
}

// Publish sends one audit event to the audit topic
func (p *auditProducer) Publish(ctx context.Context, eventType, message string) error {
	event := domain.AuditEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(eventType),
		Value: sarama.ByteEncoder(jsonData),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to send audit event")
		return err
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("audit event published")
	return nil
}

// Close shuts down the underlying producer
func (p *auditProducer) Close() error {
	return p.producer.Close()
}

// IsHealthy reports whether the producer is usable
func (p *auditProducer) IsHealthy() bool {
	return p.producer != nil
}

// nopAuditProducer discards all events
type nopAuditProducer struct{}

func (*nopAuditProducer) Publish(ctx context.Context, eventType, message string) error { return nil }
func (*nopAuditProducer) Close() error { return nil }
func (*nopAuditProducer) IsHealthy() bool { return false }
