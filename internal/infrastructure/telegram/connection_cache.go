package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/internal/domain"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/metrics"
)

// connectionCache owns at most one live userbot connection per operator.
// Each operator has a slot with its own dial lock, so a second Acquire
// for the same operator while a dial is in flight waits for and reuses
// that attempt instead of opening a second socket; different operators
// dial independently.
type connectionCache struct {
	slots map[int64]*operatorSlot
	mu    sync.Mutex // guards the slots map only

	// clientFactory is used to create new clients (can be overridden for testing)
	clientFactory ClientFactory

	logger zerolog.Logger
}

// operatorSlot serializes connection management for one operator.
type operatorSlot struct {
	mu     sync.Mutex
	client domain.UserbotClient
}

// NewConnectionCache creates a connection cache backed by real MTProto clients
func NewConnectionCache(logger zerolog.Logger) domain.ConnectionCache {
	return &connectionCache{
		slots:         make(map[int64]*operatorSlot),
		clientFactory: DefaultClientFactory,
		logger:        logger.With().Str("component", "connection_cache").Logger(),
	}
}

// NewConnectionCacheWithFactory creates a connection cache with a custom
// client factory. Used by tests and by callers that need non-default
// transport construction.
func NewConnectionCacheWithFactory(factory ClientFactory, logger zerolog.Logger) domain.ConnectionCache {
	return &connectionCache{
		slots:         make(map[int64]*operatorSlot),
		clientFactory: factory,
		logger:        logger.With().Str("component", "connection_cache").Logger(),
	}
}

func (c *connectionCache) slot(operatorID int64) *operatorSlot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[operatorID]
	if !ok {
		s = &operatorSlot{}
		c.slots[operatorID] = s
	}
	return s
}

// Acquire returns the cached healthy connection for the operator or
// dials a new one from the stored session token. An unauthorized session
// yields the unauthenticated connection plus ErrNotAuthorized, and the
// connection is not cached.
func (c *connectionCache) Acquire(ctx context.Context, cred domain.Credential) (domain.UserbotClient, error) {
	s := c.slot(cred.OperatorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := c.logger.With().Int64("operator_id", cred.OperatorID).Logger()

	if s.client != nil {
		if s.client.IsConnected() {
			logger.Debug().Msg("reusing cached connection")
			return s.client, nil
		}

		// Transport dropped since the last use; evict before redialing.
		logger.Info().Msg("cached connection is stale, evicting")
		c.closeClient(s.client, logger)
		s.client = nil
		metrics.DefaultMetrics.ActiveConnections.Dec()
	}

	metrics.DefaultMetrics.ConnectionDials.Inc()
	client, err := c.clientFactory(ClientConfig{
		APIID:        cred.APIID,
		APIHash:      cred.APIHash,
		SessionToken: cred.SessionToken,
		Logger:       logger,
	})
	if err != nil {
		metrics.DefaultMetrics.ConnectionErrors.Inc()
		return nil, fmt.Errorf("create client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		metrics.DefaultMetrics.ConnectionErrors.Inc()
		logger.Warn().Err(err).Msg("failed to connect")
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionFailed, err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		c.closeClient(client, logger)
		return nil, fmt.Errorf("check authorization: %w", err)
	}

	if !authorized {
		// Hand the unauthenticated connection back so the caller can
		// route the operator into the login flow; never cache it.
		logger.Warn().Msg("session not authorized, login required")
		return client, domain.ErrNotAuthorized
	}

	s.client = client
	logger.Info().Msg("connection established and cached")
	metrics.DefaultMetrics.ActiveConnections.Inc()
	return client, nil
}

// Evict closes and removes the cached connection if present. Idempotent
// and safe to call when no connection exists.
func (c *connectionCache) Evict(ctx context.Context, operatorID int64) error {
	s := c.slot(operatorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	logger := c.logger.With().Int64("operator_id", operatorID).Logger()
	if err := s.client.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("error closing evicted connection")
	}
	s.client = nil
	logger.Info().Msg("connection evicted")
	metrics.DefaultMetrics.ActiveConnections.Dec()
	return nil
}

// ActiveCount returns the number of currently cached live connections
func (c *connectionCache) ActiveCount() int {
	c.mu.Lock()
	slots := make([]*operatorSlot, 0, len(c.slots))
	for _, s := range c.slots {
		slots = append(slots, s)
	}
	c.mu.Unlock()

	count := 0
	for _, s := range slots {
		s.mu.Lock()
		if s.client != nil && s.client.IsConnected() {
			count++
		}
		s.mu.Unlock()
	}
	return count
}

// Shutdown disconnects all cached connections sequentially and returns
// the number that were closed.
func (c *connectionCache) Shutdown(ctx context.Context) int {
	c.mu.Lock()
	slots := make(map[int64]*operatorSlot, len(c.slots))
	for id, s := range c.slots {
		slots[id] = s
	}
	c.mu.Unlock()

	closed := 0
	for operatorID, s := range slots {
		s.mu.Lock()
		if s.client != nil {
			logger := c.logger.With().Int64("operator_id", operatorID).Logger()
			c.closeClient(s.client, logger)
			s.client = nil
			closed++
		}
		s.mu.Unlock()
	}

	c.logger.Info().Int("closed", closed).Msg("connection cache shut down")
	metrics.DefaultMetrics.ActiveConnections.Sub(float64(closed))
	return closed
}

func (c *connectionCache) closeClient(client domain.UserbotClient, logger zerolog.Logger) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("error closing connection")
	}
}
