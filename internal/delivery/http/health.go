package http

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the JSON response for health check
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// HealthHandler handles HTTP health check requests
type HealthHandler struct {
	db          *gorm.DB
	connections domain.ConnectionCache
	audit       domain.AuditProducer
	logger      zerolog.Logger
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(
	db *gorm.DB,
	connections domain.ConnectionCache,
	audit domain.AuditProducer,
	logger zerolog.Logger,
) *HealthHandler {
	return &HealthHandler{
		db:          db,
		connections: connections,
		audit:       audit,
		logger:      logger,
	}
}

// Handle handles the health check request for fasthttp
func (h *HealthHandler) Handle(ctx *fasthttp.RequestCtx) {
	components := h.checkComponents()
	status := h.determineOverallStatus(components)

	response := HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}

	statusCode := fasthttp.StatusOK
	if status == HealthStatusUnhealthy {
		statusCode = fasthttp.StatusServiceUnavailable
	}

	logEvent := h.logger.Debug()
	if status == HealthStatusUnhealthy {
		logEvent = h.logger.Warn()
	}
	logEvent.
		Str("status", string(status)).
		Int("status_code", statusCode).
		Msg("Health check completed")

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(statusCode)

	body, err := json.Marshal(response)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode health check response")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetBody(body)
}

func (h *HealthHandler) checkComponents() []ComponentHealth {
	components := make([]ComponentHealth, 0, 3)

	dbHealthy := true
	dbMsg := ""
	sqlDB, err := h.db.DB()
	if err != nil {
		dbHealthy = false
		dbMsg = err.Error()
	} else if err := sqlDB.Ping(); err != nil {
		dbHealthy = false
		dbMsg = err.Error()
	}
	components = append(components, ComponentHealth{
		Name:    "database",
		Healthy: dbHealthy,
		Message: dbMsg,
	})

	components = append(components, ComponentHealth{
		Name:    "connections",
		Healthy: true,
		Message: fmt.Sprintf("%d active userbot connections", h.connections.ActiveCount()),
	})

	auditMsg := ""
	if !h.audit.IsHealthy() {
		auditMsg = "audit stream disabled or unavailable"
	}
	components = append(components, ComponentHealth{
		Name:    "audit_stream",
		Healthy: h.audit.IsHealthy(),
		Message: auditMsg,
	})

	return components
}

func (h *HealthHandler) determineOverallStatus(components []ComponentHealth) HealthStatus {
	for _, c := range components {
		if c.Name == "database" && !c.Healthy {
			return HealthStatusUnhealthy
		}
	}
	for _, c := range components {
		if !c.Healthy {
			return HealthStatusDegraded
		}
	}
	return HealthStatusHealthy
}
