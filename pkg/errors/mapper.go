package errors

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// Mapper maps domain errors to HTTP status codes
type Mapper struct {
	logger zerolog.Logger
}

// NewMapper creates a new error mapper
func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// MapErrorToHTTP maps an error to HTTP status code and message
func (m *Mapper) MapErrorToHTTP(err error) (int, string) {
	if err == nil {
		return fasthttp.StatusOK, ""
	}

	switch {
	case errors.Is(err, domain.ErrCredentialNotFound):
		return fasthttp.StatusUnauthorized, "not logged in, start the login flow first"
	case errors.Is(err, domain.ErrNotAuthorized):
		return fasthttp.StatusUnauthorized, "session expired or revoked, log in again"
	case errors.Is(err, domain.ErrLoginNotActive):
		return fasthttp.StatusConflict, domain.ErrLoginNotActive.Error()
	case errors.Is(err, domain.ErrChatNotFound):
		return fasthttp.StatusNotFound, domain.ErrChatNotFound.Error()
	case errors.Is(err, domain.ErrSelfDependency):
		return fasthttp.StatusBadRequest, domain.ErrSelfDependency.Error()
	case errors.Is(err, domain.ErrConnectionFailed):
		return fasthttp.StatusBadGateway, "could not reach Telegram"
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fasthttp.StatusBadRequest, validationErr.Error()
	}

	var unauthorizedErr *UnauthorizedError
	if errors.As(err, &unauthorizedErr) {
		return fasthttp.StatusUnauthorized, unauthorizedErr.Error()
	}

	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return fasthttp.StatusNotFound, notFoundErr.Error()
	}

	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return fasthttp.StatusConflict, conflictErr.Error()
	}

	var unavailableErr *ServiceUnavailableError
	if errors.As(err, &unavailableErr) {
		return fasthttp.StatusServiceUnavailable, unavailableErr.Error()
	}

	m.logger.Error().Err(err).Msg("unmapped error, returning 500")
	return fasthttp.StatusInternalServerError, "internal server error"
}
