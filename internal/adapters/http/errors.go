package http

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/tripcore/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, generation_timeout, unparseable_plan, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, http.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, http.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, http.StatusInternalServerError, "internal_error", msg)
}

// errUnavailable returns a 503 for optional features that are not configured.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, http.StatusServiceUnavailable, "unavailable", msg)
}

// errFromDomain maps service errors onto the HTTP error taxonomy.
func errFromDomain(c *fiber.Ctx, err error) error {
	var ge *domain.GenerationError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrRecoveryFailed):
		return newError(c, http.StatusUnprocessableEntity, "unparseable_plan", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, err.Error())
	case errors.As(err, &ge):
		switch ge.Kind {
		case domain.KindTimeout:
			return newError(c, http.StatusGatewayTimeout, "generation_timeout", err.Error())
		case domain.KindUnreachable:
			return newError(c, http.StatusServiceUnavailable, "generation_unreachable", err.Error())
		case domain.KindAuthorization:
			return newError(c, http.StatusBadGateway, "upstream_authorization", err.Error())
		default:
			return newError(c, http.StatusBadGateway, "generation_failed", err.Error())
		}
	case errors.Is(err, domain.ErrUpstreamAuthorization):
		return newError(c, http.StatusBadGateway, "upstream_authorization", err.Error())
	default:
		return errInternal(c, err.Error())
	}
}
