package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
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
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnauthorized returns a 401 error.
func errUnauthorized(c *fiber.Ctx, msg string) error {
	return newError(c, 401, "unauthorized", msg)
}

// errGone returns a 410 error.
func errGone(c *fiber.Ctx, msg string) error {
	return newError(c, 410, "gone", msg)
}

// errUpstream returns a 502 error.
func errUpstream(c *fiber.Ctx, msg string) error {
	return newError(c, 502, "upstream_error", msg)
}

// errFromUsecase maps core errors onto response codes. Anything unrecognised
// is logged and reported as internal.
func errFromUsecase(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, usecases.ErrSessionNotFound):
		return errNotFound(c, "session not found")
	case errors.Is(err, usecases.ErrUnknownFacility):
		return errNotFound(c, err.Error())
	case errors.Is(err, usecases.ErrSessionClosed):
		return errGone(c, "session closed")
	case errors.Is(err, usecases.ErrNotAuthenticated):
		return errUnauthorized(c, err.Error())
	case errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrUnknownLotType),
		errors.Is(err, usecases.ErrEmptyQuery):
		return errBadRequest(c, err.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("request failed", "error", err)
	return errInternal(c, "internal server error")
}

// isUsecaseError reports whether err is one of the core sentinels that
// errFromUsecase maps to a client error.
func isUsecaseError(err error) bool {
	for _, target := range []error{
		usecases.ErrSessionNotFound,
		usecases.ErrUnknownFacility,
		usecases.ErrSessionClosed,
		usecases.ErrNotAuthenticated,
		usecases.ErrEmptyQuery,
		domain.ErrInvalidWindow,
		domain.ErrUnknownLotType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
