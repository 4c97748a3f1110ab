package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"hxnotes/internal/http/htmx"
	"hxnotes/internal/http/middleware"
	"hxnotes/internal/service"
	"hxnotes/internal/validate"
	"hxnotes/internal/view"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorKind struct {
	code    string
	message string
}

var errorKinds = map[int]errorKind{
	fiber.StatusBadRequest:            {"BAD_REQUEST", "bad request"},
	fiber.StatusForbidden:             {"FORBIDDEN", "forbidden"},
	fiber.StatusNotFound:              {"NOT_FOUND", "resource not found"},
	fiber.StatusMethodNotAllowed:      {"METHOD_NOT_ALLOWED", "method not allowed"},
	fiber.StatusRequestEntityTooLarge: {"PAYLOAD_TOO_LARGE", "payload too large"},
	fiber.StatusUnprocessableEntity:   {"VALIDATION_FAILED", "validation failed"},
	fiber.StatusTooManyRequests:       {"TOO_MANY_REQUESTS", "too many requests"},
	fiber.StatusServiceUnavailable:    {"SERVICE_UNAVAILABLE", "dependency unavailable"},
}

var internalError = errorKind{"INTERNAL_ERROR", "internal server error"}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	return middleware.RequestIDFromCtx(c)
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeErrorFields(c, status, code, message, nil)
}

func writeErrorFields(c *fiber.Ctx, status int, code, message string, fields map[string]string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
			Fields:  fields,
		},
	}
	return c.Status(status).JSON(res)
}

// statusOf maps an error from any layer to an HTTP status.
func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrIDRequired), errors.Is(err, service.ErrReaderNil):
		return fiber.StatusBadRequest
	}
	if _, ok := validate.AsFieldErrors(err); ok {
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// wantsJSON reports whether the client should get the JSON envelope rather than HTML.
func wantsJSON(c *fiber.Ctx) bool {
	if strings.HasPrefix(c.Path(), "/api/") {
		return true
	}
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON
}

// ErrorHandler returns a Fiber global error handler that standardizes error
// responses. API and JSON clients receive the error envelope, htmx fragment
// requests receive partials/error retargeted into #flash together with an
// app:error event, and everything else receives the error page. views may be
// nil, in which case every error is answered with JSON.
func ErrorHandler(views *view.Renderer, log *zap.Logger) fiber.ErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		status := statusOf(err)
		kind, ok := errorKinds[status]
		if !ok {
			kind = internalError
		}
		message := kind.message
		if errors.Is(err, middleware.ErrCSRFMissing) || errors.Is(err, middleware.ErrCSRFInvalid) {
			message = "your session expired, reload the page and try again"
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("request_id", requestIDFromCtx(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}

		if views == nil || wantsJSON(c) {
			fe, _ := validate.AsFieldErrors(err)
			return writeErrorFields(c, status, kind.code, message, fe)
		}

		data := view.ErrorPage{Status: status, Code: kind.code, Message: message, RequestID: requestIDFromCtx(c)}
		if htmx.IsFragment(c) {
			htmx.Retarget(c, "#flash")
			htmx.Reswap(c, htmx.InnerHTML)
			if tErr := htmx.Trigger(c, "app:error", fiber.Map{"message": message, "status": status}); tErr != nil {
				return tErr
			}
			return views.Fragment(c, status, "partials/error", data)
		}
		return views.Page(c, status, "error", "Error", data)
	}
}
