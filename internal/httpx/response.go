// Package httpx holds the JSON envelope every endpoint answers with and the
// mapping from domain error kinds to HTTP status and recovery action.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/service"
)

// Envelope is the uniform response body. Action names what the client
// should do to recover from a failure: refresh, relogin, reduce_quantity,
// choose_address, retry or fix_input.
type Envelope struct {
	Success   bool   `json:"success"`
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Action    string `json:"action,omitempty"`
	Data      any    `json:"data,omitempty"`
	Page      *int   `json:"page,omitempty"`
	TotalPage *int   `json:"totalPage,omitempty"`
}

// OK writes a success envelope.
func OK(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Paged writes a success envelope carrying pagination fields.
func Paged(c echo.Context, message string, data any, page, totalPage int) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data, Page: &page, TotalPage: &totalPage})
}

// Fail writes the failure envelope for err. Errors that are not domain
// errors are logged and answered with a generic 500.
func Fail(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Kind: service.KindInternal, Message: "internal error", Err: err}
	}
	switch {
	case se.Kind != service.KindInternal:
	case errors.Is(err, context.Canceled):
		logger.From(c.Request().Context()).Debug("request canceled", logger.Err(err))
	default:
		logger.From(c.Request().Context()).Error("request failed", logger.Err(err))
	}
	action := se.Action
	if action == "" {
		action = ActionFor(se.Kind)
	}
	env := Envelope{Error: true, Message: se.Message, Code: string(se.Kind), Action: action}
	if len(se.Shortages) > 0 {
		env.Data = map[string]any{"shortages": se.Shortages}
	}
	if env.Message == "" {
		env.Message = string(se.Kind)
	}
	return c.JSON(StatusFor(se.Kind), env)
}

// FailStatus writes a failure envelope that has no domain error behind it,
// e.g. a rate limit or a role check.
func FailStatus(c echo.Context, status int, code, message, action string) error {
	return c.JSON(status, Envelope{Error: true, Message: message, Code: code, Action: action})
}

// FailData is FailStatus with an extra payload.
func FailData(c echo.Context, status int, code, message, action string, data any) error {
	return c.JSON(status, Envelope{Error: true, Message: message, Code: code, Action: action, Data: data})
}

// StatusFor maps a kind to its HTTP status.
func StatusFor(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindInvalidCredentials, service.KindInvalidAccess, service.KindExpiredAccess,
		service.KindInvalidSession, service.KindSessionCompromised:
		return http.StatusUnauthorized
	case service.KindProductUnavailable, service.KindInsufficientStock, service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ActionFor maps a kind to the default recovery action.
func ActionFor(k service.Kind) string {
	switch k {
	case service.KindValidation, service.KindInvalidCredentials, service.KindConflict:
		return "fix_input"
	case service.KindInvalidAccess, service.KindExpiredAccess:
		return "refresh"
	case service.KindInvalidSession, service.KindSessionCompromised:
		return "relogin"
	case service.KindProductUnavailable, service.KindInsufficientStock:
		return "reduce_quantity"
	case service.KindInternal:
		return "retry"
	default:
		return ""
	}
}
