package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/marketline/marketchat/internal/chat"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[chat.Code]int{
	chat.CodeInvalidInput:            http.StatusBadRequest,
	chat.CodeUserNotFound:            http.StatusNotFound,
	chat.CodeConversationNotFound:    http.StatusNotFound,
	chat.CodeMediaNotFound:           http.StatusNotFound,
	chat.CodeForbidden:               http.StatusForbidden,
	chat.CodeConflict:                http.StatusConflict,
	chat.CodePayloadTooLarge:         http.StatusRequestEntityTooLarge,
	chat.CodeInvalidMedia:            http.StatusUnsupportedMediaType,
	chat.CodeSchemaMigrationRequired: http.StatusServiceUnavailable,
	chat.CodeStorageUnavailable:      http.StatusServiceUnavailable,
	chat.CodeInternal:                http.StatusInternalServerError,
}

// StatusOf maps a chat error code to an HTTP status.
func StatusOf(code chat.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders chat errors and echo errors as ErrorResponse. Requests
// refused by the schema gate get a Retry-After hint.
func ErrorHandler(log *slog.Logger, retryAfter time.Duration) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	logger := log.With(slog.String("handler", "errors"))
	retry := strconv.Itoa(int((retryAfter + time.Second - 1) / time.Second))
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.String("code", body.Code),
				slog.Any("error", err),
			)
		}
		if body.Code == string(chat.CodeSchemaMigrationRequired) && retryAfter > 0 {
			c.Response().Header().Set("Retry-After", retry)
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Warn("write error response failed", slog.Any("error", werr))
		}
	}
}

func render(err error) (int, ErrorResponse) {
	var ce *chat.Error
	if errors.As(err, &ce) {
		return StatusOf(ce.Code), ErrorResponse{Code: string(ce.Code), Message: ce.Message}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ErrorResponse{Code: codeForStatus(he.Code), Message: fmt.Sprint(he.Message)}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: string(chat.CodeInternal), Message: "internal error"}
}

// codeForStatus names transport-level failures that never reach the chat layer.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(chat.CodeInvalidInput)
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusRequestEntityTooLarge:
		return string(chat.CodePayloadTooLarge)
	}
	if status >= http.StatusInternalServerError {
		return string(chat.CodeInternal)
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
