package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/marketline/marketchat/internal/chat"
)

// MediaHandler streams stored attachments. The signed token in the path is the
// only credential, so these routes skip caller authentication.
type MediaHandler struct {
	service *chat.Service
	logger  *slog.Logger
}

func NewMediaHandler(log *slog.Logger, service *chat.Service) *MediaHandler {
	return &MediaHandler{
		service: service,
		logger:  log.With(slog.String("handler", "media")),
	}
}

func (h *MediaHandler) Register(e *echo.Echo) {
	e.GET("/media/:token", h.Serve)
}

func (h *MediaHandler) Serve(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		return chat.NewError(chat.CodeInvalidInput, "token is required", nil)
	}
	reader, obj, err := h.service.OpenMedia(c.Request().Context(), token)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			h.logger.Debug("close media", slog.Any("error", cerr))
		}
	}()
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")
	header.Set(echo.HeaderCacheControl, "private, max-age=300")
	if obj.Size > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(obj.Size, 10))
	}
	if !strings.HasPrefix(contentType, "image/") {
		header.Set(echo.HeaderContentDisposition, "attachment")
	}
	c.Response().WriteHeader(http.StatusOK)
	if _, err := io.Copy(c.Response().Writer, reader); err != nil {
		h.logger.Warn("serve media stream failed", slog.Any("error", err))
	}
	return nil
}
