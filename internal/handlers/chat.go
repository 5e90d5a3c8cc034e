package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/marketline/marketchat/internal/auth"
	"github.com/marketline/marketchat/internal/chat"
	"github.com/marketline/marketchat/internal/message"
	"github.com/marketline/marketchat/internal/presence"
)

// multipartOverhead is allowed on top of the media cap for form framing.
const multipartOverhead = 64 << 10

// ChatHandler serves the /chat API.
type ChatHandler struct {
	service  *chat.Service
	maxBytes int64
	logger   *slog.Logger
}

// NewChatHandler creates a ChatHandler. maxUpload bounds the multipart body.
func NewChatHandler(log *slog.Logger, service *chat.Service, maxUpload int64) *ChatHandler {
	return &ChatHandler{
		service:  service,
		maxBytes: maxUpload,
		logger:   log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/chat")
	group.GET("/conversations", h.ListConversations)
	group.GET("/conversations/:id/messages", h.ListConversationMessages)
	group.GET("/messages", h.ListMessagesWith)
	group.POST("/messages", h.SendMessage)
	group.POST("/uploads", h.Upload)
	group.POST("/read", h.MarkRead)
	group.POST("/heartbeat", h.Heartbeat)
	group.GET("/presence", h.Presence)
	group.GET("/unread", h.Unread)
}

type ListConversationsQuery struct {
	Counterparty string `query:"counterparty" validate:"omitempty,max=320"`
}

type PageQuery struct {
	With   string `query:"with" validate:"omitempty,max=320"`
	Before int64  `query:"before" validate:"gte=0,excluded_with=Since"`
	Since  int64  `query:"since" validate:"gte=0"`
	Limit  int    `query:"limit" validate:"gte=0,lte=1000"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required_without=To"`
	To             string `json:"to" validate:"omitempty,max=320"`
	Kind           string `json:"kind" validate:"omitempty,oneof=text image file"`
	Text           string `json:"text"`
	MediaRef       string `json:"media_ref" validate:"omitempty,max=2048"`
	ClientToken    string `json:"client_token" validate:"omitempty,max=128"`
}

type MarkReadRequest struct {
	ConversationID string `json:"conversation_id" validate:"required_without=All"`
	All            bool   `json:"all"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type HeartbeatRequest struct {
	Aliases []string `json:"aliases" validate:"max=8,dive,max=320"`
}

type PresenceQuery struct {
	Refs   string `query:"refs" validate:"required"`
	Window string `query:"window" validate:"omitempty,oneof=active online"`
}

type PresenceResponse struct {
	Online map[string]bool `json:"online"`
}

type UnreadResponse struct {
	Total int64 `json:"total"`
}

func (h *ChatHandler) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return chat.NewError(chat.CodeInvalidInput, "malformed request", err)
	}
	return c.Validate(req)
}

// ListConversations returns the caller's conversations. A matching If-None-Match
// short-circuits to 304.
func (h *ChatHandler) ListConversations(c echo.Context) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var q ListConversationsQuery
	if err := h.bind(c, &q); err != nil {
		return err
	}
	list, err := h.service.ListConversations(c.Request().Context(), claims, q.Counterparty, c.Request().Header.Get("If-None-Match"))
	if err != nil {
		return err
	}
	setVersion(c, list.Version)
	if list.NotModified {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ChatHandler) ListConversationMessages(c echo.Context) error {
	return h.listMessages(c, strings.TrimSpace(c.Param("id")))
}

func (h *ChatHandler) ListMessagesWith(c echo.Context) error {
	return h.listMessages(c, "")
}

func (h *ChatHandler) listMessages(c echo.Context, conversationID string) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var q PageQuery
	if err := h.bind(c, &q); err != nil {
		return err
	}
	if conversationID == "" && strings.TrimSpace(q.With) == "" {
		return chat.NewError(chat.CodeInvalidInput, "with is required", nil)
	}
	page, err := h.service.Messages(c.Request().Context(), claims, chat.PageRequest{
		ConversationID: conversationID,
		With:           q.With,
		Query:          message.ListQuery{Before: q.Before, Since: q.Since, Limit: q.Limit},
		IfNoneMatch:    c.Request().Header.Get("If-None-Match"),
	})
	if err != nil {
		return err
	}
	setVersion(c, page.Version)
	if page.NotModified {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, page)
}

// SendMessage appends a message; 201 on create, 200 when the client token replays.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req SendMessageRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.Send(c.Request().Context(), claims, chat.SendInput{
		ConversationID: req.ConversationID,
		To:             req.To,
		Kind:           req.Kind,
		Text:           req.Text,
		MediaRef:       req.MediaRef,
		ClientToken:    req.ClientToken,
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Upload accepts a multipart "file" addressed by conversation_id or to.
func (h *ChatHandler) Upload(c echo.Context) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	if h.maxBytes > 0 {
		limit := h.maxBytes + multipartOverhead
		if c.Request().ContentLength > limit {
			return chat.NewError(chat.CodePayloadTooLarge, "upload exceeds the size limit", nil)
		}
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, limit)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return chat.NewError(chat.CodePayloadTooLarge, "upload exceeds the size limit", err)
		}
		return chat.NewError(chat.CodeInvalidInput, "file is required", err)
	}
	file, err := fh.Open()
	if err != nil {
		return chat.NewError(chat.CodeInvalidInput, "unreadable upload", err)
	}
	defer func(f multipart.File) {
		if cerr := f.Close(); cerr != nil {
			h.logger.Debug("close upload", slog.Any("error", cerr))
		}
	}(file)

	signed, err := h.service.Upload(c.Request().Context(), claims, chat.UploadInput{
		ConversationID: strings.TrimSpace(c.FormValue("conversation_id")),
		To:             strings.TrimSpace(c.FormValue("to")),
		Filename:       fh.Filename,
		ContentType:    fh.Header.Get(echo.HeaderContentType),
		Size:           fh.Size,
		Reader:         file,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, signed)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req MarkReadRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if req.All {
		n, err := h.service.MarkAllRead(c.Request().Context(), claims)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, MarkReadResponse{Updated: n})
	}
	if err := h.service.MarkRead(c.Request().Context(), claims, req.ConversationID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatHandler) Heartbeat(c echo.Context) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req HeartbeatRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if _, err := h.service.Heartbeat(c.Request().Context(), claims, req.Aliases); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatHandler) Presence(c echo.Context) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var q PresenceQuery
	if err := h.bind(c, &q); err != nil {
		return err
	}
	refs := splitRefs(q.Refs)
	online, err := h.service.Presence(c.Request().Context(), claims, refs, q.Window == "active")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, PresenceResponse{Online: online})
}

func (h *ChatHandler) Unread(c echo.Context) error {
	claims, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	total, err := h.service.Unread(c.Request().Context(), claims)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UnreadResponse{Total: total})
}

func splitRefs(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		ref := strings.TrimSpace(part)
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func setVersion(c echo.Context, version string) {
	header := c.Response().Header()
	header.Set(echo.HeaderCacheControl, "private, no-cache")
	if version != "" {
		header.Set("ETag", presence.ETag(version))
	}
}
