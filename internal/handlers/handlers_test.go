package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketline/marketchat/internal/auth"
	"github.com/marketline/marketchat/internal/chat"
	"github.com/marketline/marketchat/internal/conversation"
	"github.com/marketline/marketchat/internal/db/memstore"
	"github.com/marketline/marketchat/internal/identity"
	"github.com/marketline/marketchat/internal/media"
	"github.com/marketline/marketchat/internal/message"
	"github.com/marketline/marketchat/internal/metrics"
	"github.com/marketline/marketchat/internal/presence"
	"github.com/marketline/marketchat/internal/schema"
	"github.com/marketline/marketchat/internal/storage/providers/localfs"
)

const testMaxUpload = 2_000_000

type testAPI struct {
	e     *echo.Echo
	store *memstore.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memstore.New()
	provider, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	signer, err := media.NewSigner("handler-test-secret")
	require.NoError(t, err)
	allow, err := media.NewAllowlist([]string{"image/jpeg", "image/png", "application/pdf"})
	require.NoError(t, err)

	m := metrics.New()
	svc := chat.NewService(
		nil,
		schema.NewGate(nil, schema.NewInspector(store), nil, nil, schema.GateOptions{}),
		identity.NewService(nil, store),
		conversation.NewService(nil, store),
		message.NewService(nil, store, message.DefaultLimits()),
		presence.New(ctx, nil, presence.DefaultConfig()),
		media.NewService(nil, provider, signer, media.Options{MaxBytes: testMaxUpload, Allowlist: allow}),
		m,
	)
	_, err = svc.Bootstrap(ctx, identity.Claims{Username: "support"})
	require.NoError(t, err)

	log := newTestLogger()
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(log, 30*time.Second)
	e.Validator = NewRequestValidator()
	e.Use(auth.Middleware(auth.ModeHeader, "", func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == "/ping" || path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/media/")
	}))
	NewChatHandler(log, svc, testMaxUpload).Register(e)
	NewMediaHandler(log, svc).Register(e)
	NewHealthHandler(log).Register(e)
	NewMetricsHandler(m).Register(e)
	return &testAPI{e: e, store: store}
}

func (a *testAPI) do(t *testing.T, method, target, ref string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if ref != "" {
		req.Header.Set(auth.HeaderUserRef, ref)
		req.Header.Set(auth.HeaderUserName, ref)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(t *testing.T, ref, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("to", "admin"))
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat/uploads", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(auth.HeaderUserRef, ref)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func jpegPayload(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	return data
}

func TestMissingIdentityIsUnauthenticated(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/chat/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", decodeError(t, rec).Code)

	rec = api.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConversationsConditionalFetch(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/chat/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var list chat.ConversationList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, conversation.KindSupport, list.Items[0].Kind)

	rec = api.do(t, http.MethodGet, "/chat/conversations", "alice", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, etag, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Body.String())
}

func TestSendMessageCreatedThenReplayed(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	body := map[string]string{"to": "admin", "text": "hello", "client_token": "abc123"}
	rec := api.do(t, http.MethodPost, "/chat/messages", "alice", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first chat.SendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = api.do(t, http.MethodPost, "/chat/messages", "alice", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second chat.SendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Message.ID, second.Message.ID)

	rec = api.do(t, http.MethodGet, "/chat/unread", "support", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"total":1}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/chat/messages?with=alice&limit=10", "support", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page chat.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "hello", page.Items[0].Text)

	path := "/chat/conversations/" + first.Message.ConversationID + "/messages"
	rec = api.do(t, http.MethodGet, path, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(chat.CodeForbidden), decodeError(t, rec).Code)
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{"unknown kind", http.MethodPost, "/chat/messages", map[string]string{"to": "admin", "kind": "video", "text": "x"}},
		{"no target", http.MethodPost, "/chat/messages", map[string]string{"text": "x"}},
		{"read without target", http.MethodPost, "/chat/read", map[string]any{}},
		{"both cursors", http.MethodGet, "/chat/messages?with=admin&before=5&since=2", nil},
		{"no refs", http.MethodGet, "/chat/presence", nil},
		{"bad window", http.MethodGet, "/chat/presence?refs=a&window=forever", nil},
		{"empty text", http.MethodPost, "/chat/messages", map[string]string{"to": "admin", "text": "   "}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.target, "alice", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, string(chat.CodeInvalidInput), decodeError(t, rec).Code)
		})
	}
}

func TestUploadAndServeMedia(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.upload(t, "alice", "huge.jpg", jpegPayload(3_000_000))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, string(chat.CodePayloadTooLarge), decodeError(t, rec).Code)

	rec = api.upload(t, "alice", "notes.txt", []byte("plain text is not allowed"))
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code, rec.Body.String())
	assert.Equal(t, string(chat.CodeInvalidMedia), decodeError(t, rec).Code)

	photo := jpegPayload(4096)
	rec = api.upload(t, "alice", "photo.jpg", photo)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var signed media.Signed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signed))
	assert.Equal(t, media.KindImage, signed.Kind)

	rec = api.do(t, http.MethodGet, signed.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, photo, rec.Body.Bytes())

	rec = api.do(t, http.MethodGet, "/media/forged-token", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/chat/messages", "alice", map[string]string{"to": "admin", "media_ref": signed.Ref})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent chat.SendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, message.KindImage, sent.Message.Kind)
	assert.NotEmpty(t, sent.Message.MediaURL)
}

func TestSchemaNotReadyAdvertisesRetry(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.store.SetColumns(schema.TableMessages, nil)

	rec := api.do(t, http.MethodGet, "/chat/unread", "alice", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, string(chat.CodeSchemaMigrationRequired), body.Code)
	assert.NotContains(t, body.Message, "chat_messages")
}

func TestReadPresenceAndHeartbeat(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/chat/heartbeat", "alice", map[string]any{"aliases": []string{"alice-shop"}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/chat/presence?refs=alice-shop,nobody&window=active", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"online":{"alice-shop":true,"nobody":false}}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/chat/messages", "support", map[string]string{"to": "alice", "text": "welcome"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/chat/read", "alice", map[string]any{"all": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/chat/unread", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":0}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := map[chat.Code]int{
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
		chat.Code("SOMETHING_NEW"):       http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := StatusOf(code); got != want {
			t.Fatalf("StatusOf(%s) = %d, want %d", code, got, want)
		}
	}
}
