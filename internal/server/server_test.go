package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/marketline/marketchat/internal/auth"
)

func TestShouldSkipAuth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/metrics", want: true},
		{path: "/media/abc.def", want: true},
		{path: "/media", want: false},
		{path: "/chat/conversations", want: false},
		{path: "/chat/media/abc", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipAuth(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}

type echoHandler struct{}

func (echoHandler) Register(e *echo.Echo) {
	e.GET("/chat/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
}

func TestRateLimitPerCaller(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(log, Options{AuthMode: auth.ModeHeader, RateLimitRPS: 1, RateLimitBurst: 2}, echoHandler{})

	call := func(path, ref string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if ref != "" {
			req.Header.Set(auth.HeaderUserRef, ref)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("/chat/ping", "alice"); code != http.StatusNoContent {
			t.Fatalf("call %d: expected 204, got %d", i, code)
		}
	}
	if code := call("/chat/ping", "alice"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := call("/chat/ping", "bob"); code != http.StatusNoContent {
		t.Fatalf("other callers keep their own budget, got %d", code)
	}
	for i := 0; i < 5; i++ {
		if code := call("/ping", ""); code != http.StatusOK {
			t.Fatalf("ping must not be limited, got %d", code)
		}
	}
	if code := call("/chat/ping", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", code)
	}
}
