package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/himplant/crmsync/internal/logger"
)

type echoHandler struct{}

func (echoHandler) Register(e *echo.Echo) {
	e.POST("/echo", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Response().Header().Get(echo.HeaderXRequestID))
	})
	e.GET("/panic", func(echo.Context) error {
		panic("boom")
	})
}

func TestNewServerRegistersHandlers(t *testing.T) {
	s := NewServer(logger.Discard(), "", echoHandler{}, nil)
	if s.Addr() != ":8080" {
		t.Fatalf("default addr = %q", s.Addr())
	}

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("{}")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a generated request id")
	}
}

func TestNewServerRecoversPanics(t *testing.T) {
	s := NewServer(logger.Discard(), ":0", echoHandler{})
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestNewServerBodyLimit(t *testing.T) {
	s := NewServer(logger.Discard(), ":0", echoHandler{})
	rec := httptest.NewRecorder()
	body := strings.NewReader(strings.Repeat("x", 2<<20))
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", body))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}
