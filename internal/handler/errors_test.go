package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/middleware"
)

func TestErrorHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.Use(echomw.Recover())

	e.GET("/panic", func(c echo.Context) error {
		panic("boom")
	})
	e.GET("/busy", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Proxy busy")
	})
	e.GET("/limited", func(c echo.Context) error {
		return echo.ErrTooManyRequests
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound, "Not Found"},
		{"recovered panic", http.MethodGet, "/panic", http.StatusInternalServerError, "Proxy error: internal error"},
		{"busy", http.MethodGet, "/busy", http.StatusServiceUnavailable, "Proxy busy"},
		{"rate limited", http.MethodGet, "/limited", http.StatusTooManyRequests, "Too Many Requests"},
		{"head has no body", http.MethodHead, "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestErrorHandler_ConcurrencyLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)

	block := make(chan struct{})
	entered := make(chan struct{})
	e.GET("/api/proxy", func(c echo.Context) error {
		close(entered)
		<-block
		return c.NoContent(http.StatusOK)
	}, middleware.ContentTypeOnly(), middleware.ConcurrencyLimit(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/proxy", http.NoBody))
	}()
	<-entered

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy", http.NoBody))
	close(block)
	<-done

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Proxy busy", rec.Body.String())
	assert.Equal(t, http.Header{echo.HeaderContentType: {echo.MIMETextPlainCharsetUTF8}}, rec.Header())
}
