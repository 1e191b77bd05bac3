package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestLogger_EmitsRequestLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	e.GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Logger(logger))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	line := buf.String()
	if !strings.Contains(line, `"path":"/ping"`) {
		t.Errorf("log line missing path: %s", line)
	}
	if !strings.Contains(line, `"status":200`) {
		t.Errorf("log line missing status: %s", line)
	}
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	e := echo.New()
	e.GET("/boom", func(c echo.Context) error {
		panic("kaboom")
	}, Recovery(zerolog.Nop()))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMetrics_HandlerServesScrape(t *testing.T) {
	e := echo.New()
	e.GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Metrics())
	e.GET("/metrics", MetricsHandler())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "caregrid_http_requests_total") {
		t.Error("scrape output missing request counter")
	}
}
