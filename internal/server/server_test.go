package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/handlers"
)

func TestServerRoutes(t *testing.T) {
	cfg := &config.AppConfig{Environment: "test", HTTP: config.HTTPConfig{Host: "127.0.0.1", Port: 0}}
	srv := NewHTTPServer(cfg, zerolog.Nop(), handlers.NewHandlerSet(zerolog.Nop(), cfg, handlers.Services{}, nil, nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":false`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gig/applications/app-1/status", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
