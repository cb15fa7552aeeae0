package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"edge-gateway-go/internal/client"
	"edge-gateway-go/internal/config"
	"edge-gateway-go/internal/metrics"
	"edge-gateway-go/internal/service"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer origin.Close()

	cfg := testHandlerConfig(origin.URL)
	cfg.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	oc := client.NewOriginClient(cfg, logger, m)
	svc, err := service.NewGatewayService(oc, cfg, logger, m)
	if err != nil {
		t.Fatalf("NewGatewayService: %v", err)
	}

	proxy := NewProxyHandler(svc, logger)
	health := NewHealthHandler(cfg, "test")

	e := echo.New()
	RegisterRoutes(e, cfg, m, proxy, health)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /gateway/status", http.MethodGet, "/gateway/status", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET /api/products", http.MethodGet, "/api/products?page=1", http.StatusOK},
		{"POST /api/sales", http.MethodPost, "/api/sales", http.StatusOK},
		{"DELETE /api/products/1", http.MethodDelete, "/api/products/1", http.StatusOK},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	cfg := testHandlerConfig(origin.URL)
	cfg.Metrics = config.MetricsConfig{Enabled: false, Path: "/metrics"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	oc := client.NewOriginClient(cfg, logger, nil)
	svc, err := service.NewGatewayService(oc, cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewGatewayService: %v", err)
	}

	e := echo.New()
	RegisterRoutes(e, cfg, metrics.New(), NewProxyHandler(svc, logger), NewHealthHandler(cfg, "test"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d when metrics are disabled", rec.Code, http.StatusNotFound)
	}
}
