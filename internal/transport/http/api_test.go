package httptransport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/logging"
)

func TestWakeRejectedWhenWakeOnLANDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	cfg.Discovery.EnableWakeOnLAN = false

	router, err := Build(Options{Config: cfg, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	svc := NewService(cfg, logging.NewNop(), nil, nil, nil, nil, nil, nil, nil, nil)
	svc.RegisterRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/wake",
		strings.NewReader(`{"ip":"192.168.1.50"}`))
	req.Header.Set("Content-Type", "application/json")
	router.Engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with wake-on-lan disabled, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wake-on-lan is disabled") {
		t.Fatalf("response should name the disabled feature: %s", w.Body.String())
	}
}
