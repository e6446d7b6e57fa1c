package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/config"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db/dbtest"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

func newTestRouter(t *testing.T) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWTSecret: "routes-secret",
		Timezone:  "UTC",
		Sync: config.SyncConfig{
			GraceWindow:     15 * time.Minute,
			CatalogCacheTTL: time.Minute,
			EnrichTimeout:   time.Second,
		},
	}
	store := dbtest.NewMemoryStore()
	store.AddKiosk(1, "lobby-1", 1, nil)

	svc, cleanup, err := buildServices(cfg, store)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	r := gin.New()
	RegisterRoutes(r, cfg, svc)
	return r, cfg
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}

func TestDevicePollThroughRouter(t *testing.T) {
	r, cfg := newTestRouter(t)

	token, err := middleware.GenerateJWT(model.Identity{Subject: "lobby-1", TenantID: 1, Role: model.RoleDevice}, cfg.JWTSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/kiosk/loop?device_id=lobby-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.Contains(w.Body.String(), `"scope_kind":"none"`))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/kiosks/1/loop", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/groups/1/loop", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTokenCommand(t *testing.T) {
	cmd := newRootCommand()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--sub", "lobby-1", "--tenant", "3", "--secret", "s3cret"})
	require.NoError(t, cmd.Execute())

	id, err := middleware.ParseToken(strings.TrimSpace(out.String()), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, model.Identity{Subject: "lobby-1", TenantID: 3, Role: model.RoleDevice}, *id)
}
