package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

const secret = "test-secret"

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestMountGroupRecordsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	noop := func(*gin.Context, *model.Identity) (any, *Error) { return nil, nil }

	c := MountGroup(r, GroupConfig{Prefix: "/api/admin/", Auth: true, SecretKey: secret},
		ModuleFunc(func(c *Controller) {
			c.GET("/ping", noop)
			c.PUT("/things/:id", noop)
		}),
		ModuleFunc(func(c *Controller) { c.DELETE("/things/:id", noop) }),
	)

	assert.Equal(t, "api/admin", c.Name())
	assert.Equal(t, []string{
		"GET /api/admin/ping",
		"PUT /api/admin/things/:id",
		"DELETE /api/admin/things/:id",
	}, c.Routes())
}

func TestMountGroupLogsWithRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := captureLogs(t)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	MountGroup(r, GroupConfig{Name: "kiosk", Prefix: "/api/kiosk", Auth: true, SecretKey: secret},
		ModuleFunc(func(c *Controller) {
			c.GET("/broken", func(*gin.Context, *model.Identity) (any, *Error) {
				return nil, apperror.ErrStorage
			})
			c.GET("/whoami", func(_ *gin.Context, id *model.Identity) (any, *Error) {
				return id, nil
			})
		}),
	)

	token, err := middleware.GenerateJWT(model.Identity{Subject: "lobby-1", TenantID: 1, Role: model.RoleDevice}, secret, time.Hour)
	require.NoError(t, err)
	call := func(path, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Request-ID", "req-7")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call("/api/kiosk/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call("/api/kiosk/whoami", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sub":"lobby-1"`)

	w = call("/api/kiosk/broken", token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, logs.String(), `"group":"kiosk"`)
	assert.Contains(t, logs.String(), `"request_id":"req-7"`)
	assert.Contains(t, logs.String(), `"path":"/api/kiosk/broken"`)
}

func TestMountGroupRunsExtraMiddlewareAfterAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var sawIdentity bool
	extra := func(c *gin.Context) {
		_, sawIdentity = middleware.GetCurrentIdentity(c)
		c.Next()
	}
	MountGroup(r, GroupConfig{Prefix: "/api", Auth: true, SecretKey: secret, Middleware: []gin.HandlerFunc{extra}},
		ModuleFunc(func(c *Controller) {
			c.GET("/ok", func(*gin.Context, *model.Identity) (any, *Error) { return "ok", nil })
		}),
	)

	token, err := middleware.GenerateJWT(model.Identity{Subject: "alice", TenantID: 1, Role: model.RoleAdmin}, secret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/ok", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sawIdentity)
}
