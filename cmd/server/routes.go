package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/config"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api"
	adminapi "github.com/Nixie-Tech-LLC/kiosksync/internal/http/api/admin/endpoints"
	kioskapi "github.com/Nixie-Tech-LLC/kiosksync/internal/http/api/kiosk/endpoints"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/middleware"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, cfg *config.Config, svc *Services) {
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(svc.Metrics.Middleware())

	// CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"DELETE",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
			"X-Request-ID",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"X-Request-ID",
		},
		AllowCredentials: false,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))

	loc := cfg.Location()

	api.MountGroup(r, api.GroupConfig{
		Name:      "kiosk",
		Prefix:    "/api/kiosk",
		Auth:      true,
		SecretKey: cfg.JWTSecret,
	},
		kioskapi.KioskModule(svc.Sync, svc.Power, loc),
	)

	api.MountGroup(r, api.GroupConfig{
		Name:      "admin",
		Prefix:    "/api/admin",
		Auth:      true,
		SecretKey: cfg.JWTSecret,
	},
		adminapi.LoopModule(svc.Loops, svc.Sync, svc.Store),
		adminapi.PowerModule(svc.Power, svc.Store, loc),
		adminapi.CollectionModule(svc.Collections),
	)
}
