package api

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/middleware"
)

// Module attaches a feature's endpoints to a Controller.
type Module interface {
	Mount(c *Controller)
}

type ModuleFunc func(c *Controller)

func (f ModuleFunc) Mount(c *Controller) { f(c) }

// GroupConfig describes one mounted API surface. Name tags every log line written for
// requests in the group and defaults to the prefix.
type GroupConfig struct {
	Name       string
	Prefix     string
	Auth       bool
	SecretKey  string
	Middleware []gin.HandlerFunc
}

// MountGroup creates the group under parent, installs its logging context, auth and
// extra middleware in that order, and mounts modules on it.
func MountGroup(parent gin.IRouter, cfg GroupConfig, modules ...Module) *Controller {
	name := cfg.Name
	if name == "" {
		name = strings.Trim(cfg.Prefix, "/")
	}
	if cfg.Auth && cfg.SecretKey == "" {
		log.Fatal().Str("group", name).Msg("api group requires auth but has no signing secret")
	}

	handlers := []gin.HandlerFunc{requestContext(name)}
	if cfg.Auth {
		handlers = append(handlers, middleware.JWTMiddleware(cfg.SecretKey))
	}
	handlers = append(handlers, cfg.Middleware...)

	c := &Controller{Group: parent.Group(cfg.Prefix, handlers...), name: name}
	for _, m := range modules {
		m.Mount(c)
	}
	log.Debug().Str("group", name).Strs("routes", c.routes).Msg("api group mounted")
	return c
}

// requestContext puts a logger tagged with the group and request id on the request
// context, where writeError and zerolog.Ctx find it.
func requestContext(group string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		l := log.With().
			Str("group", group).
			Str("request_id", middleware.RequestID(ctx)).
			Logger()
		ctx.Request = ctx.Request.WithContext(l.WithContext(ctx.Request.Context()))
		ctx.Next()
	}
}

// requestLogger returns the request's context logger, or the global one tagged with the
// request id for handlers mounted outside a group.
func requestLogger(ctx *gin.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx.Request.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	l := log.With().Str("request_id", middleware.RequestID(ctx)).Logger()
	return &l
}

// Controller attaches authenticated handlers to a mounted group and keeps the list of
// routes it registered.
type Controller struct {
	Group  *gin.RouterGroup
	name   string
	routes []string
}

func (c *Controller) Name() string { return c.name }

// Routes lists "METHOD /full/path" for every route mounted so far, in order.
func (c *Controller) Routes() []string {
	return append([]string(nil), c.routes...)
}

func (c *Controller) GET(relativePath string, h HandlerFuncWithAuth) {
	c.handle(http.MethodGet, relativePath, h)
}

func (c *Controller) POST(relativePath string, h HandlerFuncWithAuth) {
	c.handle(http.MethodPost, relativePath, h)
}

func (c *Controller) PUT(relativePath string, h HandlerFuncWithAuth) {
	c.handle(http.MethodPut, relativePath, h)
}

func (c *Controller) DELETE(relativePath string, h HandlerFuncWithAuth) {
	c.handle(http.MethodDelete, relativePath, h)
}

func (c *Controller) handle(method, relativePath string, h HandlerFuncWithAuth) {
	c.Group.Handle(method, relativePath, ResolveEndpointWithAuth(h))
	c.routes = append(c.routes, method+" "+path.Join(c.Group.BasePath(), relativePath))
}
