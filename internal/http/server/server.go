// Package server assembles the Fiber application: global middleware in a
// fixed order, API docs and the routes of package handler.
package server

import (
	"database/sql"
	"errors"
	"io/fs"
	"strings"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"hxnotes/docs"
	"hxnotes/internal/config"
	handlers "hxnotes/internal/http/handler"
	"hxnotes/internal/http/middleware"
	"hxnotes/internal/service"
	"hxnotes/internal/view"
)

// bodySlack is allowed on top of the upload limit for multipart framing and form fields.
const bodySlack = 1 << 20

// Options are the collaborators of the HTTP server.
type Options struct {
	Config      *config.AppConfig
	Log         *zap.Logger
	DB          *sql.DB
	Notes       service.NoteService
	Attachments service.AttachmentService
	Views       *view.Renderer
	// Static is served under Config.Static.URL.
	Static fs.FS
	// Registry receives the HTTP collectors and backs /metrics. A fresh one is used when nil.
	Registry *prometheus.Registry
}

// New builds the Fiber app. Middleware order: tracing, request id, metrics,
// access log, throttling, CSRF, then routes. The access log runs the error
// handler itself so the status it records is the one sent.
func New(opts Options) (*fiber.App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Security.CSRFSecret == "" {
		return nil, errors.New("server: csrf secret is required")
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	prom, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               "hxnotes",
		ErrorHandler:          handlers.ErrorHandler(opts.Views, log),
		BodyLimit:             int(cfg.MaxUploadBytes) + bodySlack,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware(otelfiber.WithNext(operational)))
	app.Use(middleware.RequestID())
	app.Use(prom.Handler())
	app.Use(middleware.Logger(log))
	app.Use(middleware.NewThrottle(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst).Handler())

	staticPrefix := strings.TrimSuffix(cfg.Static.URL, "/")
	app.Use(middleware.CSRF(middleware.CSRFConfig{
		Secret:       cfg.Security.CSRFSecret,
		CookieName:   cfg.Security.SessionCookie,
		CookieSecure: cfg.Security.CookieSecure,
		Exempt: func(c *fiber.Ctx) bool {
			return operational(c) || (staticPrefix != "" && strings.HasPrefix(c.Path(), staticPrefix+"/"))
		},
		OnReject: prom.CSRFRejected,
	}))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:          opts.DB,
		Notes:       opts.Notes,
		Attachments: opts.Attachments,
		Views:       opts.Views,
		Metrics:     reg,
		Static:      opts.Static,
		StaticURL:   cfg.Static.URL,
		PageSize:    cfg.PageSize,
	})

	return app, nil
}

// operational matches probe, metrics and docs endpoints.
func operational(c *fiber.Ctx) bool {
	p := c.Path()
	return p == "/metrics" || p == "/health" || p == "/healthz" || strings.HasPrefix(p, "/swagger/")
}
