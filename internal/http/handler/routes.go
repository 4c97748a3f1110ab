package handler

import (
	"database/sql"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/prometheus/client_golang/prometheus"

	"hxnotes/internal/service"
	"hxnotes/internal/view"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	DB          *sql.DB
	Notes       service.NoteService
	Attachments service.AttachmentService
	Views       *view.Renderer
	// Metrics is served on /metrics when set.
	Metrics   prometheus.Gatherer
	Static    fs.FS
	StaticURL string
	PageSize  int
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())
	if d.Metrics != nil {
		app.Get("/metrics", Metrics(d.Metrics))
	}

	if d.Static != nil {
		prefix := strings.TrimSuffix(d.StaticURL, "/")
		if prefix == "" {
			prefix = "/static"
		}
		app.Use(prefix, filesystem.New(filesystem.Config{
			Root:   http.FS(d.Static),
			MaxAge: 3600,
		}))
	}

	api := app.Group("/api/v1")
	api.Get("/notes", ListNotes(d.Notes))
	api.Post("/notes", CreateNote(d.Notes))
	api.Get("/notes/:id", GetNote(d.Notes))
	api.Delete("/notes/:id", DeleteNote(d.Notes))

	if d.Views == nil {
		return
	}
	p := &Pages{Notes: d.Notes, Attachments: d.Attachments, Views: d.Views, PageSize: d.PageSize}

	app.Get("/", p.Home)
	app.Get("/notes", p.Index)
	app.Post("/notes", p.Create)
	app.Get("/notes/:id", p.Show)
	app.Get("/notes/:id/edit", p.Edit)
	app.Put("/notes/:id", p.Update)
	// plain forms cannot send PUT
	app.Post("/notes/:id", p.Update)
	app.Post("/notes/:id/pin", p.TogglePin)
	app.Delete("/notes/:id", p.Delete)
	app.Post("/notes/:id/attachments", p.UploadAttachment)
	app.Get("/attachments/:id", p.DownloadAttachment)
	app.Delete("/attachments/:id", p.DeleteAttachment)
}
