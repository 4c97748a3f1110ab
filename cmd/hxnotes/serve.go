package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hxnotes/internal/assets"
	"hxnotes/internal/database"
	"hxnotes/internal/database/migration"
	"hxnotes/internal/http/server"
	"hxnotes/internal/markdown"
	"hxnotes/internal/otel"
	"hxnotes/internal/repository/postgres"
	"hxnotes/internal/service"
	"hxnotes/internal/storage"
	"hxnotes/internal/view"
)

const shutdownTimeout = 10 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending schema steps before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generated, err := cfg.EnsureCSRFSecret()
	if err != nil {
		return err
	}
	if generated {
		log.Warn("csrf secret not configured, generated a random one; sessions end on restart")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if serveMigrate {
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			return err
		}
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	store, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	noteRepo := postgres.NewNotePostgres(db)
	attRepo := postgres.NewAttachmentPostgres(db)
	noteSvc := service.NewNoteService(noteRepo, attRepo, store)
	attSvc := service.NewAttachmentService(store, noteRepo, attRepo, cfg.MaxUploadBytes)

	views, err := view.New(view.Options{
		StaticURL: cfg.Static.URL,
		Location:  cfg.Location(),
		Markdown:  markdown.New(),
	})
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	static := assets.Open(cfg.Static.Root)
	if missing := assets.Check(static, assets.Required...); len(missing) > 0 {
		log.Warn("static assets missing, pages will render unstyled",
			zap.String("static_root", cfg.Static.Root),
			zap.Strings("missing", missing),
		)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := server.New(server.Options{
		Config:      cfg,
		Log:         log,
		DB:          db,
		Notes:       noteSvc,
		Attachments: attSvc,
		Views:       views,
		Static:      static,
		Registry:    reg,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
