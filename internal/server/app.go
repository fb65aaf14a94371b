// Package server wires the reconciliation server together: the record store
// (PostgreSQL or in-memory), the event hub, the reconciliation service, the
// optional snapshot exporter and the HTTP listener that serves REST and the
// event channel.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/contactsync/internal/logging"
	"github.com/dmitrijs2005/contactsync/internal/server/config"
	"github.com/dmitrijs2005/contactsync/internal/server/export"
	"github.com/dmitrijs2005/contactsync/internal/server/httpapi"
	"github.com/dmitrijs2005/contactsync/internal/server/hub"
	"github.com/dmitrijs2005/contactsync/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/contactsync/internal/server/services"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config *config.Config
	logger logging.Logger
}

func NewApp(c *config.Config) (*App, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return &App{config: c, logger: logging.NewJSONLogger(os.Stdout, level)}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// openRepository returns the record store selected by DatabaseDSN and a
// function releasing it.
func (app *App) openRepository(ctx context.Context) (contacts.Repository, func() error, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Info(ctx, "Using in-memory record store")
		return contacts.NewMemoryRepository(), func() error { return nil }, nil
	}

	db, err := repomanager.Open(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations error: %w", err)
	}
	app.logger.Info(ctx, "Using PostgreSQL record store")
	return m.Contacts(db), db.Close, nil
}

func (app *App) exporter(svc *services.ContactService) httpapi.Exporter {
	opts := export.Options{
		Bucket:       app.config.S3Bucket,
		Region:       app.config.S3Region,
		BaseEndpoint: app.config.S3BaseEndpoint,
		AccessKey:    app.config.S3AccessKey,
		SecretKey:    app.config.S3SecretKey,
		Prefix:       app.config.S3ExportPrefix,
		PresignTTL:   app.config.S3PresignTTL,
	}
	if !opts.Enabled() {
		return nil
	}
	return export.NewExporter(opts, svc, app.logger)
}

// Run serves until ctx is cancelled, a termination signal arrives or a
// component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	repo, closeRepo, err := app.openRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			app.logger.Warn(context.Background(), "failed to close record store", "error", err)
		}
	}()

	h := hub.New(app.config.BroadcastBuffer, app.config.WriteTimeout, app.logger)
	svc := services.NewContactService(repo, h, app.logger)
	srv := httpapi.NewServer(app.config.Addr, svc, h, app.exporter(svc), app.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}
