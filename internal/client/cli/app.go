package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dmitrijs2005/contactsync/internal/client/api"
	"github.com/dmitrijs2005/contactsync/internal/client/config"
	"github.com/dmitrijs2005/contactsync/internal/client/events"
	"github.com/dmitrijs2005/contactsync/internal/client/store"
	"github.com/dmitrijs2005/contactsync/internal/client/syncengine"
	"github.com/dmitrijs2005/contactsync/internal/filex"
	"github.com/dmitrijs2005/contactsync/internal/logging"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
)

// contactEngine is the part of syncengine.Engine the commands use.
type contactEngine interface {
	Start(ctx context.Context) error
	Stop()
	State() syncengine.State
	Create(ctx context.Context, firstName, lastName, phoneNumber string) (*models.Contact, error)
	Edit(ctx context.Context, id string, patch models.Patch) (*models.Contact, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Contact, error)
	List(ctx context.Context) ([]*models.Contact, error)
	Pending(ctx context.Context) ([]*models.Contact, error)
	Sync(ctx context.Context) (syncengine.Report, error)
}

type healthChecker interface {
	Health(ctx context.Context) (*protocol.HealthResponse, error)
}

type subscriber interface {
	Subscribe(ctx context.Context) <-chan []*models.Contact
}

type App struct {
	config *config.Config
	engine contactEngine
	health healthChecker
	views  subscriber
	logger logging.Logger

	reader  *bufio.Reader
	out     io.Writer
	visible atomic.Int64
	closers []io.Closer
}

// NewApp opens the local database and log file and builds the sync engine.
// Close releases them.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	eventsURL, err := c.EventsEndpoint()
	if err != nil {
		return nil, err
	}

	for _, p := range []string{c.LogFile, c.DatabasePath} {
		if _, err := filex.EnsureParentDir(p); err != nil {
			return nil, err
		}
	}

	logger, logFile := logging.NewFileLogger(logging.FileOptions{
		Path:       c.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Level:      level,
	})

	db, err := store.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	st := store.New(db)
	client := api.NewClient(c.ServerURL, c.RequestTimeout)
	engine := syncengine.New(st, client, events.NewDialer(eventsURL, c.ConnectTimeout), syncengine.Options{
		ReconnectDelay:    c.ReconnectDelay,
		ReconnectMaxDelay: c.ReconnectMaxDelay,
		PingInterval:      c.PingInterval,
	}, logger)

	logger.Info(ctx, "client started", "server", c.ServerURL, "events", eventsURL, "db", c.DatabasePath)

	return &App{
		config:  c,
		engine:  engine,
		health:  client,
		views:   st,
		logger:  logger.With("module", "cli"),
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		closers: []io.Closer{db, logFile},
	}, nil
}

// Run starts syncing and serves the REPL until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	defer a.engine.Stop()

	go a.watchVisible(ctx)

	printlnFn("Contacts client (type 'help' for commands)")
	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.status, a.reader, isTerminal(int(os.Stdin.Fd())))
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

// watchVisible keeps the contact count shown in the prompt current.
func (a *App) watchVisible(ctx context.Context) {
	for list := range a.views.Subscribe(ctx) {
		a.visible.Store(int64(len(list)))
	}
}

func (a *App) status() string {
	return fmt.Sprintf("%s, %d contacts", a.engine.State(), a.visible.Load())
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
