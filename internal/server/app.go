// Package server wires the capsule service together: configuration,
// database and migrations, file storage, notification delivery and the
// HTTP API, and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/config"
	"github.com/dmitrijs2005/timecapsule/internal/server/filestore"
	"github.com/dmitrijs2005/timecapsule/internal/server/httpapi"
	"github.com/dmitrijs2005/timecapsule/internal/server/notify"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	dispatcher     *notify.Dispatcher
	userService    *services.UserService
	capsuleService *services.CapsuleService
	messageService *services.MessageService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	files, err := NewFileStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("file storage init error: %w", err)
	}

	dispatcher := notify.NewDispatcher(NewSMSSender(c, logger), notify.NewLogSender(logger), logger, notify.DefaultQueueSize, c.SMSPerSecond)

	return &App{
		config:         c,
		logger:         logger,
		db:             db,
		dispatcher:     dispatcher,
		userService:    services.NewUserService(db, rm, files, c, logger),
		capsuleService: services.NewCapsuleService(db, rm, files, dispatcher, logger),
		messageService: services.NewMessageService(db, rm, files, logger),
	}, nil
}

// NewFileStore builds the configured file storage backend.
func NewFileStore(ctx context.Context, c *config.Config) (filestore.Store, error) {
	switch c.StorageBackend {
	case config.StorageLocal:
		return filestore.NewLocalStore(c.UploadDir)
	case config.StorageS3:
		s, err := filestore.NewS3Store(ctx, c)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

// NewSMSSender returns the Twilio client, or a log-only sender in dev mode.
func NewSMSSender(c *config.Config, logger logging.Logger) notify.SMSSender {
	if c.DevMode {
		return notify.NewLogSender(logger)
	}
	return notify.NewTwilioSender(c.TwilioBaseURL, c.TwilioAccountSID, c.TwilioAuthToken, c.TwilioFromNumber)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.HTTPAddr, app.logger, app.userService, app.capsuleService, app.messageService, app.config.ShutdownTimeout)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
