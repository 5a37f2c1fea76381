// Package app wires configuration, storage, the session registry and the
// bot together and runs transports until the process is told to stop.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/cloudkeeper/internal/auth"
	"github.com/dmitrijs2005/cloudkeeper/internal/bot"
	"github.com/dmitrijs2005/cloudkeeper/internal/config"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/services"
	"github.com/dmitrijs2005/cloudkeeper/internal/session"
	"github.com/dmitrijs2005/cloudkeeper/internal/storage"
)

// Runner is a transport or any other long-running component. Run returns
// when ctx is cancelled or on a fatal error.
type Runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	location string
	bot      *bot.Bot
}

// newS3Storage is a seam for tests.
var newS3Storage = func(ctx context.Context, cfg storage.S3Config) (storage.Storage, string, error) {
	s, err := storage.NewS3Storage(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	return s, s.Location(), nil
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	store, location, err := openStorage(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	verifier, err := auth.New(c.Password, c.PasswordHash)
	if err != nil {
		return nil, err
	}

	sessions := session.NewRegistry(session.WithActivityLimit(c.ActivityLogLimit))
	files := services.NewFileService(store, logger)
	b := bot.New(sessions, files, verifier, logger, bot.WithEditRate(c.ProgressEditsPerSecond))

	return &App{config: c, logger: logger, location: location, bot: b}, nil
}

func openStorage(ctx context.Context, c *config.Config) (storage.Storage, string, error) {
	switch c.StorageBackend {
	case config.BackendS3:
		return newS3Storage(ctx, storage.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			Prefix:       c.S3Prefix,
		})
	default:
		s, err := storage.NewLocalStorage(c.StorageDir)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
}

// Bot returns the message handler transports feed.
func (app *App) Bot() *bot.Bot {
	return app.bot
}

// Run starts every runner and blocks until all have returned. SIGINT,
// SIGTERM and SIGQUIT cancel the shared context, as does the first runner
// to fail.
func (app *App) Run(ctx context.Context, runners ...Runner) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...",
		"storage_backend", app.config.StorageBackend,
		"storage", app.location,
		"admin", app.config.AdminUsername)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "app stopped with error", "error", err)
		return err
	}

	app.logger.Info(ctx, "app stopped")
	return nil
}
