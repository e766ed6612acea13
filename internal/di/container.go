package di

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/flock"
	bundleDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	bundleRepo "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/repository"
	bundleService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/service"
	feedService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/feed/service"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/source"
	messageService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/message/service"
	refreshDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/refresh/domain"
	refreshService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/refresh/service"
	renderService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/render/service"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/config"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	httpServer "github.com/reshetovitsme/tracker-bundle-bot/internal/transport/http"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

const lockFileName = "bot.lock"

// Lifecycle collects cleanups of the services that were actually built
type Lifecycle struct {
	mu      sync.Mutex
	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func (l *Lifecycle) onShutdown(name string, fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, closer{name: name, fn: fn})
}

// StorageLock guards the storage directory against a second bot process
type StorageLock struct {
	*flock.Flock
}

// Setup initializes the dependency injection container
func Setup() (do.Injector, error) {
	return SetupWith(config.Load)
}

// SetupWith initializes the container with a custom config loader
func SetupWith(load func() (*config.Config, error)) (do.Injector, error) {
	injector := do.New()
	lifecycle := &Lifecycle{}
	do.ProvideValue(injector, lifecycle)

	// Register Config
	do.Provide(injector, func(i do.Injector) (*config.Config, error) {
		cfg, err := load()
		if err != nil {
			return nil, oops.With("context", "failed to load config").Wrap(err)
		}
		return cfg, nil
	})

	// Register Storage Lock
	do.Provide(injector, func(i do.Injector) (*StorageLock, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
			return nil, oops.With("storage_path", cfg.StoragePath, "context", "failed to create storage directory").Wrap(err)
		}
		path := filepath.Join(cfg.StoragePath, lockFileName)
		lock := flock.New(path)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, oops.With("lock_file", path, "context", "failed to lock storage").Wrap(err)
		}
		if !locked {
			return nil, oops.With("lock_file", path).Wrap(errors.ErrStorageLocked)
		}
		lifecycle.onShutdown("storage-lock", func(context.Context) error { return lock.Unlock() })
		return &StorageLock{Flock: lock}, nil
	})

	// Register Bundle Repository
	do.Provide(injector, func(i do.Injector) (bundleRepo.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)

		var (
			repo bundleRepo.Repository
			err  error
		)
		switch cfg.StorageDriver {
		case bundleDomain.StorageDriverFile:
			repo, err = bundleRepo.NewFileStorage(cfg.StoragePath)
		default:
			repo, err = bundleRepo.NewSQLiteStorage(cfg.StoragePath)
		}
		if err != nil {
			return nil, oops.With("storage_driver", cfg.StorageDriver, "storage_path", cfg.StoragePath, "context", "failed to initialize bundle repository").Wrap(err)
		}
		lifecycle.onShutdown("bundle-repository", func(context.Context) error { return repo.Close() })
		return repo, nil
	})

	// Register Issue Source
	do.Provide(injector, func(i do.Injector) (*source.GitHub, error) {
		cfg := do.MustInvoke[*config.Config](i)
		src, err := source.NewGitHub(cfg.GitHubToken, cfg.GitHubAPIURL, source.Repository{Owner: cfg.GitHubOwner, Name: cfg.GitHubRepo})
		if err != nil {
			return nil, oops.With("context", "failed to create github client").Wrap(err)
		}
		return src, nil
	})

	// Register Renderer
	do.Provide(injector, func(i do.Injector) (*renderService.Renderer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		src := do.MustInvoke[*source.GitHub](i)
		repo := do.MustInvoke[bundleRepo.Repository](i)
		return renderService.New(src, repo, renderService.Options{
			Repository:   src.Repository(),
			WebURL:       cfg.GitHubWebURL,
			MessageLimit: cfg.MessageLimit,
			Location:     cfg.Location,
			Measure:      telegram.MessageLength,
		}), nil
	})

	// Register Refresh State
	do.Provide(injector, func(i do.Injector) (*refreshDomain.State, error) {
		return refreshDomain.NewState(), nil
	})

	// Register Bot
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)

		opts := []bot.Option{
			bot.WithServerURL(cfg.TelegramAPIURL),
			bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
				slog.Debug("Ignoring update", "update_id", update.ID)
			}),
		}

		b, err := bot.New(cfg.TelegramBotToken, opts...)
		if err != nil {
			return nil, oops.With("context", "failed to create telegram bot").Wrap(err)
		}
		return b, nil
	})

	// Register Message Service
	do.Provide(injector, func(i do.Injector) (*messageService.Service, error) {
		b := do.MustInvoke[*bot.Bot](i)
		return messageService.New(telegram.NewSink(b)), nil
	})

	// Register Refresh Scheduler
	do.Provide(injector, func(i do.Injector) (*refreshService.Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[bundleRepo.Repository](i)
		renderer := do.MustInvoke[*renderService.Renderer](i)
		messages := do.MustInvoke[*messageService.Service](i)
		state := do.MustInvoke[*refreshDomain.State](i)
		scheduler := refreshService.New(repo, renderer, messages, state, cfg.Tick())
		lifecycle.onShutdown("refresh-scheduler", func(context.Context) error {
			scheduler.Stop()
			return nil
		})
		return scheduler, nil
	})

	// Register Bundle Service
	do.Provide(injector, func(i do.Injector) (*bundleService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[bundleRepo.Repository](i)
		renderer := do.MustInvoke[*renderService.Renderer](i)
		messages := do.MustInvoke[*messageService.Service](i)
		state := do.MustInvoke[*refreshDomain.State](i)
		src := do.MustInvoke[*source.GitHub](i)
		return bundleService.New(repo, renderer, messages, state, src, cfg.DefaultInterval), nil
	})

	// Register Feed Service
	do.Provide(injector, func(i do.Injector) (*feedService.Service, error) {
		repo := do.MustInvoke[bundleRepo.Repository](i)
		renderer := do.MustInvoke[*renderService.Renderer](i)
		return feedService.New(repo, renderer), nil
	})

	// Register Telegram Handler
	do.Provide(injector, func(i do.Injector) (*telegram.Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		bundles := do.MustInvoke[*bundleService.Service](i)
		scheduler := do.MustInvoke[*refreshService.Scheduler](i)
		renderer := do.MustInvoke[*renderService.Renderer](i)
		return telegram.New(cfg, bundles, scheduler, renderer), nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		bundles := do.MustInvoke[*bundleService.Service](i)
		renderer := do.MustInvoke[*renderService.Renderer](i)
		feeds := do.MustInvoke[*feedService.Service](i)
		server := httpServer.New(cfg, bundles, renderer, feeds)
		server.SetLogger(slog.Default())
		lifecycle.onShutdown("http-server", server.Shutdown)
		return server, nil
	})

	return injector, nil
}

// Shutdown releases the built services in reverse construction order
func Shutdown(injector do.Injector) error {
	lifecycle, err := do.Invoke[*Lifecycle](injector)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lifecycle.mu.Lock()
	closers := slices.Clone(lifecycle.closers)
	lifecycle.mu.Unlock()
	slices.Reverse(closers)

	var firstErr error
	for _, c := range closers {
		if err := c.fn(ctx); err != nil {
			slog.Error("Error during shutdown", "service", c.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
