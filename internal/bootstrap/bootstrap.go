package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/discovery"
	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/domain/input"
	"vitarp-go/internal/domain/profile"
	regengine "vitarp-go/internal/domain/registration/engine"
	"vitarp-go/internal/domain/registration/store"
	"vitarp-go/internal/domain/session"
	"vitarp-go/internal/domain/wake"
	"vitarp-go/internal/domain/watcher"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/observability"
	"vitarp-go/internal/platform/persist"
	"vitarp-go/internal/platform/storage"
	httptransport "vitarp-go/internal/transport/http"
	"vitarp-go/internal/transport/ws"
)

// Run boots the client core and serves until the context is cancelled or
// the process receives an interrupt or termination signal.
func Run(ctx context.Context) error {
	app, err := New()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}

// App is the assembled client core: every engine wired and ready to serve
// the UI shell.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Bus       *eventbus.Bus
	Cache     *console.Cache
	Creds     *store.Store
	Profiles  *profile.Store
	Discovery *discovery.Service
	Watcher   *watcher.Watcher
	Waker     *wake.Engine
	Pairing   *regengine.Engine
	Sessions  *session.Engine
	Feed      *ws.Feed

	httpSrv     *http.Server
	obsShutdown observability.ShutdownFunc
}

// New loads configuration and wires the full dependency graph bottom-up:
// platform first, then stores, then the engines that use them.
func New() (*App, error) {
	result, err := config.NewLoader().Load()
	if err != nil {
		return nil, errors.Wrap(errors.KindNotInitialized, "bootstrap.config", "load configuration", err)
	}
	cfg := result.Config

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindIO, "bootstrap.storage", "create data directory", err)
	}

	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindNotInitialized, "bootstrap.logging", "open logger", err)
	}
	if result.Path != "" {
		logger.Info("configuration loaded", "path", result.Path)
	} else {
		logger.Info("no configuration file, using defaults")
	}

	obsShutdown, err := observability.Setup(context.Background(), observability.Config{
		Enabled: strings.EqualFold(cfg.Log.Level, "debug"),
	}, logger.Slog())
	if err != nil {
		logger.Close()
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Close()
		return nil, err
	}

	bus := eventbus.New()

	backend, err := store.NewBackend(store.Config{
		Driver: cfg.Storage.Registration.Driver,
		Redis:  redisConfig(cfg),
	}, db)
	if err != nil {
		logger.Close()
		return nil, err
	}
	creds := store.New(backend, logger, nil)

	cache, err := console.NewCache(db, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	profiles := profile.NewStore(persist.NewRuntime(), logger, cfg.Storage.ProfilePath)
	if _, err := profiles.Load(); err != nil {
		logger.Warn("profile unreadable, continuing with defaults", "error", err)
	}
	if id := profiles.Identity(); id.IsSet() {
		discovery.SetAccountIdentity(id.Base64())
	}

	disc := discovery.New(cfg.Discovery, logger, bus, cache)
	watch := watcher.New(cfg.Watcher, logger, bus, cache)
	waker := wake.New(cfg.Wake, logger, bus, creds, cache, watcher.UnicastProbe)
	pairing := regengine.New(cfg.Session, logger, bus, creds, cache)
	// Sessions only auto-wake a standby console when wake-on-LAN is
	// enabled; otherwise they fail fast with a standby error.
	var sessionWaker session.Waker
	if cfg.Discovery.EnableWakeOnLAN {
		sessionWaker = syncWaker{waker}
	}
	sessions := session.New(cfg.Session, logger, bus,
		creds, profiles, cache,
		watch, sessionWaker, pairing,
		session.NewConnector(cfg.Session), input.NewMapper(), nil, session.NewNullSink())

	feed, err := ws.NewFeed(logger, bus)
	if err != nil {
		logger.Close()
		return nil, errors.Wrap(errors.KindNotInitialized, "bootstrap.feed", "wire event feed", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Bus:       bus,
		Cache:     cache,
		Creds:     creds,
		Profiles:  profiles,
		Discovery: disc,
		Watcher:   watch,
		Waker:     waker,
		Pairing:   pairing,
		Sessions:  sessions,
		Feed:      feed,

		obsShutdown: obsShutdown,
	}, nil
}

// Run serves until the context is cancelled, then shuts everything down in
// reverse dependency order.
func (a *App) Run(ctx context.Context) error {
	router, err := httptransport.Build(httptransport.Options{
		Config: a.Config,
		Logger: a.Logger,
	})
	if err != nil {
		return err
	}
	api := httptransport.NewService(a.Config, a.Logger, a.Bus,
		a.Cache, a.Creds, a.Profiles,
		a.Discovery, a.Pairing, a.Sessions, a.Waker)
	api.RegisterRoutes(router)
	router.Engine.GET("/ws", a.Feed.Handler)

	addr := a.Config.Server.IP + ":" + strconv.Itoa(a.Config.Server.Port)
	a.httpSrv = &http.Server{Addr: addr, Handler: router.Engine}

	a.Watcher.Start(ctx)
	a.refreshSystemInfo()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.Logger.Info("control api listening", "addr", addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("control api: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		a.shutdown()
		return nil
	})
	return group.Wait()
}

func (a *App) shutdown() {
	a.Logger.Info("shutting down")

	a.Sessions.Stop()
	a.Discovery.Stop()
	a.Waker.Cancel()
	a.Pairing.Cancel()
	a.Watcher.Stop()
	a.Feed.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.httpSrv != nil {
		_ = a.httpSrv.Shutdown(shutdownCtx)
	}

	if err := a.Creds.Close(shutdownCtx); err != nil {
		a.Logger.Warn("registration store close failed", "error", err)
	}
	if a.obsShutdown != nil {
		_ = a.obsShutdown(shutdownCtx)
	}
	a.Logger.Close()
}

// refreshSystemInfo primes the profile's cached device snapshot when the
// stored one has gone stale.
func (a *App) refreshSystemInfo() {
	if _, fresh := a.Profiles.CachedSystemInfo(); fresh {
		return
	}
	info := profile.CollectSystemInfo()
	if err := a.Profiles.UpdateSystemInfo(info); err != nil {
		a.Logger.Debug("system info not cached", "error", err)
	}
}

// syncWaker adapts the asynchronous wake engine to the session engine's
// blocking call site.
type syncWaker struct {
	engine *wake.Engine
}

func (w syncWaker) Wake(ctx context.Context, ip string) error {
	if err := w.engine.Wake(ctx, ip); err != nil {
		return err
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.engine.Cancel()
			return errors.New(errors.KindCancelled, "bootstrap.wake", "wake wait cancelled")
		case <-ticker.C:
			if !w.engine.IsWaking() {
				return w.engine.LastError()
			}
		}
	}
}

func redisConfig(cfg *config.Config) *store.RedisConfig {
	r := cfg.Storage.Registration.Redis
	if r.Addr == "" {
		return nil
	}
	return &store.RedisConfig{
		Addr:     r.Addr,
		Username: r.Username,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
	}
}
