// Package app wires configuration, storage, transport, and the game
// service into one process. Construction is explicit: every component gets
// its collaborators through its constructor, nothing reads globals.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"rallybot/internal/bot"
	"rallybot/internal/config"
	"rallybot/internal/game"
	rtsup "rallybot/internal/runtime/supervisor"
	"rallybot/internal/storage"
	"rallybot/internal/transport/telegram/adapter"
	logx "rallybot/pkg/logx"
)

const (
	startStepTimeout = 30 * time.Second
	stopStepTimeout  = 10 * time.Second
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store game.Store
	ad    *adapter.Adapter
	svc   *game.Service
	bot   *bot.Bot
	drv   *game.Driver

	// settings holds the current game.Settings snapshot; swapped whole on
	// config reload so readers never see a half-applied revision.
	settings atomic.Value // game.Settings

	sup   *rtsup.Supervisor
	cfgCh chan *config.Config
}

func New(configPath string) (*App, error) {
	a := &App{}

	a.cfgm = config.NewManager(configPath)
	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	a.logs, a.log = logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	set, err := settingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.settings.Store(set)
	settingsFn := func() game.Settings { return a.settings.Load().(game.Settings) }

	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	a.store, err = storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	poll, _ := cfg.Telegram.PollTimeoutValue()
	a.ad, err = adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
	}, a.log)
	if err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	announcer := bot.NewAnnouncer(a.ad, settingsFn, a.log.With(logx.String("comp", "announcer")))
	a.svc = game.NewService(a.store, announcer, settingsFn, a.log.With(logx.String("comp", "game")))
	a.drv = game.NewDriver(a.svc, a.log.With(logx.String("comp", "driver")))

	admins := func() []int64 {
		if c := a.cfgm.Get(); c != nil {
			return c.Telegram.AdminUserIDs
		}
		return nil
	}
	a.bot = bot.New(a.ad, a.svc, settingsFn, admins, a.log.With(logx.String("comp", "bot")))

	return a, nil
}

func settingsFromConfig(cfg *config.Config) (game.Settings, error) {
	dl, err := cfg.Games.Deadlines()
	if err != nil {
		return game.Settings{}, err
	}
	return game.Settings{
		Deadlines:     dl,
		ChatID:        cfg.Telegram.ChatID,
		DefaultCourts: cfg.Games.DefaultCourtsValue(),
	}, nil
}

// Start brings the process up: config watcher, bot, periodic driver.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "app"))))

	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.cfgCh = a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	startCtx, cancel := context.WithTimeout(ctx, startStepTimeout)
	defer cancel()
	if err := a.bot.Start(startCtx); err != nil {
		return fmt.Errorf("start bot: %w", err)
	}

	cfg := a.cfgm.Get()
	interval, err := cfg.Games.ScanIntervalValue()
	if err != nil {
		return err
	}
	set := a.settings.Load().(game.Settings)
	if err := a.drv.Start(a.sup.Context(), interval, set.Deadlines.Location); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}

	a.log.Info("started",
		logx.Duration("scan_interval", interval),
		logx.String("tz", set.Deadlines.Location.String()))
	return nil
}

// applyConfig pushes a validated hot reload into the running components.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})

	set, err := settingsFromConfig(cfg)
	if err != nil {
		// Validate() gates commits, so this only fires if the timezone
		// database changed under us. Keep the previous settings.
		a.log.Warn("reloaded settings unusable; keeping previous", logx.Err(err))
		return
	}
	a.settings.Store(set)

	if interval, err := cfg.Games.ScanIntervalValue(); err == nil {
		a.drv.Apply(interval, set.Deadlines.Location)
	}
	a.log.Info("settings applied",
		logx.String("tz", set.Deadlines.Location.String()),
		logx.Int("default_courts", set.DefaultCourts))
}

// Stop shuts down in reverse start order. Each step gets its own timeout so
// one stuck component cannot eat the whole shutdown budget.
func (a *App) Stop(ctx context.Context) error {
	a.drv.Stop()

	stopCtx, cancel := context.WithTimeout(ctx, stopStepTimeout)
	if err := a.bot.Stop(stopCtx); err != nil {
		a.log.Warn("bot stop", logx.Err(err))
	}
	cancel()

	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	if a.sup != nil {
		a.sup.Cancel()
		waitCtx, cancel := context.WithTimeout(ctx, stopStepTimeout)
		if err := a.sup.Wait(waitCtx); err != nil {
			a.log.Warn("supervisor wait", logx.Err(err))
		}
		cancel()
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}
