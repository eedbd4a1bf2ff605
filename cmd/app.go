package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Vovarama1992/otk-assistant/internal/ai"
	"github.com/Vovarama1992/otk-assistant/internal/bot"
	"github.com/Vovarama1992/otk-assistant/internal/config"
	"github.com/Vovarama1992/otk-assistant/internal/confirm"
	"github.com/Vovarama1992/otk-assistant/internal/database"
	"github.com/Vovarama1992/otk-assistant/internal/events"
	"github.com/Vovarama1992/otk-assistant/internal/extraction"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
	"github.com/Vovarama1992/otk-assistant/internal/media"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

// app — собранный граф зависимостей для serve.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	db       *sql.DB
	gateway  *ai.Gateway
	sessions *session.Manager
	lanes    *bot.Dispatcher
	bus      *events.Bus
	nats     *events.NatsForwarder
	svc      bot.Service
}

func loadBase() (*config.Config, *logger.ZapLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.App.LogFilePath, cfg.App.LogLevel, cfg.IsProduction())
	return cfg, log, nil
}

// pipeline — нормализатор и движок извлечения поверх шлюза с ретраем.
func pipeline(cfg *config.Config, gw ai.Caller, log logger.Logger) (*media.Normalizer, *extraction.Engine, error) {
	prompts, err := config.LoadPrompts(cfg.App.PromptsFile)
	if err != nil {
		return nil, nil, err
	}

	caller := ai.NewRetrying(gw, cfg.HTTP.RetryBackoff, log)

	limits := media.Limits{
		MaxAudioBytes:    cfg.Media.MaxAudioBytes,
		MaxAudioDuration: time.Duration(cfg.Media.MaxAudioSeconds) * time.Second,
		MaxImageBytes:    cfg.Media.MaxImageBytes,
		MaxImageWidth:    cfg.Media.MaxImageWidth,
		MaxImageHeight:   cfg.Media.MaxImageHeight,
	}

	normalizer := media.NewNormalizer(caller, limits, prompts.Vision, cfg.Providers.SpeechLanguage, log)
	engine := extraction.NewEngine(caller, prompts.System, log)
	return normalizer, engine, nil
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	db, dialect, err := database.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := inspection.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	gw, err := ai.New(cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	normalizer, engine, err := pipeline(cfg, gw, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db, gateway: gw}

	a.bus = events.NewBus(log)
	if err := a.bus.Subscribe(ctx, "audit", events.Audit(log)); err != nil {
		a.close()
		return nil, fmt.Errorf("subscribe audit: %w", err)
	}
	if cfg.App.NatsURL != "" {
		fwd, err := events.NewNatsForwarder(cfg.App.NatsURL, log)
		if err != nil {
			log.Warn("app", "nats forwarding disabled", map[string]any{"error": err})
		} else {
			a.nats = fwd
			if err := a.bus.Subscribe(ctx, "nats", fwd.Forward); err != nil {
				a.close()
				return nil, fmt.Errorf("subscribe nats: %w", err)
			}
		}
	}

	store := inspection.NewRepo(db, dialect)
	a.sessions = session.NewManager(cfg.Session.Timeout, log)
	coordinator := confirm.NewCoordinator(store, a.bus, 24*time.Hour, log)

	var notifier bot.Notifier
	if cfg.Callback.URL != "" {
		notifier = bot.NewWebhookOutbound(cfg.Callback.URL, cfg.Callback.Token)
	}

	a.lanes = bot.NewDispatcher(log)
	a.svc = bot.NewService(normalizer, engine, a.sessions, coordinator, store, notifier, a.lanes, log)

	return a, nil
}

func (a *app) close() {
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
