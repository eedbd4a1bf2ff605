package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Vovarama1992/otk-assistant/internal/bot"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP bridge, session sweeper and event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadBase()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("app", "startup failed", map[string]any{"error": err})
		return err
	}
	defer a.close()

	// --- Router ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.App.CorsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	bot.RegisterRoutes(r, bot.NewHandler(a.svc, max(cfg.Media.MaxAudioBytes, cfg.Media.MaxImageBytes)))

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	r.Get("/health", a.health)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("app", "listening", map[string]any{"port": cfg.App.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.sessions.Run(gctx, cfg.Session.SweepInterval, func(e session.Expiry) {
			a.svc.Expired(gctx, e)
		})
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("app", "shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if derr := a.lanes.Close(shutdownCtx); derr != nil && err == nil {
			err = derr
		}
		return err
	})

	return g.Wait()
}

// health — БД и провайдеры; 503, если что-то из этого недоступно.
func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"active_sessions": a.sessions.Active(),
	}

	if err := a.db.PingContext(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["database"] = err.Error()
	} else {
		body["database"] = "ok"
	}

	providers := map[string]string{}
	for kind, err := range a.gateway.Check(ctx) {
		name := string(kind) + ":" + a.gateway.Backend(kind)
		if err != nil {
			status = http.StatusServiceUnavailable
			providers[name] = err.Error()
			continue
		}
		providers[name] = "ok"
	}
	body["providers"] = providers

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
