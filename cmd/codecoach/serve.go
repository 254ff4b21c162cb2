package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/codecoach/internal/api"
	"github.com/ashureev/codecoach/internal/identity"
	"github.com/ashureev/codecoach/internal/middleware"
	"github.com/ashureev/codecoach/internal/session"
	"github.com/ashureev/codecoach/internal/shell"
	"github.com/ashureev/codecoach/internal/transcript"
	"github.com/ashureev/codecoach/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coaching daemon (local API and UI shell bridge)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))
			slog.SetDefault(logger)
			return runServe(cmd.Context(), logger)
		},
	}
}

func runServe(parent context.Context, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	logger.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "learner_id", a.learnerID)

	turns, err := transcript.NewLogger(transcript.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer turns.Close()

	hub := shell.NewHub(cfg.Starter.WorkspaceFolders, logger)
	installer := a.newInstaller(hub)

	mgr := session.NewManager(session.Deps{
		Assignments:    a.assignments,
		Sessions:       a.sessions,
		Coach:          a.newCoach(ctx),
		Profiles:       a.profiles,
		Starter:        installer,
		Snapshots:      a.repo,
		Turns:          turns,
		LearnerID:      a.learnerID,
		FlushThreshold: cfg.Trace.FlushThreshold,
		Logger:         logger,
	})
	hub.SetHandler(mgr)
	mgr.SetEvents(hub)

	if err := mgr.Activate(ctx); err != nil {
		logger.Warn("Activation incomplete", "error", err)
	}

	origins := []string{"*"}
	if !cfg.IsDevelopment() {
		origins = []string{cfg.FrontendURL}
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(origins))
	r.Use(identity.Middleware(a.learnerID))

	api.NewCoachHandler(mgr, a.profiles, installer, a.repo, logger).RegisterRoutes(r)
	r.Get("/ws/shell", shell.NewWebSocketHandler(ctx, hub, cfg.FrontendURL, cfg.IsDevelopment()).ServeHTTP)
	r.Handle("/*", web.ShellHandler())

	// No WriteTimeout: chat requests wait on text generation.
	srv := &http.Server{
		Addr:              "127.0.0.1:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	stop()

	logger.Info("Shutting down gracefully...")
	hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Best-effort flush so buffered events reach the session store.
	if n, err := mgr.Flush(shutdownCtx); err != nil && !errors.Is(err, session.ErrNoActiveSession) {
		logger.Warn("Final trace flush failed", "error", err)
	} else if n > 0 {
		logger.Info("Flushed trace events on shutdown", "sent", n)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped successfully")
	return nil
}
