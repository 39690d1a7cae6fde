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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/coursegpt-sync/internal/api"
	"github.com/ashureev/coursegpt-sync/internal/config"
	"github.com/ashureev/coursegpt-sync/internal/middleware"
	"github.com/ashureev/coursegpt-sync/internal/notify"
	"github.com/ashureev/coursegpt-sync/internal/session"
	"github.com/ashureev/coursegpt-sync/internal/store"
)

// serveCmd runs the session daemon.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session daemon (local API and websocket push)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	slog.Info("Starting session daemon", "port", cfg.Port, "api", cfg.APIBaseURL, "dev", cfg.IsDevelopment())

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}

	var repo store.Repository
	if cfg.SnapshotEnabled {
		sqlite, err := openSnapshot(cmd.Context(), cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := sqlite.Close(); closeErr != nil {
				slog.Error("Failed to close snapshot store", "error", closeErr)
			}
		}()
		repo = sqlite
		restoreSnapshot(cmd.Context(), sess, repo)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub()
	apiHandler := api.NewHandler(ctx, sess, slog.Default())
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     newRouter(cfg, sess, hub, apiHandler),
		ReadTimeout: 30 * time.Second,
		// WriteTimeout stays 0: websocket streams are long-lived.
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if repo != nil {
		g.Go(func() error {
			return sess.RunPersister(gctx, repo, cfg.PersistDebounce)
		})
	}

	if sess.View().User != nil {
		g.Go(func() error {
			if err := sess.Bootstrap(gctx); err != nil {
				slog.Warn("Bootstrap after restore failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		hub.CloseAll("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		apiHandler.Wait()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

func newRouter(c *config.Config, sess *session.Session, hub *notify.Hub, apiHandler *api.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{c.AllowedOrigin()}))

	apiHandler.RegisterRoutes(r)
	r.Get("/ws/session", notify.NewHandler(sess, hub, c.AllowedOrigin(), c.IsDevelopment()).ServeHTTP)
	return r
}

func openSnapshot(ctx context.Context, dbPath string) (*store.SQLiteStore, error) {
	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initialize snapshot store: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("snapshot store health check: %w", err)
	}
	slog.Info("Snapshot store connected", "path", dbPath)
	return repo, nil
}

// restoreSnapshot warms the session from the last saved snapshot. A bad
// snapshot is logged and ignored.
func restoreSnapshot(ctx context.Context, sess *session.Session, repo store.Repository) {
	snap, err := repo.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load snapshot", "error", err)
		return
	}
	if snap.IsEmpty() {
		slog.Info("No snapshot to restore")
		return
	}
	if err := sess.Restore(snap); err != nil {
		slog.Warn("Failed to restore snapshot", "error", err)
		return
	}
	slog.Info("Session restored from snapshot",
		"user_id", snap.UserID,
		"chats", len(snap.Chats),
		"courses", len(snap.Courses),
		"saved_at", snap.SavedAt)
}
