// llama-relay - UDP relay to a local chat-completion backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/llama-relay/internal/api"
	"github.com/ashureev/llama-relay/internal/backend"
	"github.com/ashureev/llama-relay/internal/config"
	"github.com/ashureev/llama-relay/internal/convlog"
	"github.com/ashureev/llama-relay/internal/health"
	"github.com/ashureev/llama-relay/internal/relay"
	"github.com/ashureev/llama-relay/internal/store"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting relay",
		"addr", cfg.Relay.Addr,
		"backend", cfg.Backend.URL,
		"model", cfg.Backend.Model,
		"store", cfg.Store.Driver,
		"workers", cfg.Relay.Workers,
	)

	// Initialize dependencies.
	repo, err := store.Open(store.Options{
		Driver: cfg.Store.Driver,
		Dir:    cfg.Store.Dir,
		DBPath: cfg.Store.DBPath,
	})
	if err != nil {
		slog.Error("Failed to initialize transcript store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Transcript store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Transcript store ready", "driver", cfg.Store.Driver)

	policy, err := backend.ParsePolicy(cfg.Backend.MalformedPolicy)
	if err != nil {
		slog.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	llm := backend.NewOllama(backend.OllamaConfig{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
		Policy:  policy,
	}, logger)

	convLog, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	handler := relay.NewHandler(repo, llm, cfg.Backend.Model, convLog, logger)

	// Bind failure is fatal; nothing is served without the datagram socket.
	conn, err := relay.Listen(cfg.Relay.Addr)
	if err != nil {
		slog.Error("Failed to bind relay socket", "addr", cfg.Relay.Addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Error("Failed to close relay socket", "error", closeErr)
		}
	}()
	server := relay.NewServer(conn, handler, relay.ServerOptions{
		BufferSize: cfg.Relay.BufferSize,
		Workers:    cfg.Relay.Workers,
	}, logger)

	checker := health.NewChecker(cfg.HealthInterval, logger)
	checker.Add("store", repo.Ping)
	checker.Add("backend", llm.Ping)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gctx)
	})

	g.Go(func() error {
		checker.Run(gctx)
		return nil
	})

	if cfg.GRPCHealthPort != "" {
		g.Go(func() error {
			return health.ServeGRPC(gctx, ":"+cfg.GRPCHealthPort, checker, logger)
		})
	}

	if cfg.AdminPort != "" {
		admin := api.NewHandler(repo, checker, handler, logger)
		srv := &http.Server{
			Addr:         ":" + cfg.AdminPort,
			Handler:      admin.Routes(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // WebSocket sessions are long-lived
			IdleTimeout:  120 * time.Second,
		}

		g.Go(func() error {
			slog.Info("Admin server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Admin server forced to shutdown", "error", err)
			}
			// Hijacked WebSocket sessions are not covered by srv.Shutdown and
			// must finish before the store closes.
			if err := admin.Shutdown(shutdownCtx); err != nil {
				slog.Error("WebSocket sessions did not drain", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Relay stopped successfully")
}
