package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/handcricket/backend/internal/api"
	"github.com/handcricket/backend/internal/api/handlers"
	"github.com/handcricket/backend/internal/config"
	"github.com/handcricket/backend/internal/database"
	"github.com/handcricket/backend/internal/game"
	"github.com/handcricket/backend/internal/middleware"
	"github.com/handcricket/backend/internal/migrations"
	"github.com/handcricket/backend/internal/redis"
	"github.com/handcricket/backend/internal/results"
	"github.com/handcricket/backend/internal/store"
	"github.com/handcricket/backend/internal/ws"
)

func main() {
	// Initialize configuration (.env is loaded inside)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
	log.Println("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	storeTimeout := config.Millis(cfg.StoreTimeoutMs)
	health := map[string]handlers.Pinger{}

	// Result sink
	var sink game.ResultSink
	var stats handlers.StatsReader
	switch cfg.ResultsBackend {
	case "postgres":
		if cfg.MigrateOnStart {
			log.Println("[MIGRATE] Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		ps := results.NewPostgresSink(db)
		sink, stats = ps, ps
		health["postgres"] = handlers.PingFunc(db.PingContext)
	case "none":
		log.Println("[RESULTS] Result persistence disabled")
	default:
		return fmt.Errorf("unknown RESULTS_BACKEND %q", cfg.ResultsBackend)
	}

	// Shared state and event delivery
	hub := ws.NewHub(cfg.InstanceID)
	opts := store.Options{
		SessionTTL:       time.Duration(cfg.SessionTTLMinutes) * time.Minute,
		SessionRetention: time.Duration(cfg.SessionRetentionSeconds) * time.Second,
		StatusTTL:        time.Duration(cfg.StatusTTLMinutes) * time.Minute,
		Timeout:          storeTimeout,
	}
	var st store.Store
	var notifier game.Notifier = hub
	var relay *ws.Relay
	switch cfg.StoreBackend {
	case "memory":
		log.Println("[STORE] Using in-memory store (single process only)")
		st = store.NewMemoryStore(opts)
	case "redis":
		rdb, err := redis.Connect(ctx, cfg.RedisURL, storeTimeout)
		if err != nil {
			return err
		}
		defer rdb.Close()
		st = store.NewRedisStore(rdb, opts)
		notifier = ws.NewRedisNotifier(rdb, storeTimeout)
		if relay, err = ws.SubscribeRelay(ctx, rdb, hub); err != nil {
			return err
		}
		health["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Printf("[STORE] Using Redis store (instance=%s)", cfg.InstanceID)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	coord := game.NewCoordinator(st, notifier, sink, game.SettingsFromConfig(cfg))
	defer coord.Close()

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	wsServer := ws.NewServer(hub, coord, cfg.JWTSecret, middleware.AllowedOrigins(cfg))
	api.SetupRoutes(router, cfg, api.Deps{
		Matchmaking: coord,
		Stats:       stats,
		WebSocket:   wsServer,
		Health:      health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting Hand Cricket server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		// Dropped sockets forfeit their sessions so no participant stays
		// marked in_session after this process is gone.
		return wsServer.Shutdown(shutdownCtx)
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		return coord.RunIdleWorker(gctx, config.Millis(cfg.IdleWorkerPollMs))
	})
	g.Go(func() error {
		return coord.RunMatchmakerWorker(gctx, config.Millis(cfg.MatchmakerPollMs))
	})

	return g.Wait()
}
