// Command server runs the loot pool consensus service: the submission API,
// the consensus read API, and the background recomputation scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wynnsource/loot-consensus/internal/api/pool"
	"github.com/wynnsource/loot-consensus/internal/config"
	"github.com/wynnsource/loot-consensus/internal/item"
	"github.com/wynnsource/loot-consensus/internal/repository"
	"github.com/wynnsource/loot-consensus/internal/reputation"
	"github.com/wynnsource/loot-consensus/internal/service/consensus"
	"github.com/wynnsource/loot-consensus/internal/service/ingest"
	"github.com/wynnsource/loot-consensus/internal/service/scheduler"
	"github.com/wynnsource/loot-consensus/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting loot consensus service")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Service terminated")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Database.Redis.Host, cfg.Database.Redis.Port),
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
		PoolSize: cfg.Database.Redis.PoolSize,
	})
	defer rdb.Close()

	pools := repository.NewPoolRepository(db)
	scores := reputation.NewCachedSource(
		reputation.NewHTTPSource(cfg.Reputation.URL, cfg.Reputation.Timeout()),
		rdb,
		cfg.Reputation.CacheTTL(),
		log,
	)

	ingestService := ingest.NewService(
		pools,
		scores,
		item.NewWireCodec(),
		clockwork.NewRealClock(),
		cfg.Engine.FuzzyWindow(),
		cfg.Engine.MaxClockSkew(),
		log,
	)
	consensusService := consensus.NewService(pools, log)

	sched := scheduler.NewService(cfg, consensusService, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	router := buildRouter(cfg, db, ingestService, consensusService, pools, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func buildRouter(
	cfg *config.Config,
	db *repository.DB,
	ingestService *ingest.Service,
	consensusService *consensus.Service,
	pools *repository.PoolRepository,
	log *logger.Logger,
) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	handler := pool.NewHandler(ingestService, consensusService, pools, log)
	handler.RegisterRoutes(router)

	return router
}
