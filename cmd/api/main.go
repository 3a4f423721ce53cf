package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticketing/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/event-ticketing/internal/adapters/redis"
	"github.com/robertarktes/event-ticketing/internal/auth"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/config"
	"github.com/robertarktes/event-ticketing/internal/domain"
	httphandler "github.com/robertarktes/event-ticketing/internal/http"
	"github.com/robertarktes/event-ticketing/internal/idempotency"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/rateLimit"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "ticketing-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()

	// The store is not used until the schema matches this build.
	migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = crdb.Migrate(migrateCtx, pool)
	cancel()
	if err != nil {
		logger.WithError(err).Error("migrations failed")
		log.Fatalf("failed to migrate: %v", err)
	}
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL, cfg.IdempotencyLockTTL)
	rl := rateLimit.NewRateLimiter(redisCache, logger)

	clk := clock.NewSystem()
	authn := auth.NewAuthenticator(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.AdminTokenTTL, clk)
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH is empty, admin login is disabled")
	}

	engine := ticketing.NewEngine(repo, clk, logger,
		ticketing.WithTicketCodes(domain.RandomTicketCodes(cfg.TicketCodePrefix, cfg.TicketCodeLength)),
	)
	handlers := httphandler.NewHandlers(httphandler.Deps{
		Inventory: ticketing.NewInventory(repo, clk, logger),
		Engine:    engine,
		Verifier:  ticketing.NewVerifier(repo, logger),
		Dashboard: ticketing.NewDashboard(repo, clk),
		Auth:      authn,
		Store:     repo,
		Cache:     redisCache,
		StatsTTL:  cfg.StatsCacheTTL,
		Logger:    logger,
	})

	r := httphandler.SetupRouter(handlers, httphandler.RouterConfig{
		Logger:             logger,
		Auth:               authn,
		Limiter:            rl,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Idempotency:        idemp,
		RequestTimeout:     cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
