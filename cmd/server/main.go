package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/courier/internal/api"
	"github.com/ignite/courier/internal/channel"
	"github.com/ignite/courier/internal/config"
	"github.com/ignite/courier/internal/pkg/distlock"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/pkg/ratelimit"
	"github.com/ignite/courier/internal/repository/postgres"
	"github.com/ignite/courier/internal/service/dispatch"
	"github.com/ignite/courier/internal/service/template"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func configureLogging(cfg config.LoggingConfig) {
	switch strings.ToLower(cfg.Level) {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}
	logger.SetRedactPII(cfg.RedactPII)
}

func buildAdapters(cfg *config.Config, limiter *ratelimit.Limiter) []channel.Adapter {
	var adapters []channel.Adapter
	if cfg.Email.Enabled {
		adapters = append(adapters, channel.NewEmailAdapter(
			cfg.Email.AccessKey, cfg.Email.SecretKey, cfg.Email.Region,
			cfg.Email.FromAddress, cfg.Email.FromName,
			cfg.Email.Priority,
			ratelimit.Limits{
				PerSecond: cfg.Email.RateLimits.PerSecond,
				PerMinute: cfg.Email.RateLimits.PerMinute,
				PerHour:   cfg.Email.RateLimits.PerHour,
			}))
		log.Printf("Email channel enabled (SES region %s)", cfg.Email.Region)
	}
	if cfg.SMS.Enabled {
		adapters = append(adapters, channel.NewSMSAdapter(
			cfg.SMS.APIKey, cfg.SMS.FromNumber, cfg.SMS.BaseURL,
			cfg.SMS.Priority,
			ratelimit.Limits{
				PerSecond: cfg.SMS.RateLimits.PerSecond,
				PerMinute: cfg.SMS.RateLimits.PerMinute,
				PerHour:   cfg.SMS.RateLimits.PerHour,
			}, limiter))
		log.Println("SMS channel enabled")
	}
	if cfg.WhatsApp.Enabled {
		adapters = append(adapters, channel.NewWhatsAppAdapter(
			cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.BaseURL,
			cfg.WhatsApp.Priority,
			ratelimit.Limits{
				PerSecond: cfg.WhatsApp.RateLimits.PerSecond,
				PerMinute: cfg.WhatsApp.RateLimits.PerMinute,
				PerHour:   cfg.WhatsApp.RateLimits.PerHour,
			}, limiter))
		log.Println("WhatsApp channel enabled")
	}
	if cfg.Push.Enabled {
		adapters = append(adapters, channel.NewPushAdapter(
			cfg.Push.ServerToken, cfg.Push.ProjectID, cfg.Push.BaseURL,
			cfg.Push.Priority,
			ratelimit.Limits{
				PerSecond: cfg.Push.RateLimits.PerSecond,
				PerMinute: cfg.Push.RateLimits.PerMinute,
				PerHour:   cfg.Push.RateLimits.PerHour,
			}))
		log.Println("Push channel enabled")
	}
	return adapters
}

func main() {
	log.Println("Courier API server starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}
	configureLogging(cfg.Logging)

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("Database unreachable at %s: %v", extractHost(cfg.Database.URL), err)
	}
	log.Printf("Connected to database at %s", extractHost(cfg.Database.URL))

	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	var redisClient *redis.Client
	var limiter *ratelimit.Limiter
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable at %s, falling back to advisory locks: %v", cfg.Redis.Addr, err)
			redisClient = nil
		} else {
			limiter = ratelimit.New(redisClient)
			log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
		}
	}

	adapters := buildAdapters(cfg, limiter)
	if len(adapters) == 0 {
		log.Println("WARNING: no channels enabled; sends will fail routing")
	}

	uow := postgres.NewUnitOfWork(db)
	locks := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, ttl)
	}
	dispatchSvc := dispatch.NewService(uow, adapters, locks)
	templateSvc := template.NewService(postgres.NewTemplateRepo(db))

	handlers := api.NewHandlers(dispatchSvc, templateSvc, adapters)
	router := api.SetupRoutes(handlers, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	db.Close()

	log.Println("Server stopped")
}
