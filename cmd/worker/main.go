package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/courier/internal/channel"
	"github.com/ignite/courier/internal/config"
	"github.com/ignite/courier/internal/pkg/distlock"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/pkg/ratelimit"
	"github.com/ignite/courier/internal/repository/postgres"
	"github.com/ignite/courier/internal/service/dispatch"
	"github.com/ignite/courier/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

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
	}
	return adapters
}

func main() {
	log.Println("Courier delivery worker starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	configureLogging(cfg.Logging)

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
		log.Fatalf("Database unreachable: %v", err)
	}

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
		}
	}

	adapters := buildAdapters(cfg, limiter)
	if len(adapters) == 0 {
		log.Fatal("No channels enabled; worker has nothing to deliver")
	}

	uow := postgres.NewUnitOfWork(db)
	locks := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, ttl)
	}
	dispatchSvc := dispatch.NewService(uow, adapters, locks)

	poller := worker.NewPoller(dispatchSvc)
	poller.SetPollInterval(cfg.Worker.PollInterval())
	poller.SetBatchLimit(cfg.Worker.BatchLimit)

	if err := poller.Start(); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}
	log.Printf("Poller %s running (interval %v, batch %d)",
		poller.WorkerID(), cfg.Worker.PollInterval(), cfg.Worker.BatchLimit)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	poller.Stop()
	if redisClient != nil {
		redisClient.Close()
	}
	db.Close()
	log.Println("Worker stopped")
}
