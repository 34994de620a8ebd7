package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"casavia/api/internal/app"
	"casavia/api/internal/authpw"
	"casavia/api/internal/config"
	"casavia/api/internal/email"
	"casavia/api/internal/export"
	"casavia/api/internal/intelligence"
	"casavia/api/internal/media"
	"casavia/api/internal/search"
	"casavia/api/internal/session"
	"casavia/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	// Redis backs refresh sessions and rate limiting when configured;
	// Postgres and in-memory fixed windows otherwise.
	var sessions app.RefreshSessionStore
	var chatLimiter intelligence.Limiter
	var inquiryLimiter intelligence.Limiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore

		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url invalid: %v", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		chatLimiter = intelligence.NewRedisLimiter(redisClient, "ratelimit:chat", cfg.ChatRatePerMin, time.Minute)
		inquiryLimiter = intelligence.NewRedisLimiter(redisClient, "ratelimit:inquiry", cfg.InquiryRatePerMin, time.Minute)
		log.Printf("using Redis for refresh sessions and rate limiting")
	} else {
		sessions = app.NewDBSessionStore(dataStore)
		chatLimiter = intelligence.NewMemoryLimiter(cfg.ChatRatePerMin, time.Minute)
		inquiryLimiter = intelligence.NewMemoryLimiter(cfg.InquiryRatePerMin, time.Minute)
		log.Printf("using PostgreSQL for refresh sessions")
	}

	var processor *media.Processor
	if cfg.MinioAccessKey != "" {
		storage, err := media.NewMinioStorage(ctx, media.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			BaseURL:   cfg.MediaBaseURL,
		})
		if err != nil {
			log.Fatalf("object storage failed: %v", err)
		}
		processor = media.NewProcessor(storage, cfg.WatermarkText)
	} else {
		log.Printf("object storage not configured, image uploads disabled")
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	service := app.NewService(cfg, dataStore, authpw.NewService(dataStore), app.Options{
		Sessions:       sessions,
		Search:         searchService,
		Media:          processor,
		Email:          emailService,
		Export:         export.NewService(dataStore),
		InquiryLimiter: inquiryLimiter,
	})
	defer service.Close()

	if cfg.GeminiAPIKey != "" {
		planner, err := intelligence.NewGeminiPlanner(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("intelligence disabled: %v", err)
		} else {
			service.EnableIntelligence(planner, chatLimiter, cfg.PendingActionTTL)
		}
	} else {
		log.Printf("GEMINI_API_KEY not set, intelligence disabled")
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Casavia API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
