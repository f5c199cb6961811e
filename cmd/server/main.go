package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linksnip/linksnip/config"
	"github.com/linksnip/linksnip/internal/cache"
	"github.com/linksnip/linksnip/internal/filter"
	"github.com/linksnip/linksnip/internal/handler"
	"github.com/linksnip/linksnip/internal/idgen"
	"github.com/linksnip/linksnip/internal/logger"
	"github.com/linksnip/linksnip/internal/middleware"
	"github.com/linksnip/linksnip/internal/repository"
	"github.com/linksnip/linksnip/internal/service"
	"github.com/linksnip/linksnip/internal/shortcode"
)

func main() {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level)
	log := logger.Get()

	ids, err := idgen.New(cfg.Snowflake.NodeID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ID generator")
	}

	repo, err := repository.NewLinkRepository(
		cfg.Database.DSN(),
		cfg.Database.MaxIdleConns,
		cfg.Database.MaxOpenConns,
		ids,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	defer repo.Close()

	redisCache, err := cache.NewRedisCache(cache.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		URL:      cfg.Redis.URL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Redis cache")
	}
	defer redisCache.Close()

	bloomFilter := filter.New(cfg.BloomFilter.Capacity, cfg.BloomFilter.FalsePositiveRate)
	codes := shortcode.New(cfg.App.CodeLength)

	linkService := service.NewLinkService(repo, redisCache, bloomFilter, codes, cfg.App.DefaultTTLHours, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := linkService.WarmBloomFilter(ctx); err != nil {
		// degraded negative-lookup guard, still correct
		log.Warn().Err(err).Msg("bloom filter warm-up failed")
	}
	cancel()

	recorder := service.NewClickRecorder(repo, cfg.Recorder.Workers, cfg.Recorder.QueueSize, log)
	defer recorder.Close()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	linkHandler := handler.NewLinkHandler(linkService, recorder, cfg.App.BaseURL)

	shortenHandlers := []gin.HandlerFunc{linkHandler.Shorten}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(redisCache.Client(), &middleware.RateLimitConfig{
			Strategy: middleware.RateLimitStrategy(cfg.RateLimit.Strategy),
			Limit:    cfg.RateLimit.ShortenLimit,
			Window:   time.Duration(cfg.RateLimit.ShortenWindow) * time.Second,
			KeyFunc:  middleware.IPBasedKey,
			SkipFunc: middleware.SkipHealthCheck,
		}, log)
		shortenHandlers = []gin.HandlerFunc{limiter.Middleware(), linkHandler.Shorten}
		log.Info().
			Str("strategy", cfg.RateLimit.Strategy).
			Int("limit", cfg.RateLimit.ShortenLimit).
			Int("window_seconds", cfg.RateLimit.ShortenWindow).
			Msg("rate limiting enabled on /shorten")
	}

	router.GET("/", linkHandler.Index)
	router.GET("/health", linkHandler.Health)
	router.POST("/shorten", shortenHandlers...)
	router.GET("/stats/:code", linkHandler.Stats)
	router.GET("/:code", linkHandler.Redirect)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
