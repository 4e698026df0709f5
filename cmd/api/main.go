// main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/api"
	"github.com/Marga-Ghale/powerline-backend/internal/config"
	"github.com/Marga-Ghale/powerline-backend/internal/cron"
	"github.com/Marga-Ghale/powerline-backend/internal/db"
	"github.com/Marga-Ghale/powerline-backend/internal/email"
	"github.com/Marga-Ghale/powerline-backend/internal/logging"
	"github.com/Marga-Ghale/powerline-backend/internal/notification"
	"github.com/Marga-Ghale/powerline-backend/internal/repository"
	"github.com/Marga-Ghale/powerline-backend/internal/seed"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/Marga-Ghale/powerline-backend/internal/socket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// ============================================
	// Load configuration
	// ============================================
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("main")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ============================================
	// Initialize Storage
	// ============================================
	repos, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer closeStore()
	log.WithField("driver", cfg.StoreDriver).Info("Repositories initialized")

	// ============================================
	// Initialize Redis (optional)
	// ============================================
	var cache service.Cache
	cacheStatus := "disabled"
	if cfg.RedisURL != "" {
		redisDB, err := db.NewRedisDB(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Failed to connect to Redis, continuing without cache")
		} else {
			defer redisDB.Close()
			cache = redisDB
			cacheStatus = "connected"
			log.Info("Redis cache enabled")
		}
	}

	// ============================================
	// Initialize WebSocket Hub
	// ============================================
	hub := socket.NewHub()
	go hub.Run(ctx)
	broadcaster := socket.NewBroadcaster(hub)

	// ============================================
	// Initialize Email (optional)
	// ============================================
	var notifier service.Notifier
	if cfg.EmailEnabled() {
		emailQueue := email.NewEmailQueue(email.NewService(&email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
		}), cfg.EmailWorkers)
		defer emailQueue.Stop()
		notifier = notification.NewService(repos.UserRepo, emailQueue, cfg.AppURL)
		log.WithField("workers", cfg.EmailWorkers).Info("Email notifications enabled")
	}

	// ============================================
	// Initialize All Services
	// ============================================
	var metrics *service.Metrics
	if cfg.MetricsEnabled {
		metrics = service.NewMetrics(prometheus.DefaultRegisterer)
	}

	services := service.NewServices(&service.ServiceDeps{
		Config:      cfg,
		Repos:       repos,
		Cache:       cache,
		Broadcaster: broadcaster,
		Notifier:    notifier,
		Metrics:     metrics,
	})
	log.Info("All services initialized")

	wsHandler := socket.NewHandler(hub, services.Auth, cfg.CORSOrigins)

	// ============================================
	// Seed Data (for development)
	// ============================================
	if !cfg.IsProduction() {
		if err := seed.SeedData(ctx, repos, services); err != nil {
			log.WithError(err).Warn("Seeding failed")
		}
	}

	// ============================================
	// Initialize Cron Scheduler
	// ============================================
	scheduler := cron.NewScheduler(services, broadcaster, cfg.QueueSnapshotSchedule, cfg.ActivityRetentionDays)
	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start scheduler")
	}
	defer scheduler.Stop()

	// ============================================
	// Create Gin Router
	// ============================================
	routerCfg := api.RouterConfig{
		Services:    services,
		CORSOrigins: cfg.CORSOrigins,
		WebSocket:   wsHandler.HandleWebSocket,
		Health: func() gin.H {
			return gin.H{
				"store":      cfg.StoreDriver,
				"cache":      cacheStatus,
				"ws_clients": hub.GetConnectedClientsCount(),
			}
		},
	}
	if cfg.MetricsEnabled {
		routerCfg.Metrics = promhttp.Handler()
		routerCfg.MetricsPath = cfg.MetricsPath
	}
	r, err := api.NewRouter(routerCfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to build router")
	}

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

// openStore connects the configured storage driver and returns its
// repositories with a matching close function.
func openStore(ctx context.Context, cfg *config.Config) (*repository.Repositories, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		mongoDB, err := db.NewMongoDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		idxCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := repository.EnsureMongoIndexes(idxCtx, mongoDB.Database); err != nil {
			mongoDB.Close()
			return nil, nil, err
		}
		return repository.NewMongoRepositories(mongoDB.Database), mongoDB.Close, nil

	case config.DriverMemory:
		return repository.NewMemoryRepositories(), func() {}, nil

	default:
		logging.Component("db").Info("Running database migrations...")
		if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return nil, nil, err
		}
		pg, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRepositories(pg.Pool, pg.SQL), pg.Close, nil
	}
}
