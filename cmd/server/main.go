package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cx-tal-miterani/airbook/internal/auth"
	"github.com/cx-tal-miterani/airbook/internal/config"
	"github.com/cx-tal-miterani/airbook/internal/database"
	"github.com/cx-tal-miterani/airbook/internal/handlers"
	"github.com/cx-tal-miterani/airbook/internal/router"
	"github.com/cx-tal-miterani/airbook/internal/service"
	"github.com/cx-tal-miterani/airbook/internal/websocket"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx := context.Background()

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.WithError(err).Fatal("failed to ping database")
	}
	log.Info("connected to database")

	if err := database.Migrate(pool); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	repo := database.NewRepository(pool)

	// WebSocket hub for live seat updates
	hub := websocket.NewHub(log)
	go hub.Run()

	// Initialize services
	authService := auth.NewService(repo, cfg.JWTSecret, cfg.TokenTTL())
	bookingService := service.NewBookingService(repo, service.Policy{
		CancellationCutoff: cfg.CancellationCutoff(),
		PenaltyRate:        cfg.CancellationPenaltyRate,
	}, log, hub)

	// Startup is a sweep trigger point.
	bookingService.SweepCompletedOrders(ctx)

	// Initialize handlers and router
	h := handlers.NewHandler(bookingService, authService, log)
	limiter := router.NewClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	r := router.SetupRouter(h, hub, limiter)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}
