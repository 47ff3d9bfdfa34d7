package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/apexrewards/pointsledger/internal/audit"
	"github.com/apexrewards/pointsledger/internal/db"
	"github.com/apexrewards/pointsledger/internal/handlers"
	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/ratelimit"
	"github.com/apexrewards/pointsledger/internal/repository/postgres"
	"github.com/apexrewards/pointsledger/internal/service/event"
	"github.com/apexrewards/pointsledger/internal/service/ledger"
	"github.com/apexrewards/pointsledger/internal/service/promotion"
	"github.com/apexrewards/pointsledger/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	closers []func() error
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	app := &ServerApp{
		ListenAddr: c.ListenAddr,
		Logger:     log,
	}

	// Audit stream is optional, ledger falls back to a noop publisher
	var publisher audit.Publisher
	if len(c.KafkaBrokers) != 0 {
		kafkaPublisher := audit.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic, log)
		app.closers = append(app.closers, kafkaPublisher.Close)
		publisher = kafkaPublisher
	}

	// Initialize services
	ledgerService := ledger.NewService(storage, publisher)
	promotionService := promotion.NewService(storage)
	userService := user.NewService(storage)
	eventService := event.NewService(storage)

	// Rate limiter is optional as well
	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if c.RedisAddr != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(c.RedisAddr, c.RateLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, redisLimiter.Close)
		limiter = redisLimiter
	}

	app.Handler = handlers.NewRouter(
		ledgerService,
		promotionService,
		userService,
		eventService,
		c.SecretKey,
		limiter,
		log,
	)

	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	for _, closeFn := range s.closers {
		if closeErr := closeFn(); closeErr != nil {
			s.Logger.Warn("Failed to close dependency", "error", closeErr)
		}
	}

	return err
}
