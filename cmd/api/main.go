package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting storefront API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)

	if cfg.Catalog.ImportOnStart && len(cfg.Catalog.Files) > 0 {
		importer := catalog.NewImporter(catalog.NewConfiguredLoader(ctx, cfg.Catalog, logger), productRepo, logger)
		if _, err := importer.Import(ctx, cfg.Catalog.Files); err != nil {
			return fmt.Errorf("failed to import catalog: %w", err)
		}
	}

	// Redis backs carts and status events when configured
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connection established")
	}

	carts := newCartStore(cfg, redisClient, logger)
	publisher := newPublisher(ctx, cfg, redisClient, logger)
	gateway := newGateway(cfg, logger)

	// Initialize services
	productService := service.NewProductService(productRepo, logger)
	cartService := service.NewCartService(carts, productRepo, logger)
	orderService := service.NewOrderService(orderRepo, publisher, cfg.Checkout.CurrencyUnit(), logger)

	checkoutManager := checkout.NewManager(carts, orderService, gateway, checkout.Config{
		PaymentWindow:  cfg.Checkout.PaymentWindow,
		PaymentMethods: cfg.Checkout.PaymentMethods,
		ReturnURL:      cfg.Gateway.ReturnURL,
	}, logger)
	go checkoutManager.RunJanitor(ctx, cfg.Checkout.JanitorInterval, cfg.Checkout.SessionTTL)

	// Initialize HTTP handlers
	handlers := router.Handlers{
		Health:   handler.NewHealthHandler(pool, logger),
		Product:  handler.NewProductHandler(productService, logger),
		Cart:     handler.NewCartHandler(cartService, logger),
		Checkout: handler.NewCheckoutHandler(checkoutManager, logger),
		Payment:  handler.NewPaymentHandler(orderService, checkoutManager, cfg.Gateway.CallbackSecret, logger),
		Order:    handler.NewOrderHandler(orderService, logger),
	}

	opts := router.Options{
		APIKey:              cfg.Auth.APIKey,
		CustomerTokenSecret: cfg.Auth.CustomerTokenSecret,
		CORSOrigins:         cfg.Server.CORSOrigins,
	}
	if cfg.RateLimit.Enabled {
		opts.PayLimiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.New(handlers, opts, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

func newCartStore(cfg *config.Config, client *redis.Client, logger zerolog.Logger) cart.Store {
	if cfg.Cart.Store == "redis" {
		logger.Info().Dur("ttl", cfg.Cart.TTL).Msg("carts stored in redis")
		return cart.NewRedisStore(client, cfg.Cart.KeyPrefix, cfg.Cart.TTL, logger)
	}
	logger.Info().Msg("carts stored in memory")
	return cart.NewMemoryStore()
}

// newPublisher publishes status changes on Redis and starts the listener
// that reacts to them. Without Redis the changes are only logged.
func newPublisher(ctx context.Context, cfg *config.Config, client *redis.Client, logger zerolog.Logger) events.Publisher {
	if client == nil {
		return events.NewLogPublisher(logger)
	}

	publisher := events.NewRedisPublisher(client, cfg.Redis.EventsChannel, logger)
	go func() {
		if err := publisher.Listen(ctx, events.Reactor(logger)); err != nil {
			logger.Error().Err(err).Msg("status change listener stopped")
		}
	}()
	return publisher
}

func newGateway(cfg *config.Config, logger zerolog.Logger) payment.Gateway {
	if cfg.Gateway.URL == "" {
		logger.Warn().Msg("GATEWAY_URL not set, using sandbox payment gateway")
		return payment.NewSandboxGateway(cfg.Gateway.ReturnURL)
	}
	return payment.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.Timeout, logger)
}
