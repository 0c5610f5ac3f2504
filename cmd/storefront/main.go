package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/cart"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/checkout"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/clients"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/pricing"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/server"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/service"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLoggerV2("storefront-service")
	defer logging.Sync()

	logging.Infof("Starting storefront-service on port %d", cfg.Server.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.OpenPostgres(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Fields{"error": err.Error()})
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := repository.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", logging.Fields{"error": err.Error()})
		}
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	checks := []handlers.Check{
		{Name: "postgres", Ping: db.PingContext},
		{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}

	remote, mongoClient := initCartBackend(cfg, db, logger)
	if mongoClient != nil {
		defer mongoClient.Disconnect(context.Background())
		checks = append(checks, handlers.Check{
			Name: "mongo",
			Ping: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
		})
	}

	loginPolicy, err := cart.ParseLoginPolicy(cfg.Cart.LoginPolicy)
	if err != nil {
		logger.Fatal("Invalid cart configuration", logging.Fields{"error": err.Error()})
	}
	carts := cart.NewService(
		cart.NewCachedRemote(remote, repository.NewRedisCartCache(redisClient, cfg.Cart.CacheTTL)),
		repository.NewRedisSessionCarts(redisClient, cfg.Cart.SessionTTL),
		cart.Options{LoginPolicy: loginPolicy, Timeout: cfg.Cart.BackendTimeout},
	)

	productRepo := repository.NewPostgresProductRepository(db, logger)
	promotionRepo := repository.NewPostgresPromotionRepository(db, logger)

	policy, err := pricing.NewPolicy(cfg.Pricing.PromotionMode, promotionRepo, cfg.Pricing.FlatRate)
	if err != nil {
		logger.Fatal("Invalid pricing configuration", logging.Fields{"error": err.Error()})
	}
	calculator := pricing.NewCalculator(pricing.Rules{
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		ShippingFee:           cfg.Pricing.ShippingFee,
	}, policy)

	// Summaries go to the hosted calculator when one is configured.
	var summaryCalculator checkout.TotalsCalculator = calculator
	if cfg.PricingService.BaseURL != "" {
		summaryCalculator = clients.NewHTTPPricingClient(cfg.PricingService, logger)
	}

	eventPublisher := events.NewKafkaPublisher(cfg.Kafka, logger)
	defer eventPublisher.Close()

	orderService := service.NewOrderService(
		repository.NewPostgresOrderRepository(db, logger),
		repository.NewRedisOrderCache(redisClient, cfg.Redis.TTL),
		productRepo,
		calculator,
		eventPublisher,
		cfg,
	)
	paymentService := service.NewPaymentService(orderService)

	orchestrator := checkout.NewOrchestrator(carts, orderService, summaryCalculator, cfg.Checkout.Timeout)

	h := handlers.NewHandlers(calculator, carts, productRepo, orchestrator, orderService, checks)
	srv := server.New(h, cfg)

	go func() {
		logger.Info("Server starting", logging.Fields{
			"port":           cfg.Server.Port,
			"cart_backend":   cfg.Cart.Backend,
			"promotion_mode": cfg.Pricing.PromotionMode,
			"login_policy":   string(loginPolicy),
		})
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", logging.Fields{"error": err.Error()})
		}
	}()

	var eventConsumer *events.KafkaConsumer
	if cfg.Features.EnablePaymentEvents {
		eventConsumer = events.NewKafkaConsumer(cfg.Kafka, paymentService, logger)
		go func() {
			if err := eventConsumer.Start(context.Background()); err != nil {
				logger.Error("Event consumer failed", logging.Fields{"error": err.Error()})
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if eventConsumer != nil {
		eventConsumer.Stop()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server exited")
}

// initCartBackend returns the per-user cart store selected by CART_BACKEND.
// The mongo client is returned so main can close and probe it.
func initCartBackend(cfg *config.Config, db *sql.DB, logger *logging.LoggerV2) (cart.RemoteBackend, *mongo.Client) {
	switch cfg.Cart.Backend {
	case "postgres", "":
		return repository.NewPostgresCartRepository(db, logger), nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client, err := repository.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", logging.Fields{"error": err.Error()})
		}
		repo := repository.NewMongoCartRepository(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection), logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("Failed to create cart indexes", logging.Fields{"error": err.Error()})
		}
		return repo, client
	default:
		logger.Fatal("Unknown cart backend", logging.Fields{"backend": cfg.Cart.Backend})
		return nil, nil
	}
}
