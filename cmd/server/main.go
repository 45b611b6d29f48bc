package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sokocap/soko-backoffice/internal/ledger"
	"github.com/sokocap/soko-backoffice/internal/marketdata"
	"github.com/sokocap/soko-backoffice/internal/notify"
	"github.com/sokocap/soko-backoffice/internal/payments"
	"github.com/sokocap/soko-backoffice/internal/portfolio"
	"github.com/sokocap/soko-backoffice/internal/registry"
	"github.com/sokocap/soko-backoffice/internal/trading"
	"github.com/sokocap/soko-backoffice/internal/wallet"
	"github.com/sokocap/soko-backoffice/pkg/config"
	"github.com/sokocap/soko-backoffice/pkg/database"
	"github.com/sokocap/soko-backoffice/pkg/events"
	"github.com/sokocap/soko-backoffice/pkg/logger"
	"github.com/sokocap/soko-backoffice/pkg/metrics"
	"github.com/sokocap/soko-backoffice/pkg/middleware"
	"github.com/sokocap/soko-backoffice/pkg/response"
)

const serviceName = "soko-backoffice"

func main() {
	_ = godotenv.Load()

	logger.Init(serviceName, getEnvOrDefault("LOG_LEVEL", "info"), os.Getenv("LOG_PRETTY") == "true")
	logger.Info().Msg("Starting SokoCap Back Office")

	cfg, err := config.Load("config")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	// Persistence. SOKO_STORE=memory runs without Postgres for local work.
	var store ledger.Store
	if os.Getenv("SOKO_STORE") == "memory" {
		logger.Warn().Msg("Using in-memory store, all state is lost on restart")
		store = ledger.NewMemoryStore()
	} else {
		pool, err := database.NewPool(ctx, &database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Str("host", cfg.Database.Host).Msg("Connected to database")
		store = ledger.NewPostgresStore(pool)
	}

	// Redis quote cache
	var quoteCache *marketdata.Cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, quotes are served uncached")
	} else {
		quoteCache = marketdata.NewCache(redisClient, time.Duration(cfg.MarketData.CacheTTLSec)*time.Second)
		defer redisClient.Close()
	}

	// Kafka publisher
	var publisher events.Publisher
	if brokers := cfg.Kafka.Brokers; len(brokers) > 0 && brokers[0] != "" {
		publisher = events.NewKafkaPublisher(brokers)
		defer publisher.Close()
		logger.Info().Strs("brokers", brokers).Msg("Connected to Kafka")
	} else {
		logger.Warn().Msg("Kafka not configured, events will not be published")
	}

	// SMS client
	var sms notify.SMSSender
	if cfg.SMS.APIKey != "" {
		sms = notify.NewSMSClient(notify.SMSConfig{
			APIKey:   cfg.SMS.APIKey,
			Username: cfg.SMS.Username,
			Sender:   cfg.SMS.Sender,
			Sandbox:  cfg.SMS.Sandbox,
		})
	} else {
		logger.Warn().Msg("SMS not configured, confirmations are logged only")
	}

	dispatcher := notify.NewDispatcher(publisher, sms, notify.NewLedgerPhones(store), serviceName)

	// Mobile money gateway
	var gateway payments.Gateway
	if cfg.Mpesa.ConsumerKey != "" {
		gateway = payments.NewDarajaClient(payments.DarajaConfig{
			ConsumerKey:        cfg.Mpesa.ConsumerKey,
			ConsumerSecret:     cfg.Mpesa.ConsumerSecret,
			PassKey:            cfg.Mpesa.PassKey,
			ShortCode:          cfg.Mpesa.ShortCode,
			CallbackURL:        cfg.Payments.CallbackURL + "/callbacks/mpesa/stk",
			ResultURL:          cfg.Payments.CallbackURL + "/callbacks/mpesa/b2c",
			QueueTimeoutURL:    cfg.Payments.CallbackURL + "/callbacks/mpesa/b2c",
			InitiatorName:      cfg.Mpesa.InitiatorName,
			SecurityCredential: cfg.Mpesa.SecurityCredential,
			Sandbox:            cfg.Mpesa.Sandbox,
		})
		logger.Info().Bool("sandbox", cfg.Mpesa.Sandbox).Msg("Connected to Daraja")
	} else {
		logger.Warn().Msg("Using mock payment gateway (no Daraja credentials configured)")
		gateway = payments.NewMockGateway()
	}

	feeRate, err := decimal.NewFromString(cfg.Trading.FeeRate)
	if err != nil {
		logger.Fatal().Err(err).Str("fee_rate", cfg.Trading.FeeRate).Msg("Invalid trading fee rate")
	}

	// Services
	walletSvc := wallet.NewService(store)
	portfolioSvc := portfolio.NewService(store)
	registrySvc := registry.NewService(store)
	engine := trading.NewEngine(store, trading.Config{
		FeeRate:     feeRate,
		LotSize:     cfg.Trading.LotSize,
		UnitTimeout: time.Duration(cfg.Trading.UnitTimeoutSec) * time.Second,
	}, dispatcher)
	paymentsSvc := payments.NewService(store, gateway, dispatcher, payments.Config{
		MinAmount: cfg.Payments.MinDeposit,
		MaxAmount: cfg.Payments.MaxDeposit,
	})

	// Market data scraper
	var scraper *marketdata.Scraper
	scrapeCtx, stopScraper := context.WithCancel(ctx)
	defer stopScraper()
	if cfg.MarketData.SourceURL != "" {
		scraper = marketdata.NewScraper(store, quoteCache, cfg.MarketData.SourceURL,
			time.Duration(cfg.MarketData.IntervalSec)*time.Second)
		go scraper.Run(scrapeCtx)
		logger.Info().Str("source", cfg.MarketData.SourceURL).Msg("Market data scraper started")
	} else {
		logger.Warn().Msg("Market data source not configured, scraper disabled")
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "SokoCap Back Office",
		ErrorHandler: response.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(middleware.SecurityHeaders())
	app.Use(metrics.Middleware("/health", "/metrics"))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": serviceName})
	})
	app.Get("/metrics", metrics.Handler())

	paymentsHandler := payments.NewHandler(paymentsSvc)
	registryHandler := registry.NewHandler(registrySvc)
	marketdataHandler := marketdata.NewHandler(quoteCache, registrySvc, scraper)

	// Provider callbacks carry no user credentials
	paymentsHandler.RegisterCallbackRoutes(app)

	api := app.Group("/api/v1", middleware.Auth(cfg.Auth.JWTSecret))
	trading.NewHandler(engine).RegisterRoutes(api)
	wallet.NewHandler(walletSvc).RegisterRoutes(api)
	portfolio.NewHandler(portfolioSvc).RegisterRoutes(api)
	paymentsHandler.RegisterRoutes(api)
	registryHandler.RegisterRoutes(api)
	marketdataHandler.RegisterRoutes(api)

	admin := api.Group("/admin", middleware.RequireRole("admin"))
	registryHandler.RegisterAdminRoutes(admin)
	marketdataHandler.RegisterAdminRoutes(admin)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	logger.Info().Str("addr", addr).Msg("SokoCap Back Office started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down")
	stopScraper()
	if err := app.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
