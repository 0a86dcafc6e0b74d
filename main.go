package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"prize-escrow/handlers"
	"prize-escrow/middleware"
	"prize-escrow/models"
	"prize-escrow/services"
	"prize-escrow/utils"
	"prize-escrow/workers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger, err := utils.NewLogger()
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	defer func() { _ = logger.Sync() }()

	if !common.IsHexAddress(cfg.CustodyAddress) {
		logger.Fatal("ESCROW_CUSTODY_ADDRESS is not a valid address", zap.String("value", cfg.CustodyAddress))
	}
	operators, err := services.ParseOperatorSet(cfg.Operators)
	if err != nil {
		logger.Fatal("invalid ESCROW_OPERATORS", zap.Error(err))
	}
	if len(operators) == 0 {
		logger.Warn("⚠️  ESCROW_OPERATORS is empty, privileged operations will be rejected")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store services.ArtifactStore
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Store(ctx, cfg.R2)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		store = r2
	} else {
		logger.Warn("⚠️  R2 not configured, commitment documents stay in the database only")
	}

	custody := services.NewCustodyService(db, common.HexToAddress(cfg.CustodyAddress), logger)
	escrow := services.NewEscrowService(db, custody, operators, clockwork.NewRealClock(), services.Policy{
		AllowFreeRegistration: cfg.AllowFreeRegistration,
	}, logger)
	commitments := services.NewCommitmentService(db, store, cfg.ProofWorkers, logger)
	defer commitments.Close()

	// Outbox relay to redis
	if cfg.RedisAddr != "" {
		streams, err := utils.NewStreamClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StreamMaxLen, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer streams.Close()

		relay := workers.NewNotificationRelay(db, streams, cfg.NotifyStream, cfg.RelayBatchSize, logger)
		if err := relay.Start(ctx, cfg.RelayInterval); err != nil {
			logger.Fatal("failed to start notification relay", zap.Error(err))
		}
		defer relay.Stop()
	} else {
		logger.Warn("⚠️  REDIS_ADDR not set, notifications stay in the outbox")
	}

	// Custody deposits
	if cfg.DepositSyncURL != "" {
		if cfg.DepositSyncToken == "" {
			logger.Fatal("DEPOSIT_SYNC_TOKEN is required when DEPOSIT_SYNC_URL is set")
		}
		syncer := workers.NewDepositSyncer(workers.NewDepositSyncClient(cfg.DepositSyncURL, cfg.DepositSyncToken), custody, logger)
		go syncer.Poll(ctx, cfg.DepositSyncInterval)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:  "GET,POST,OPTIONS,HEAD",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, Last-Event-ID, " + middleware.CallerHeader,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
		MaxAge:        86400,
	}))

	handlers.SetupEscrowRoutes(app, &handlers.EscrowHandler{
		Escrow:      escrow,
		Commitments: commitments,
		Custody:     custody,
		Auth:        operators,
		Logger:      logger,
	}, []byte(cfg.CallerTokenSecret))

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("Server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("✅ Server running",
		zap.String("port", cfg.Port),
		zap.Int("operators", len(operators)),
		zap.Strings("origins", cfg.AllowedOrigins))

	<-ctx.Done()
	logger.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
