package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/taskhived/backend/internal/config"
	"github.com/taskhived/backend/internal/db"
	"github.com/taskhived/backend/internal/handlers"
	"github.com/taskhived/backend/internal/locker"
	"github.com/taskhived/backend/internal/middleware"
	"github.com/taskhived/backend/internal/models"
	"github.com/taskhived/backend/internal/realtime"
	"github.com/taskhived/backend/internal/services/checkout"
	"github.com/taskhived/backend/internal/services/ledger"
	"github.com/taskhived/backend/internal/services/pipeline"
	"github.com/taskhived/backend/internal/services/review"
	"github.com/taskhived/backend/internal/services/scoring"
	"github.com/taskhived/backend/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Transaction{},
	); err != nil {
		logger.Fatal("automigrate failed", zap.Error(err))
	}

	rdb := realtime.NewRedis(cfg.RedisAddr)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("redis not reachable", zap.Error(err))
	}

	hub := realtime.NewHub(logger)
	hub.RDB = rdb // task events fan out over pub/sub to every API node
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go realtime.RunEventBridge(ctx, rdb, hub, logger)

	// services
	scorer := scoring.NewClient(cfg.ScoringURL, cfg.ScoringAPIKey, cfg.ScoringTimeout)
	files := storage.NewLocalStore(cfg.UploadDir)
	locks := locker.NewRedisLocker(rdb)
	ledgerSvc := ledger.NewService(gdb, logger)
	ledgerSvc.Hub = hub

	pipe := pipeline.NewService(gdb, scorer, files, locks, hub, logger, cfg.QueueSize)
	pipe.UploadTimeout = cfg.UploadTimeout
	pipe.ScoringTimeout = cfg.ScoringTimeout
	pipe.ScoringRetries = cfg.ScoringRetries
	pipe.Queue.Start(ctx, cfg.ScoringWorkers)
	if _, err := pipe.Recover(ctx); err != nil {
		logger.Warn("submission recovery scan failed", zap.Error(err))
	}

	reviewSvc := review.NewService(gdb, scorer, hub, logger)
	reviewSvc.RescoreThreshold = cfg.RescoreThreshold
	reviewSvc.ScoringTimeout = cfg.ScoringTimeout

	baseURL := os.Getenv("APP_BASE_URL")
	checkoutSvc := checkout.NewService(
		cfg.CheckoutBaseURL, cfg.CheckoutAPIKey, cfg.CheckoutPrivateKey,
		cfg.CheckoutMerchantCode, baseURL+"/api/wallet/deposit/callback",
	)

	// hourly ledger -> credits reconciliation
	cr := cron.New()
	if _, err := cr.AddFunc(cfg.ReconcileSpec, func() {
		if fixed, err := ledgerSvc.Reconcile(context.Background()); err != nil {
			logger.Error("reconciliation run failed", zap.Error(err))
		} else if fixed > 0 {
			logger.Warn("reconciliation fixed drifted balances", zap.Int("fixed", fixed))
		}
	}); err != nil {
		logger.Fatal("invalid reconcile cron spec", zap.Error(err))
	}
	cr.Start()
	defer cr.Stop()

	app := fiber.New()

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendBaseURL,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	app.Static("/uploads", cfg.UploadDir)

	authH := &handlers.AuthHandler{
		DB:        gdb,
		JWTSecret: cfg.JWTSecret,
		Expires:   cfg.JWTExpiresMin,
	}
	googleH := &handlers.GoogleOAuthHandler{
		DB:              gdb,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		GoogleClientID:  cfg.GoogleClientID,
		GoogleSecret:    cfg.GoogleSecret,
		GoogleRedirect:  cfg.GoogleRedirect,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	taskH := handlers.NewTaskHandler(gdb)
	submitH := handlers.NewSubmissionHandler(pipe)
	adminH := handlers.NewAdminHandler(gdb, reviewSvc, ledgerSvc)
	walletH := handlers.NewWalletHandler(gdb, ledgerSvc, checkoutSvc)
	profileH := handlers.NewProfileHandler(gdb)
	eventsH := handlers.NewEventsHandler(hub, cfg.JWTSecret)

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/logout", authH.Logout)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)
	api.Get("/tasks", taskH.ListOpen)

	// checkout vendor webhook (authenticated by signature, not JWT)
	api.Post("/wallet/deposit/callback", walletH.DepositCallback)

	// protected (JWT cookie)
	protected := api.Group("/",
		middleware.JWTFromCookie(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/me", profileH.Me)
	protected.Post("/me/kyc", profileH.RequestKYC)
	protected.Get("/tasks/mine", taskH.ListMine)
	protected.Get("/tasks/:id", taskH.GetDetail)

	// client only
	protected.Post("/client/tasks",
		middleware.RequireRoles("client"),
		taskH.Create,
	)

	// worker only
	protected.Post("/worker/tasks/:id/claim",
		middleware.RequireRoles("worker"),
		taskH.Claim,
	)
	protected.Post("/worker/tasks/:id/submit",
		middleware.RequireRoles("worker"),
		submitH.Submit,
	)

	// wallet
	protected.Get("/wallet/balance", walletH.GetBalance)
	protected.Get("/wallet/transactions", walletH.ListTransactions)
	protected.Post("/wallet/deposit",
		middleware.RequireRoles("client"),
		walletH.Deposit,
	)
	protected.Post("/wallet/withdraw",
		middleware.RequireRoles("worker"),
		walletH.Withdraw,
	)
	protected.Patch("/wallet/payout-settings", walletH.UpdatePayoutSettings)

	// admin only
	admin := protected.Group("/admin", middleware.RequireRoles("admin"))
	admin.Get("/review-queue", adminH.ReviewQueue)
	admin.Post("/tasks/:id/approve", adminH.Approve)
	admin.Post("/tasks/:id/reject", adminH.Reject)
	admin.Post("/tasks/:id/rescore", adminH.Rescore)
	admin.Post("/tasks/:id/pay", adminH.Pay)
	admin.Post("/reconcile", adminH.Reconcile)
	admin.Patch("/users/:id/kyc", adminH.SetKYC)

	// WebSocket endpoint (JWT via query param, see EventsHandler)
	app.Get("/ws/tasks", websocket.New(eventsH.WebSocketHandler))

	logger.Info("api listening", zap.String("port", cfg.AppPort))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
