package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/robfig/cron/v3"

	"github.com/Ahmed3117/silverbook/internal/core/fulfillment"
	"github.com/Ahmed3117/silverbook/internal/core/jobs"
	"github.com/Ahmed3117/silverbook/internal/core/notification"
	"github.com/Ahmed3117/silverbook/internal/core/payment"
	"github.com/Ahmed3117/silverbook/internal/handlers"
	"github.com/Ahmed3117/silverbook/internal/repositories"
	"github.com/Ahmed3117/silverbook/internal/services"
	"github.com/Ahmed3117/silverbook/internal/shared/config"
	"github.com/Ahmed3117/silverbook/internal/shared/database"
	"github.com/Ahmed3117/silverbook/internal/shared/utils"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	utils.InitLogger()
	log.Printf("🚀 Starting order engine on port %s", cfg.Port)

	// Init database
	db := database.NewDB(cfg.DatabaseURL)
	defer db.Close()

	// Init repositories (use GORM instance)
	txManager := repositories.NewTxManager(db.GORM)
	orderRepo := repositories.NewOrderRepo(db.GORM)
	inventoryRepo := repositories.NewInventoryRepo(db.GORM)
	statusLogRepo := repositories.NewStatusLogRepo(db.GORM)
	pricingRepo := repositories.NewPricingRepo(db.GORM)

	// Init external clients
	var fulfillmentClient fulfillment.Client
	if cfg.KhazenlyBaseURL != "" {
		fulfillmentClient = fulfillment.NewKhazenlyClient(cfg.KhazenlyBaseURL, cfg.KhazenlyClientID, cfg.KhazenlySecret, cfg.KhazenlyRefreshToken, cfg.KhazenlyStoreName)
		log.Printf("📦 Khazenly fulfillment enabled (%s)", cfg.KhazenlyBaseURL)
	} else {
		log.Printf("⚠️  Khazenly fulfillment not configured")
	}

	var notifier notification.Sender
	if cfg.SMSAPIURL != "" || cfg.WhatsAppAPIURL != "" {
		notifier = notification.NewHTTPSender(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey)
	}

	// Fulfillment retry queue, optional
	var retryQueue services.FulfillmentQueue
	var jobQueue *jobs.Queue
	if cfg.FulfillmentRetry {
		jobQueue = jobs.NewQueue(db.GORM)
		retryQueue = jobQueue
		log.Printf("🔁 Fulfillment retry queue enabled")
	}

	// Init services
	priceService := services.NewPriceService(pricingRepo)
	orderService := services.NewOrderService(txManager, orderRepo, inventoryRepo, statusLogRepo, priceService, fulfillmentClient, notifier, retryQueue)
	couponService := services.NewCouponService(pricingRepo, orderRepo, priceService)
	paymentService := payment.NewServiceFromConfig(cfg, orderRepo, priceService)
	reconcileService := services.NewReconcileService(orderRepo, paymentService, orderService)
	log.Printf("💳 Active payment method: %s", cfg.ActivePaymentMethod)

	// Job worker for fulfillment retries
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if jobQueue != nil {
		worker := jobs.NewWorker(jobQueue, "fulfillment", 0)
		worker.Register(services.NewFulfillmentRetryHandler(orderService))
		go worker.Start(workerCtx)
	}

	// Scheduled sweeps: payment reconciliation every 15 minutes, job
	// retention cleanup daily.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("*/15 * * * *", func() {
		reconcileService.Sweep(context.Background())
	}); err != nil {
		log.Fatalf("Failed to schedule reconciliation sweep: %v", err)
	}
	if jobQueue != nil {
		if _, err := scheduler.AddFunc("30 3 * * *", func() {
			if n, err := jobQueue.DeleteOld(context.Background(), 7*24*time.Hour); err == nil && n > 0 {
				log.Printf("🧹 Removed %d finished jobs", n)
			}
		}); err != nil {
			log.Fatalf("Failed to schedule job cleanup: %v", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Init handlers
	orderHandler := handlers.NewOrderHandler(orderService, priceService, orderRepo, statusLogRepo)
	paymentHandler := handlers.NewPaymentHandler(paymentService, orderRepo)
	couponHandler := handlers.NewCouponHandler(couponService)
	pricingHandler := handlers.NewPricingHandler(pricingRepo)
	webhookHandler := handlers.NewWebhookHandler(paymentService, orderService, orderRepo)

	// Init Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Silverbook Order Engine",
	})

	// Middleware
	app.Use(cors.New())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Order routes
	app.Post("/orders", orderHandler.Create)
	app.Get("/orders/number/:number", orderHandler.GetByNumber)
	app.Get("/orders/:id", orderHandler.Get)
	app.Get("/orders/:id/price", orderHandler.Price)
	app.Patch("/orders/:id/status", orderHandler.Transition)
	app.Get("/orders/:id/status-log", orderHandler.StatusLog)

	// Payment routes
	app.Post("/orders/:id/invoice", paymentHandler.CreateInvoice)
	app.Get("/orders/:id/invoice", paymentHandler.CheckStatus)

	// Coupon and pricing routes
	app.Post("/coupons", couponHandler.Create)
	app.Post("/orders/:id/coupon", couponHandler.Redeem)
	app.Post("/over-tax/:id/activate", pricingHandler.ActivateOverTax)

	// Payment webhook routes
	app.Post("/webhooks/shakeout", webhookHandler.Shakeout)
	app.Post("/webhooks/easypay", webhookHandler.Easypay)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	log.Fatal(app.Listen(":" + port))
}
