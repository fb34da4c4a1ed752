package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/config"
	"github.com/printhaus/printhaus-api/controllers"
	"github.com/printhaus/printhaus-api/middleware"
	"github.com/printhaus/printhaus-api/models"
	"github.com/printhaus/printhaus-api/services"
	"github.com/robfig/cron/v3"
)

func main() {
	log.Println("Starting Printhaus API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Order{},
		&models.PrintJob{},
		&models.Printer{},
		&models.PrintActionLog{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	if _, err := services.InitS3Service(); err != nil {
		log.Printf("S3 service unavailable, document storage disabled: %v", err)
	}

	// Wire the lifecycle services. The dispatcher and the reconciliation
	// loop observe store state on their own schedule; the payment service is
	// the shared confirmation path for webhooks and reconciliation.
	notifier := services.GetNotificationService()
	payments := services.InitPaymentService(db, notifier)
	dispatcher := services.InitDispatchService(db, notifier,
		time.Duration(cfg.HeartbeatIntervalSeconds)*time.Second)
	payments.AttachDispatcher(dispatcher)
	gateway := services.NewPaymentGatewayService(cfg)
	reconciler := services.InitReconciliationService(db, gateway, payments, notifier)

	dispatcher.Start(time.Duration(cfg.DispatchIntervalSeconds) * time.Second)

	scheduler := startScheduler(cfg, reconciler)
	defer scheduler.Stop()
	defer dispatcher.Stop()

	router := setupRouter(cfg)

	addr := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// startScheduler registers the recurring payment sweeps. Each job body is
// bounded by a timeout shorter than its period.
func startScheduler(cfg *config.Config, reconciler *services.ReconciliationService) *cron.Cron {
	scheduler := cron.New()

	// Payment reconciliation - every 5 minutes
	if _, err := scheduler.AddFunc("*/5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()

		summary, err := reconciler.Reconcile(ctx,
			time.Duration(cfg.ReconcileMinAgeMinutes)*time.Minute)
		if err != nil {
			log.Printf("[CRON] Reconciliation pass failed: %v", err)
			return
		}
		if summary.Checked > 0 {
			log.Printf("[CRON] Reconciled %d orders: %d recovered, %d expired",
				summary.Checked, summary.MarkedPaid, summary.Expired)
		}
	}); err != nil {
		log.Printf("Failed to register reconciliation job: %v", err)
	}

	// Unpaid-order reminders - hourly
	if _, err := scheduler.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		sent, err := reconciler.SendPaymentReminders(ctx)
		if err != nil {
			log.Printf("[CRON] Payment reminder sweep failed: %v", err)
			return
		}
		if sent > 0 {
			log.Printf("[CRON] Sent %d payment reminders", sent)
		}
	}); err != nil {
		log.Printf("Failed to register reminder job: %v", err)
	}

	// Unpaid-order expiry - hourly, offset from the reminder sweep
	if _, err := scheduler.AddFunc("30 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		expired, err := reconciler.ExpireUnpaidOrders(ctx)
		if err != nil {
			log.Printf("[CRON] Expiry sweep failed: %v", err)
			return
		}
		if expired > 0 {
			log.Printf("[CRON] Expired %d unpaid orders", expired)
		}
	}); err != nil {
		log.Printf("Failed to register expiry job: %v", err)
	}

	scheduler.Start()
	return scheduler
}

// setupRouter configures all API routes
func setupRouter(cfg *config.Config) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)

		// Payment gateway push path; authenticated by gateway signature
		// checking at the edge, not by user JWTs.
		v1.POST("/webhooks/payment", controllers.HandlePaymentWebhook)

		// Print-worker report surface.
		worker := v1.Group("/worker")
		{
			worker.POST("/jobs/:id/heartbeat", controllers.WorkerHeartbeat)
			worker.POST("/jobs/:id/complete", controllers.WorkerCompleteJob)
			worker.POST("/jobs/:id/fail", controllers.WorkerFailJob)
			worker.GET("/jobs/:id/document", controllers.WorkerJobDocument)
			worker.POST("/printers/:id/ready", controllers.WorkerPrinterReady)
			worker.POST("/printers/:id/offline", controllers.WorkerPrinterOffline)
		}

		authed := v1.Group("")
		authed.Use(middleware.EnsureValidToken(cfg))
		{
			authed.POST("/orders", controllers.CreateOrder)
			authed.GET("/orders", controllers.ListOrders)
			authed.GET("/orders/:id", controllers.GetOrder)
			authed.POST("/orders/:id/submit", controllers.SubmitOrder)
			authed.DELETE("/orders/:id", controllers.DeleteOrder)

			admin := authed.Group("/admin", middleware.RequireRole("operator"))
			{
				admin.POST("/orders/:id/print/reprint", controllers.ReprintOrder)
				admin.POST("/orders/:id/print/reset", controllers.ResetPrinting)
				admin.POST("/orders/:id/print/force-printed", controllers.ForcePrinted)
				admin.POST("/orders/:id/print/remove", controllers.RemoveFromQueue)
				admin.POST("/orders/:id/state", controllers.OverrideOrderState)
				admin.GET("/orders/:id/print/actions", controllers.ListPrintActions)

				admin.POST("/dispatcher/start", controllers.StartDispatcher)
				admin.POST("/dispatcher/stop", controllers.StopDispatcher)
				admin.POST("/dispatcher/trigger", controllers.TriggerDispatcher)
				admin.GET("/dispatcher/status", controllers.DispatcherStatus)

				admin.POST("/reconcile", controllers.TriggerReconciliation)

				admin.POST("/printers", controllers.RegisterPrinter)
				admin.GET("/printers", controllers.ListPrinters)
				admin.PUT("/printers/:id", controllers.UpdatePrinter)
				admin.DELETE("/printers/:id", controllers.DeactivatePrinter)
			}
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Printhaus API is running",
	})
}
