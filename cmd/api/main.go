package main

import (
	"log"
	"time"

	config "github.com/creatorspace/api/configs"
	"github.com/creatorspace/api/database"
	"github.com/creatorspace/api/handlers"
	"github.com/creatorspace/api/jobs"
	"github.com/creatorspace/api/payments"
	"github.com/creatorspace/api/routes"
	"github.com/creatorspace/api/services"
	"github.com/creatorspace/api/taxes"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedAdmin()

	feeSchedule := config.LoadFeeSchedule()

	paypalClient := payments.NewPayPalClient()
	taxClient := taxes.NewClient()
	store := database.NewPayoutStore(database.DB)

	feeCalculator := services.NewFeeCalculator(feeSchedule, taxClient)
	payoutService := services.NewPayoutService(store, paypalClient, feeCalculator, feeSchedule, 15*time.Second)
	webhookService := services.NewWebhookService(store)

	payoutHandler := handlers.NewPayoutHandler(payoutService, webhookService, paypalClient)
	feeHandler := handlers.NewFeeHandler(feeCalculator)
	referralHandler := handlers.NewReferralHandler(services.NewReferralService(database.DB, feeCalculator))

	payoutJob := jobs.NewAutomaticPayoutJob(payoutService)
	c := cron.New()
	c.AddFunc("@hourly", payoutJob.Run)
	go c.Start()
	log.Println("✅ Cron job for automatic payouts scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Creatorspace",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.PayoutRoutes(app, payoutHandler, feeHandler, referralHandler)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
