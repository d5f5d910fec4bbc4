package routes

import (
	"github.com/creatorspace/api/handlers"
	"github.com/creatorspace/api/middleware"
	"github.com/gofiber/fiber/v2"
)

func PayoutRoutes(app *fiber.App, payoutHandler *handlers.PayoutHandler, feeHandler *handlers.FeeHandler, referralHandler *handlers.ReferralHandler) {
	api := app.Group("/api/v1")

	api.Post("/payouts/webhook", payoutHandler.HandlePayoutWebhook)

	payouts := api.Group("/payouts", middleware.Protected())
	payouts.Post("/request", payoutHandler.RequestPayout)
	payouts.Get("", payoutHandler.GetMyPayouts)

	fees := api.Group("/fees", middleware.Protected())
	fees.Post("/checkout-quote", feeHandler.CheckoutQuote)
	fees.Post("/purchase-quote", feeHandler.PurchaseQuote)

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())
	admin.Get("/payouts", payoutHandler.AdminListPayouts)
	admin.Post("/referrals/:userId/complete", referralHandler.CompleteReferral)
}
