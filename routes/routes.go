package routes

import (
	"github.com/gofiber/fiber/v2"

	"mobileshop-backend/controllers"
	"mobileshop-backend/metrics"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
)

// Register wires all HTTP routes.
func Register(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// Public auth endpoints
	api.Post("/registration", controllers.Register)
	api.Post("/login", controllers.Login)
	api.Post("/logout", controllers.Logout)

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Idempotency guard FIRST (not tied to request TX)
	protected.Use(middlewares.Idempotency())

	// Then the per-request transaction (commits on success, rolls back on error)
	protected.Use(middlewares.RequestTx())

	owner := middlewares.RequireRole(models.RoleOwner)

	protected.Get("/me", controllers.Me)
	protected.Post("/users", owner, controllers.CreateUser)

	// Bills
	protected.Post("/bills/preview", controllers.PreviewBill)
	protected.Post("/bills", controllers.CreateBill)
	protected.Get("/bills", controllers.GetBills)
	protected.Get("/bills/export", owner, controllers.ExportBills)
	protected.Get("/bills/:id", controllers.GetBill)
	protected.Post("/bills/:id/payments", controllers.CreatePayment)
	protected.Get("/bills/:id/payments", controllers.ListPayments)

	// Service records
	protected.Post("/service-records", controllers.CreateServiceRecord)
	protected.Get("/service-records", controllers.GetServiceRecords)
	protected.Get("/service-records/lookup", controllers.LookupServiceRecord)
	protected.Get("/service-records/:serviceId", controllers.GetServiceRecord)
	protected.Patch("/service-records/:serviceId", controllers.UpdateServiceRecord)

	// Inventory
	protected.Post("/products", controllers.CreateProducts) // batch create
	protected.Get("/products", controllers.GetProducts)
	protected.Get("/products/:id", controllers.GetProduct)
	protected.Patch("/products/:id", controllers.UpdateProduct)

	// Dealers & purchases
	protected.Post("/dealers", controllers.CreateDealer)
	protected.Get("/dealers", controllers.GetDealers)
	protected.Patch("/dealers/:id", controllers.UpdateDealer)
	protected.Post("/purchases", controllers.CreatePurchase)
	protected.Get("/purchases", controllers.GetPurchases)
	protected.Get("/purchases/:id", controllers.GetPurchase)

	// Customers
	protected.Post("/customers", controllers.CreateCustomer)
	protected.Get("/customers", controllers.GetCustomers)
	protected.Get("/customers/:phone", controllers.GetCustomer)
	protected.Patch("/customers/:phone", controllers.UpdateCustomer)

	protected.Get("/dashboard", owner, controllers.GetDashboard)
}
