// Package server assembles the fiber application: error mapping, middleware
// and the /api route table.
package server

import (
	"errors"
	"strings"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/audit"
	"agribalance-backend/internal/auth"
	"agribalance-backend/internal/config"
	"agribalance-backend/internal/cropmaster"
	"agribalance-backend/internal/cultivation"
	"agribalance-backend/internal/harvest"
	"agribalance-backend/internal/land"
	"agribalance-backend/internal/metrics"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/notify"
	"agribalance-backend/internal/pricing"
	"agribalance-backend/internal/quota"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrorHandler renders business rejections as {"error", "kind"} with their
// mapped status. Anything unrecognised is logged and hidden behind a 500.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := apperror.As(err); ok {
			return c.Status(apperror.StatusCode(e.Kind)).JSON(fiber.Map{
				"error": e.Reason,
				"kind":  e.Kind,
			})
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fe.Message,
			})
		}
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("route", c.Route().Path),
			zap.Any("request_id", c.Locals(requestid.ConfigDefault.ContextKey)),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "unexpected server error",
		})
	}
}

func New(cfg *config.Config, db *gorm.DB, log *zap.Logger, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(m.Middleware())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	notifications := notify.NewStore(db, log)
	quotaSvc := quota.NewService(db, log)
	priceSvc := pricing.NewService(db, log)

	authH := auth.NewHandler(db, cfg.JWTSecret, log)
	landH := land.NewHandler(land.NewService(db, log))
	cropH := cropmaster.NewHandler(cropmaster.NewService(db, log), db, log)
	quotaH := quota.NewHandler(quotaSvc, db, log)
	priceH := pricing.NewHandler(priceSvc, db, log)
	cultSvc := cultivation.NewService(db, log, notifications, cfg.HarvestTolerance).WithMetrics(m)
	harvestSvc := harvest.NewService(db, log, notifications, cfg.HarvestTolerance, cfg.SaleQuantityTolerance).WithMetrics(m)
	cultH := cultivation.NewHandler(cultSvc)
	harvestH := harvest.NewHandler(harvestSvc, db, log)

	app.Get("/metrics", m.Handler())

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", authH.RegisterAdmin())
	api.Post("/auth/register", authH.RegisterFarmer())
	api.Post("/auth/login", authH.Login())

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", authH.Me())
	protected.Get("/notifications", notify.ListHandler(notifications))
	protected.Post("/notifications/:id/read", notify.MarkReadHandler(notifications))
	protected.Get("/prices/lookup", priceH.Lookup())
	protected.Get("/listings", harvestH.Marketplace())

	// Farmer routes share the /api prefix, so the role check is per route
	// rather than a group middleware.
	farmer := auth.RequireRole(models.RoleFarmer)

	protected.Post("/lands", farmer, landH.Create())
	protected.Get("/lands", farmer, landH.List())
	protected.Get("/lands/:id", farmer, landH.Get())

	protected.Post("/cultivations", farmer, cultH.Start())
	protected.Get("/cultivations", farmer, cultH.List())
	protected.Get("/cultivations/:id", farmer, cultH.Get())
	protected.Post("/cultivations/:id/activate", farmer, cultH.Activate())
	protected.Post("/cultivations/:id/fail", farmer, cultH.Fail())
	protected.Post("/cultivations/:id/cancel", farmer, cultH.Cancel())
	protected.Post("/cultivations/:id/harvest", farmer, harvestH.SubmitHarvest())
	protected.Post("/cultivations/:id/sale", farmer, harvestH.SubmitSale())

	protected.Get("/harvest-sales", farmer, harvestH.MySales())
	protected.Post("/harvest-sales/:id/listings", farmer, harvestH.CreateListing())
	protected.Get("/listings/mine", farmer, harvestH.MyListings())
	protected.Post("/listings/:id/sold", farmer, harvestH.MarkSold())

	admin := protected.Group("/admin")
	admin.Use(auth.RequireRole(models.RoleAdmin))

	// Static quota paths go before /quotas/:id.
	admin.Get("/quotas/utilization", quotaH.Utilization())
	admin.Get("/quotas/export", quotaH.ExportUtilization())
	admin.Post("/quotas", quotaH.CreateQuota())
	admin.Get("/quotas", quotaH.ListQuotas())
	admin.Get("/quotas/:id", quotaH.GetQuota())
	admin.Put("/quotas/:id", quotaH.UpdateQuota())
	admin.Delete("/quotas/:id", quotaH.DeleteQuota())

	admin.Post("/region-limits", quotaH.CreateRegionLimit())
	admin.Get("/region-limits", quotaH.ListRegionLimits())
	admin.Put("/region-limits/:id", quotaH.UpdateRegionLimit())
	admin.Delete("/region-limits/:id", quotaH.DeleteRegionLimit())

	admin.Post("/prices", priceH.Create())
	admin.Get("/prices", priceH.List())
	admin.Put("/prices/:id", priceH.Update())
	admin.Delete("/prices/:id", priceH.Delete())

	admin.Post("/crop-master", cropH.Create())
	admin.Get("/crop-master", cropH.List())

	admin.Get("/harvest-sales", harvestH.ListSales())
	admin.Post("/harvest-sales/:id/approve", harvestH.Approve())
	admin.Post("/harvest-sales/:id/reject", harvestH.Reject())

	admin.Get("/audit-logs", audit.ListAuditLogsHandler(db))

	return app
}
