package audit

import (
	"agribalance-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GET /api/admin/audit-logs?entity_type=admin_quota&entity_id=1&user_id=2&limit=50
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logs, err := List(db, ListFilter{
			EntityType: c.Query("entity_type"),
			EntityID:   uint(c.QueryInt("entity_id")),
			UserID:     uint(c.QueryInt("user_id")),
			Limit:      c.QueryInt("limit", 100),
		})
		if err != nil {
			return err
		}
		return c.JSON(logs)
	}
}

// Record writes an audit entry for the authenticated admin. It runs after the
// change has committed, so failures are logged and swallowed.
func Record(c *fiber.Ctx, db *gorm.DB, log *zap.Logger, opts LogOptions) {
	userID, userName, err := auth.Actor(c, db)
	if err != nil {
		log.Warn("audit actor lookup failed", zap.Error(err))
		return
	}
	opts.UserID = userID
	opts.UserName = userName
	if err := WriteLog(db, opts); err != nil {
		log.Warn("audit write failed",
			zap.String("entity", opts.EntityType),
			zap.Uint("entity_id", opts.EntityID),
			zap.Error(err))
	}
}
