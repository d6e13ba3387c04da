package quota

import (
	"fmt"
	"time"

	"agribalance-backend/internal/audit"
	"agribalance-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	svc *Service
	db  *gorm.DB
	log *zap.Logger
}

func NewHandler(svc *Service, db *gorm.DB, log *zap.Logger) *Handler {
	return &Handler{svc: svc, db: db, log: log}
}

func (h *Handler) writeAudit(c *fiber.Ctx, entity string, id uint, action models.AuditAction, desc string, before, after any) {
	audit.Record(c, h.db, h.log, audit.LogOptions{
		EntityType:  entity,
		EntityID:    id,
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// POST /api/admin/quotas
func (h *Handler) CreateQuota() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body QuotaInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		q, err := h.svc.CreateQuota(c.UserContext(), body)
		if err != nil {
			return err
		}
		h.writeAudit(c, audit.EntityAdminQuota, q.ID, models.AuditActionCreate,
			fmt.Sprintf("quota created: %s, %.2f %s", q.CropName, q.TotalAllowedArea, unitOf(*q)), nil, q)
		return c.Status(fiber.StatusCreated).JSON(q)
	}
}

// GET /api/admin/quotas?crop_name=&district=&active=true
func (h *Handler) ListQuotas() fiber.Handler {
	return func(c *fiber.Ctx) error {
		quotas, err := h.svc.ListQuotas(c.UserContext(), QuotaFilter{
			CropName:   c.Query("crop_name"),
			District:   c.Query("district"),
			ActiveOnly: c.QueryBool("active"),
		})
		if err != nil {
			return err
		}
		return c.JSON(quotas)
	}
}

// GET /api/admin/quotas/:id
func (h *Handler) GetQuota() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		q, err := h.svc.GetQuota(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(q)
	}
}

// PUT /api/admin/quotas/:id
func (h *Handler) UpdateQuota() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		var body QuotaInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		before, after, err := h.svc.UpdateQuota(c.UserContext(), id, body)
		if err != nil {
			return err
		}
		h.writeAudit(c, audit.EntityAdminQuota, id, models.AuditActionUpdate,
			fmt.Sprintf("quota updated: %s", after.CropName), before, after)
		return c.JSON(after)
	}
}

// DELETE /api/admin/quotas/:id
func (h *Handler) DeleteQuota() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		q, err := h.svc.DeleteQuota(c.UserContext(), id)
		if err != nil {
			return err
		}
		h.writeAudit(c, audit.EntityAdminQuota, id, models.AuditActionDelete,
			fmt.Sprintf("quota deleted: %s", q.CropName), q, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/admin/quotas/utilization
func (h *Handler) Utilization() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := h.svc.Utilization(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/admin/quotas/export
func (h *Handler) ExportUtilization() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := h.svc.Utilization(c.UserContext())
		if err != nil {
			return err
		}
		buf, err := ExportUtilizationXLSX(rows)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("quota-utilization-%s.xlsx", time.Now().Format("20060102"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
		return c.Send(buf.Bytes())
	}
}

// POST /api/admin/region-limits
func (h *Handler) CreateRegionLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegionLimitInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		l, err := h.svc.CreateRegionLimit(c.UserContext(), body)
		if err != nil {
			return err
		}
		h.writeAudit(c, audit.EntityRegionLimit, l.ID, models.AuditActionCreate,
			fmt.Sprintf("region limit created: %s in %s", l.CropName, l.District), nil, l)
		return c.Status(fiber.StatusCreated).JSON(l)
	}
}

// GET /api/admin/region-limits
func (h *Handler) ListRegionLimits() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limits, err := h.svc.ListRegionLimits(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(limits)
	}
}

// PUT /api/admin/region-limits/:id
func (h *Handler) UpdateRegionLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		var body RegionLimitInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		before, after, err := h.svc.UpdateRegionLimit(c.UserContext(), id, body)
		if err != nil {
			return err
		}
		h.writeAudit(c, audit.EntityRegionLimit, id, models.AuditActionUpdate,
			fmt.Sprintf("region limit updated: %s in %s", after.CropName, after.District), before, after)
		return c.JSON(after)
	}
}

// DELETE /api/admin/region-limits/:id
func (h *Handler) DeleteRegionLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		l, err := h.svc.DeleteRegionLimit(c.UserContext(), id)
		if err != nil {
			return err
		}
		h.writeAudit(c, audit.EntityRegionLimit, id, models.AuditActionDelete,
			fmt.Sprintf("region limit deleted: %s in %s", l.CropName, l.District), l, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
