package pricing

import (
	"fmt"

	"agribalance-backend/internal/audit"
	"agribalance-backend/internal/auth"
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

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// GET /api/prices/lookup?crop=Rice&district=Mandya&date=2026-10-01
// district defaults to the caller's own district.
func (h *Handler) Lookup() fiber.Handler {
	return func(c *fiber.Ctx) error {
		crop := c.Query("crop")
		if crop == "" {
			return fiber.NewError(fiber.StatusBadRequest, "crop is required")
		}
		district := c.Query("district")
		if district == "" {
			userID, err := auth.UserID(c)
			if err != nil {
				return err
			}
			var user models.User
			if err := h.db.Select("id", "district").First(&user, userID).Error; err != nil {
				return fiber.NewError(fiber.StatusNotFound, "user not found")
			}
			district = user.District
		}

		price, err := h.svc.GetCropPrice(c.UserContext(), crop, district, c.Query("date"))
		if err != nil {
			return err
		}
		if price == nil {
			return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("no price set for %s in %s", crop, district))
		}
		return c.JSON(price)
	}
}

// GET /api/admin/prices?crop_name=&district=
func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		prices, err := h.svc.List(c.UserContext(), c.Query("crop_name"), c.Query("district"))
		if err != nil {
			return err
		}
		return c.JSON(prices)
	}
}

// POST /api/admin/prices
func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body PriceInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		p, err := h.svc.Create(c.UserContext(), body)
		if err != nil {
			return err
		}
		audit.Record(c, h.db, h.log, audit.LogOptions{
			EntityType:  audit.EntityCropPrice,
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("price set: %s in %s at %.2f/%s", p.CropName, p.District, p.PricePerUnit, p.Unit),
			After:       p,
		})
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// PUT /api/admin/prices/:id
func (h *Handler) Update() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		var body PriceInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		before, after, err := h.svc.Update(c.UserContext(), id, body)
		if err != nil {
			return err
		}
		audit.Record(c, h.db, h.log, audit.LogOptions{
			EntityType:  audit.EntityCropPrice,
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("price updated: %s in %s", after.CropName, after.District),
			Before:      before,
			After:       after,
		})
		return c.JSON(after)
	}
}

// DELETE /api/admin/prices/:id
func (h *Handler) Delete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		p, err := h.svc.Delete(c.UserContext(), id)
		if err != nil {
			return err
		}
		audit.Record(c, h.db, h.log, audit.LogOptions{
			EntityType:  audit.EntityCropPrice,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("price deleted: %s in %s", p.CropName, p.District),
			Before:      p,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}
