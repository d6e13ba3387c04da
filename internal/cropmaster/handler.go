package cropmaster

import (
	"fmt"

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

// POST /api/admin/crop-master
func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		m, err := h.svc.Create(c.UserContext(), body)
		if err != nil {
			return err
		}
		audit.Record(c, h.db, h.log, audit.LogOptions{
			EntityType:  audit.EntityCropMaster,
			EntityID:    m.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("crop added: %s", m.CropName),
			After:       m,
		})
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}

// GET /api/admin/crop-master?active=true
func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		crops, err := h.svc.List(c.UserContext(), c.QueryBool("active"))
		if err != nil {
			return err
		}
		return c.JSON(crops)
	}
}
