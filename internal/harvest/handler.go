package harvest

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

func userAndID(c *fiber.Ctx) (uint, uint, error) {
	userID, err := auth.UserID(c)
	if err != nil {
		return 0, 0, err
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return userID, uint(id), nil
}

// POST /api/cultivations/:id/harvest
func (h *Handler) SubmitHarvest() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := userAndID(c)
		if err != nil {
			return err
		}
		var body HarvestInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		cult, err := h.svc.SubmitHarvest(c.UserContext(), userID, id, body)
		if err != nil {
			return err
		}
		return c.JSON(cult)
	}
}

// POST /api/cultivations/:id/sale
func (h *Handler) SubmitSale() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := userAndID(c)
		if err != nil {
			return err
		}
		var body SaleInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		sale, err := h.svc.SubmitSale(c.UserContext(), userID, id, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(sale)
	}
}

// GET /api/harvest-sales
func (h *Handler) MySales() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		sales, err := h.svc.FarmerSales(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(sales)
	}
}

// GET /api/admin/harvest-sales?status=pending
func (h *Handler) ListSales() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sales, err := h.svc.ListSales(c.UserContext(), c.Query("status"))
		if err != nil {
			return err
		}
		return c.JSON(sales)
	}
}

// POST /api/admin/harvest-sales/:id/approve
func (h *Handler) Approve() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminID, id, err := userAndID(c)
		if err != nil {
			return err
		}
		var body ReviewInput
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		before, after, err := h.svc.Approve(c.UserContext(), adminID, id, body)
		if err != nil {
			return err
		}
		audit.Record(c, h.db, h.log, audit.LogOptions{
			EntityType:  audit.EntityHarvestSale,
			EntityID:    id,
			Action:      models.AuditActionReview,
			Description: fmt.Sprintf("harvest sale approved: %.2f %s", *after.ApprovedQuantity, after.YieldUnit),
			Before:      before,
			After:       after,
		})
		return c.JSON(after)
	}
}

// POST /api/admin/harvest-sales/:id/reject
func (h *Handler) Reject() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminID, id, err := userAndID(c)
		if err != nil {
			return err
		}
		var body ReviewInput
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		before, after, err := h.svc.Reject(c.UserContext(), adminID, id, body)
		if err != nil {
			return err
		}
		audit.Record(c, h.db, h.log, audit.LogOptions{
			EntityType:  audit.EntityHarvestSale,
			EntityID:    id,
			Action:      models.AuditActionReview,
			Description: "harvest sale rejected: " + after.AdminNotes,
			Before:      before,
			After:       after,
		})
		return c.JSON(after)
	}
}

// POST /api/harvest-sales/:id/listings
func (h *Handler) CreateListing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := userAndID(c)
		if err != nil {
			return err
		}
		var body ListingInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		listing, err := h.svc.CreateListing(c.UserContext(), userID, id, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(listing)
	}
}

// GET /api/listings?crop=Rice
func (h *Handler) Marketplace() fiber.Handler {
	return func(c *fiber.Ctx) error {
		listings, err := h.svc.Marketplace(c.UserContext(), c.Query("crop"))
		if err != nil {
			return err
		}
		return c.JSON(listings)
	}
}

// GET /api/listings/mine
func (h *Handler) MyListings() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		listings, err := h.svc.FarmerListings(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(listings)
	}
}

// POST /api/listings/:id/sold
func (h *Handler) MarkSold() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := userAndID(c)
		if err != nil {
			return err
		}
		listing, err := h.svc.MarkSold(c.UserContext(), userID, id)
		if err != nil {
			return err
		}
		return c.JSON(listing)
	}
}
