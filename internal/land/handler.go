package land

import (
	"agribalance-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// POST /api/lands
func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		l, err := h.svc.Create(c.UserContext(), userID, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(l)
	}
}

// GET /api/lands
func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		lands, err := h.svc.List(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(lands)
	}
}

// GET /api/lands/:id
func (h *Handler) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		l, err := h.svc.Get(c.UserContext(), userID, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(l)
	}
}
