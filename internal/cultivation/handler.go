package cultivation

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

func farmerAndID(c *fiber.Ctx) (uint, uint, error) {
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

// POST /api/cultivations
func (h *Handler) Start() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body StartInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		cult, err := h.svc.Start(c.UserContext(), userID, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(cult)
	}
}

// GET /api/cultivations?status=active
func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		list, err := h.svc.List(c.UserContext(), userID, c.Query("status"))
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

// GET /api/cultivations/:id
func (h *Handler) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := farmerAndID(c)
		if err != nil {
			return err
		}
		cult, err := h.svc.Get(c.UserContext(), userID, id)
		if err != nil {
			return err
		}
		return c.JSON(cult)
	}
}

// POST /api/cultivations/:id/activate
func (h *Handler) Activate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := farmerAndID(c)
		if err != nil {
			return err
		}
		cult, err := h.svc.Activate(c.UserContext(), userID, id)
		if err != nil {
			return err
		}
		return c.JSON(cult)
	}
}

// POST /api/cultivations/:id/fail
func (h *Handler) Fail() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := farmerAndID(c)
		if err != nil {
			return err
		}
		cult, err := h.svc.Fail(c.UserContext(), userID, id)
		if err != nil {
			return err
		}
		return c.JSON(cult)
	}
}

// POST /api/cultivations/:id/cancel
func (h *Handler) Cancel() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, id, err := farmerAndID(c)
		if err != nil {
			return err
		}
		cult, err := h.svc.Cancel(c.UserContext(), userID, id)
		if err != nil {
			return err
		}
		return c.JSON(cult)
	}
}
