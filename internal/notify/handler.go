package notify

import (
	"agribalance-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// GET /api/notifications?unread=true
func ListHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		list, err := store.List(c.UserContext(), userID, c.QueryBool("unread"))
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

// POST /api/notifications/:id/read
func MarkReadHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		if err := store.MarkRead(c.UserContext(), userID, uint(id)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
