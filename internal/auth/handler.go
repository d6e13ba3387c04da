package auth

import (
	"strings"

	"agribalance-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Location string `json:"location"`
	District string `json:"district"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Handler struct {
	db     *gorm.DB
	secret string
	log    *zap.Logger
}

func NewHandler(db *gorm.DB, secret string, log *zap.Logger) *Handler {
	return &Handler{db: db, secret: secret, log: log}
}

// POST /api/auth/register-admin
// Only the first admin can register this way.
func (h *Handler) RegisterAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var count int64
		if err := h.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "an admin already exists")
		}
		return h.register(c, models.RoleAdmin)
	}
}

// POST /api/auth/register
func (h *Handler) RegisterFarmer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h.register(c, models.RoleFarmer)
	}
}

func (h *Handler) register(c *fiber.Ctx, role models.UserRole) error {
	var body RegisterRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	body.Name = strings.TrimSpace(body.Name)

	if body.Email == "" || body.Password == "" || body.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
	}
	if len(body.Password) < 8 {
		return fiber.NewError(fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var existing int64
	if err := h.db.Model(&models.User{}).Where("email = ?", body.Email).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fiber.NewError(fiber.StatusConflict, "email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := models.User{
		Name:         body.Name,
		Email:        body.Email,
		PasswordHash: string(hash),
		Role:         role,
		Location:     strings.TrimSpace(body.Location),
		District:     strings.TrimSpace(body.District),
	}
	if err := h.db.Create(&user).Error; err != nil {
		return err
	}

	h.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", string(role)))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
	})
}

// POST /api/auth/login
func (h *Handler) Login() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := h.db.Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}
		if user.IsSuspended {
			return fiber.NewError(fiber.StatusForbidden, "account is suspended")
		}

		token, err := GenerateToken(h.secret, &user)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  user,
		})
	}
}

// GET /api/auth/me
func (h *Handler) Me() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := h.db.First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return c.JSON(user)
	}
}

// Actor returns the id and display name of the authenticated user for audit
// entries.
func Actor(c *fiber.Ctx, db *gorm.DB) (uint, string, error) {
	userID, err := UserID(c)
	if err != nil {
		return 0, "", err
	}
	var user models.User
	if err := db.Select("id", "name").First(&user, userID).Error; err != nil {
		return 0, "", fiber.NewError(fiber.StatusForbidden, "user not found")
	}
	return user.ID, user.Name, nil
}
