package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/auth"
	"agribalance-backend/internal/config"
	"agribalance-backend/internal/metrics"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:             testSecret,
		CORSOrigins:           "http://localhost:5173",
		HarvestTolerance:      0.10,
		SaleQuantityTolerance: 0.05,
	}
}

type env struct {
	app    *fiber.App
	db     *gorm.DB
	farmer models.User
	admin  models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	return &env{
		app:    New(testConfig(), db, zaptest.NewLogger(t), metrics.New()),
		db:     db,
		farmer: testutil.CreateUser(t, db, "farmer", models.RoleFarmer),
		admin:  testutil.CreateUser(t, db, "admin", models.RoleAdmin),
	}
}

func (e *env) do(t *testing.T, method, path string, user *models.User, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := auth.GenerateToken(testSecret, user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	status, body := e.do(t, http.MethodGet, "/api/lands", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "missing Authorization header", body["error"])
}

func TestRoleSeparation(t *testing.T) {
	e := newEnv(t)

	status, _ := e.do(t, http.MethodGet, "/api/admin/quotas", &e.farmer, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = e.do(t, http.MethodGet, "/api/lands", &e.admin, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = e.do(t, http.MethodGet, "/api/admin/quotas", &e.admin, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRejectionsCarryKind(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/api/lands/999", &e.farmer, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, string(apperror.KindNotFound), body["kind"])

	landID := testutil.CreateLand(t, e.db, e.farmer.ID, 10).ID
	testutil.CreateQuota(t, e.db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 5})

	status, body = e.do(t, http.MethodPost, "/api/cultivations", &e.farmer, map[string]any{
		"land_id": landID, "crop_name": "Rice", "area_used": 6,
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, string(apperror.KindQuotaExhausted), body["kind"])

	status, body = e.do(t, http.MethodPost, "/api/cultivations", &e.farmer, map[string]any{
		"land_id": landID, "crop_name": "Rice", "area_used": 5,
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "planned", body["status"])
	assert.Regexp(t, `^AGR-\d{8}-[0-9A-F]{8}$`, body["approval_id"])
}

func TestAdminChangesAreAudited(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/api/admin/quotas", &e.admin, map[string]any{
		"crop_name": "Ragi", "district": "Mandya", "total_allowed_area": 40, "max_per_farmer": 4,
	})
	require.Equal(t, fiber.StatusCreated, status)
	id := uint(body["id"].(float64))

	var logs []models.AuditLog
	require.NoError(t, e.db.Where("entity_type = ? AND entity_id = ?", "admin_quota", id).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionCreate, logs[0].Action)
	assert.Equal(t, e.admin.ID, logs[0].UserID)
	assert.Equal(t, e.admin.Name, logs[0].UserName)
}

func TestErrorHandlerHidesStorageFaults(t *testing.T) {
	core, recorded := observer.New(zap.ErrorLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: connection refused")
	})
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"unexpected server error"}`, string(raw))
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "/boom", recorded.All()[0].ContextMap()["route"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil), -1)
	require.NoError(t, err)
	raw, _ = io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.JSONEq(t, `{"error":"short and stout"}`, string(raw))
}
