// Package testutil provides an in-memory database and seed helpers for
// package tests.
package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"agribalance-backend/internal/database"
	"agribalance-backend/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with every table migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:agribalance_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// PostgresDSNEnv names the variable that enables tests against a real
// PostgreSQL server.
const PostgresDSNEnv = "TEST_POSTGRES_DSN"

// NewPostgresDB migrates a throwaway schema on the server named by
// TEST_POSTGRES_DSN and drops it on cleanup. The test is skipped when the
// variable is unset. Unlike NewDB the pool has several connections, so
// concurrent transactions really interleave.
func NewPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	schema := fmt.Sprintf("agribalance_test_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))

	admin, err := database.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, admin.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema)).Error)

	db, err := database.Open("postgres", withSearchPath(dsn, schema))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = admin.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", schema)).Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// withSearchPath adds search_path to a URL or keyword/value DSN.
func withSearchPath(dsn, schema string) string {
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&search_path=" + schema
	}
	return dsn + "?search_path=" + schema
}

func CreateUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) models.User {
	t.Helper()
	u := models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%d@example.com", name, dbSeq.Add(1)),
		PasswordHash: "x",
		Role:         role,
		District:     "Mandya",
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// CreateLand seeds a parcel in Karnataka / Mandya / Maddur / Kestur unless
// the caller overrides fields in land.
func CreateLand(t *testing.T, db *gorm.DB, userID uint, size float64, overrides ...func(*models.Land)) models.Land {
	t.Helper()
	l := models.Land{
		UserID:      userID,
		Name:        "plot",
		Country:     "India",
		State:       "Karnataka",
		District:    "Mandya",
		Taluk:       "Maddur",
		Village:     "Kestur",
		LandSize:    size,
		SoilType:    "loam",
		WaterSource: "well",
	}
	for _, o := range overrides {
		o(&l)
	}
	require.NoError(t, db.Create(&l).Error)
	return l
}

func CreateQuota(t *testing.T, db *gorm.DB, q models.AdminQuota) models.AdminQuota {
	t.Helper()
	if q.AreaUnit == "" {
		q.AreaUnit = "acres"
	}
	q.IsActive = true
	require.NoError(t, db.Create(&q).Error)
	return q
}

func Ptr[T any](v T) *T {
	return &v
}
