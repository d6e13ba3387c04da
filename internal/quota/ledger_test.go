package quota

import (
	"sync/atomic"
	"testing"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func reload(t *testing.T, db *gorm.DB, id uint) models.AdminQuota {
	t.Helper()
	var q models.AdminQuota
	require.NoError(t, db.First(&q, id).Error)
	return q
}

func TestIsQuotaAvailable(t *testing.T) {
	base := models.AdminQuota{CropName: "Rice", TotalAllowedArea: 10, AllocatedArea: 6, IsActive: true}

	tests := []struct {
		name      string
		mutate    func(*models.AdminQuota)
		requested float64
		ok        bool
	}{
		{"fits remaining", nil, 4, true},
		{"exceeds remaining", nil, 4.5, false},
		{"inactive", func(q *models.AdminQuota) { q.IsActive = false }, 1, false},
		{"over per-request cap", func(q *models.AdminQuota) { q.MaxPerFarmer = testutil.Ptr(2.0) }, 3, false},
		{"at per-request cap", func(q *models.AdminQuota) { q.MaxPerFarmer = testutil.Ptr(2.0) }, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := base
			if tt.mutate != nil {
				tt.mutate(&q)
			}
			ok, reason := IsQuotaAvailable(q, tt.requested)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestCheckPerFarmerLimitCountsHeldArea(t *testing.T) {
	db := testutil.NewDB(t)
	farmer := testutil.CreateUser(t, db, "ravi", models.RoleFarmer)
	land := testutil.CreateLand(t, db, farmer.ID, 20)
	q := testutil.CreateQuota(t, db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10, MaxPerFarmer: testutil.Ptr(5.0)})

	seed := func(area float64, status models.CultivationStatus, approval string) {
		require.NoError(t, db.Create(&models.Cultivation{
			UserID: farmer.ID, LandID: land.ID, QuotaID: &q.ID, ApprovalID: approval,
			CropName: "Rice", AreaUsed: area, Status: status,
		}).Error)
	}
	seed(3, models.CultivationHarvested, "AGR-1")
	seed(4, models.CultivationCancelled, "AGR-2")

	ok, _, err := CheckPerFarmerLimit(db, q, farmer.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok, "3 held + 2 requested fits a cap of 5")

	ok, reason, err := CheckPerFarmerLimit(db, q, farmer.ID, 2.5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "per-farmer limit")
}

func TestAllocateAreaNeverExceedsTotal(t *testing.T) {
	db := testutil.NewDB(t)
	q := testutil.CreateQuota(t, db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})

	require.NoError(t, AllocateArea(db, q.ID, 7, true))
	err := AllocateArea(db, q.ID, 3.5, true)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindQuotaExhausted))

	got := reload(t, db, q.ID)
	assert.Equal(t, 7.0, got.AllocatedArea)
	assert.Equal(t, 1, got.AllocatedFarmerCount)

	require.NoError(t, AllocateArea(db, q.ID, 3, false))
	got = reload(t, db, q.ID)
	assert.Equal(t, 10.0, got.AllocatedArea)
	assert.Equal(t, 1, got.AllocatedFarmerCount)
}

func TestAllocateAreaRejectsInactiveQuota(t *testing.T) {
	db := testutil.NewDB(t)
	q := testutil.CreateQuota(t, db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})
	require.NoError(t, db.Model(&q).UpdateColumn("is_active", false).Error)

	err := AllocateArea(db, q.ID, 1, true)
	assert.True(t, apperror.IsKind(err, apperror.KindQuotaExhausted))
	assert.Equal(t, 0.0, reload(t, db, q.ID).AllocatedArea)
}

func TestAllocateReleaseRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	q := testutil.CreateQuota(t, db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})
	require.NoError(t, AllocateArea(db, q.ID, 2.5, true))
	before := reload(t, db, q.ID)

	require.NoError(t, AllocateArea(db, q.ID, 4, true))
	require.NoError(t, ReleaseArea(db, q.ID, 4, true))

	after := reload(t, db, q.ID)
	assert.Equal(t, before.AllocatedArea, after.AllocatedArea)
	assert.Equal(t, before.AllocatedFarmerCount, after.AllocatedFarmerCount)
}

func TestReleaseAreaClampsAtZero(t *testing.T) {
	db := testutil.NewDB(t)
	q := testutil.CreateQuota(t, db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})
	require.NoError(t, AllocateArea(db, q.ID, 1, false))

	require.NoError(t, ReleaseArea(db, q.ID, 5, true))

	got := reload(t, db, q.ID)
	assert.Equal(t, 0.0, got.AllocatedArea)
	assert.Equal(t, 0, got.AllocatedFarmerCount)
}

func TestReleaseAreaUnknownQuota(t *testing.T) {
	db := testutil.NewDB(t)
	err := ReleaseArea(db, 999, 1, true)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestConcurrentAllocationsStayWithinTotal(t *testing.T) {
	db := testutil.NewDB(t)
	q := testutil.CreateQuota(t, db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var accepted, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			err := db.Transaction(func(tx *gorm.DB) error {
				return AllocateArea(tx, q.ID, 1, true)
			})
			switch {
			case err == nil:
				accepted.Add(1)
			case apperror.IsKind(err, apperror.KindQuotaExhausted):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	got := reload(t, db, q.ID)
	assert.Equal(t, int32(10), accepted.Load())
	assert.Equal(t, int32(15), rejected.Load())
	assert.Equal(t, 10.0, got.AllocatedArea)
	assert.LessOrEqual(t, got.AllocatedArea, got.TotalAllowedArea)
}

func TestLegacyAllocationHonoursCultivationCap(t *testing.T) {
	db := testutil.NewDB(t)
	l := models.RegionLimit{District: "Mandya", CropName: "Ragi", MaxArea: 10, MaxCultivationCount: 2, IsActive: true}
	require.NoError(t, db.Create(&l).Error)

	require.NoError(t, AllocateLegacy(db, l.ID, 2))
	require.NoError(t, AllocateLegacy(db, l.ID, 2))
	err := AllocateLegacy(db, l.ID, 1)
	assert.True(t, apperror.IsKind(err, apperror.KindQuotaExhausted))

	require.NoError(t, ReleaseLegacy(db, l.ID, 2))
	var got models.RegionLimit
	require.NoError(t, db.First(&got, l.ID).Error)
	assert.Equal(t, 2.0, got.CurrentAreaUsed)
	assert.Equal(t, 1, got.CurrentCultivationCount)
}

func TestQuotaAreaExactFillWithFractionalAcres(t *testing.T) {
	db := testutil.NewDB(t)
	farmer := testutil.CreateUser(t, db, "meena", models.RoleFarmer)
	land := testutil.CreateLand(t, db, farmer.ID, 1)
	q := testutil.CreateQuota(t, db, models.AdminQuota{
		District: "Mandya", CropName: "Rice", TotalAllowedArea: 0.3, MaxPerFarmer: testutil.Ptr(0.3),
	})

	require.NoError(t, AllocateArea(db, q.ID, 0.1, true))
	require.NoError(t, db.Create(&models.Cultivation{
		UserID: farmer.ID, LandID: land.ID, QuotaID: &q.ID, ApprovalID: "AGR-F1",
		CropName: "Rice", AreaUsed: 0.1, Status: models.CultivationActive,
	}).Error)

	snap := reload(t, db, q.ID)
	ok, reason := IsQuotaAvailable(snap, 0.2)
	assert.True(t, ok, reason)

	ok, reason, err := CheckPerFarmerLimit(db, snap, farmer.ID, 0.2)
	require.NoError(t, err)
	assert.True(t, ok, reason)

	require.NoError(t, AllocateArea(db, q.ID, 0.2, false))
	assert.InDelta(t, 0.3, reload(t, db, q.ID).AllocatedArea, 1e-9)

	err = AllocateArea(db, q.ID, 0.01, false)
	assert.True(t, apperror.IsKind(err, apperror.KindQuotaExhausted))

	require.NoError(t, ReleaseArea(db, q.ID, 0.2, false))
	require.NoError(t, ReleaseArea(db, q.ID, 0.1, true))
	got := reload(t, db, q.ID)
	assert.InDelta(t, 0.0, got.AllocatedArea, 1e-9)
	assert.Equal(t, 0, got.AllocatedFarmerCount)
}

func TestLegacyAreaExactFillWithFractionalAcres(t *testing.T) {
	db := testutil.NewDB(t)
	l := models.RegionLimit{District: "Mandya", CropName: "Ragi", MaxArea: 0.3, IsActive: true}
	require.NoError(t, db.Create(&l).Error)
	require.NoError(t, AllocateLegacy(db, l.ID, 0.1))

	var snap models.RegionLimit
	require.NoError(t, db.First(&snap, l.ID).Error)
	src := &legacySource{l: snap}
	require.NoError(t, src.Admit(db, 0.2, 0))
	require.NoError(t, src.Reserve(db, 0.2, 0))

	var got models.RegionLimit
	require.NoError(t, db.First(&got, l.ID).Error)
	assert.InDelta(t, 0.3, got.CurrentAreaUsed, 1e-9)
	assert.Equal(t, 2, got.CurrentCultivationCount)

	err := AllocateLegacy(db, l.ID, 0.01)
	assert.True(t, apperror.IsKind(err, apperror.KindQuotaExhausted))
}
