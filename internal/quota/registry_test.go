package quota

import (
	"context"
	"testing"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(testutil.NewDB(t), zaptest.NewLogger(t))
}

func TestCreateQuotaValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   QuotaInput
	}{
		{"missing crop", QuotaInput{District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(10.0)}},
		{"missing location", QuotaInput{CropName: testutil.Ptr("Rice"), TotalAllowedArea: testutil.Ptr(10.0)}},
		{"zero total", QuotaInput{CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(0.0)}},
		{"bad date", QuotaInput{CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(10.0), HarvestSeasonStart: testutil.Ptr("01/10/2026")}},
		{"season reversed", QuotaInput{
			CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(10.0),
			HarvestSeasonStart: testutil.Ptr("2026-12-01"), HarvestSeasonEnd: testutil.Ptr("2026-10-01"),
		}},
		{"price band reversed", QuotaInput{
			CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(10.0),
			MinPricePerUnit: testutil.Ptr(30.0), MaxPricePerUnit: testutil.Ptr(20.0),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateQuota(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation), err.Error())
		})
	}
}

func TestCreateQuotaInactive(t *testing.T) {
	svc := newService(t)
	q, err := svc.CreateQuota(context.Background(), QuotaInput{
		CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"),
		TotalAllowedArea: testutil.Ptr(10.0), IsActive: testutil.Ptr(false),
	})
	require.NoError(t, err)

	got, err := svc.GetQuota(context.Background(), q.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 0.0, got.AllocatedArea)
}

func TestUpdateQuotaCannotShrinkBelowAllocated(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuota(ctx, QuotaInput{
		CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(10.0),
	})
	require.NoError(t, err)
	require.NoError(t, AllocateArea(svc.db, q.ID, 5, true))

	_, _, err = svc.UpdateQuota(ctx, q.ID, QuotaInput{TotalAllowedArea: testutil.Ptr(4.0)})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindIntegrity))

	got, err := svc.GetQuota(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.TotalAllowedArea)

	before, after, err := svc.UpdateQuota(ctx, q.ID, QuotaInput{TotalAllowedArea: testutil.Ptr(6.0)})
	require.NoError(t, err)
	assert.Equal(t, 10.0, before.TotalAllowedArea)
	assert.Equal(t, 6.0, after.TotalAllowedArea)
	assert.Equal(t, 5.0, after.AllocatedArea)

	got, err = svc.GetQuota(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.TotalAllowedArea)
	assert.Equal(t, 5.0, got.AllocatedArea)
}

func TestUpdateQuotaCanDeactivate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuota(ctx, QuotaInput{
		CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(10.0),
	})
	require.NoError(t, err)

	_, _, err = svc.UpdateQuota(ctx, q.ID, QuotaInput{IsActive: testutil.Ptr(false)})
	require.NoError(t, err)

	got, err := svc.GetQuota(ctx, q.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestDeleteQuotaBlockedByOpenCultivations(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	farmer := testutil.CreateUser(t, svc.db, "asha", models.RoleFarmer)
	land := testutil.CreateLand(t, svc.db, farmer.ID, 5)
	q := testutil.CreateQuota(t, svc.db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})

	c := models.Cultivation{UserID: farmer.ID, LandID: land.ID, QuotaID: &q.ID, ApprovalID: "AGR-X", CropName: "Rice", AreaUsed: 1, Status: models.CultivationActive}
	require.NoError(t, svc.db.Create(&c).Error)

	_, err := svc.DeleteQuota(ctx, q.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindIntegrity))

	require.NoError(t, svc.db.Model(&c).Update("status", models.CultivationHarvested).Error)
	_, err = svc.DeleteQuota(ctx, q.ID)
	require.NoError(t, err)

	_, err = svc.GetQuota(ctx, q.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestRegionLimitIntegrity(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	l, err := svc.CreateRegionLimit(ctx, RegionLimitInput{
		District: testutil.Ptr("Mandya"), CropName: testutil.Ptr("Ragi"),
		MaxArea: testutil.Ptr(10.0), MaxCultivationCount: testutil.Ptr(3),
	})
	require.NoError(t, err)
	require.NoError(t, AllocateLegacy(svc.db, l.ID, 6))
	require.NoError(t, AllocateLegacy(svc.db, l.ID, 1))

	_, _, err = svc.UpdateRegionLimit(ctx, l.ID, RegionLimitInput{MaxArea: testutil.Ptr(5.0)})
	assert.True(t, apperror.IsKind(err, apperror.KindIntegrity))

	_, _, err = svc.UpdateRegionLimit(ctx, l.ID, RegionLimitInput{MaxCultivationCount: testutil.Ptr(1)})
	assert.True(t, apperror.IsKind(err, apperror.KindIntegrity))

	_, after, err := svc.UpdateRegionLimit(ctx, l.ID, RegionLimitInput{MaxArea: testutil.Ptr(7.0), MaxCultivationCount: testutil.Ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, 7.0, after.MaxArea)
	assert.Equal(t, 0, after.MaxCultivationCount)
}

func TestUtilizationAlertsAndExport(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	busy := testutil.CreateQuota(t, svc.db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})
	warm := testutil.CreateQuota(t, svc.db, models.AdminQuota{District: "Mandya", CropName: "Ragi", TotalAllowedArea: 10})
	testutil.CreateQuota(t, svc.db, models.AdminQuota{District: "Hassan", CropName: "Rice", TotalAllowedArea: 10})
	require.NoError(t, AllocateArea(svc.db, busy.ID, 9.5, true))
	require.NoError(t, AllocateArea(svc.db, warm.ID, 8, true))

	rows, err := svc.Utilization(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, busy.ID, rows[0].QuotaID)
	assert.Equal(t, 95.0, rows[0].UtilizationPercent)
	assert.Equal(t, AlertDanger, rows[0].Alert)
	assert.Equal(t, AlertWarning, rows[1].Alert)
	assert.Equal(t, AlertNone, rows[2].Alert)

	buf, err := ExportUtilizationXLSX(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	crop, err := f.GetCellValue("Utilization", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Rice", crop)
	alert, err := f.GetCellValue("Utilization", "J2")
	require.NoError(t, err)
	assert.Equal(t, AlertDanger, alert)
}

func TestUpdateQuotaTotalEqualToFractionalAllocation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuota(ctx, QuotaInput{
		CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(1.0),
	})
	require.NoError(t, err)
	require.NoError(t, AllocateArea(svc.db, q.ID, 0.1, true))
	require.NoError(t, AllocateArea(svc.db, q.ID, 0.2, true))

	_, after, err := svc.UpdateQuota(ctx, q.ID, QuotaInput{TotalAllowedArea: testutil.Ptr(0.3)})
	require.NoError(t, err)
	assert.Equal(t, 0.3, after.TotalAllowedArea)
}

func TestCreateInactiveQuotaIsNotResolved(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	farmer := testutil.CreateUser(t, svc.db, "kiran", models.RoleFarmer)
	land := testutil.CreateLand(t, svc.db, farmer.ID, 5)

	q, err := svc.CreateQuota(ctx, QuotaInput{
		CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"),
		TotalAllowedArea: testutil.Ptr(10.0), IsActive: testutil.Ptr(false),
	})
	require.NoError(t, err)
	assert.False(t, q.IsActive)

	got, err := FindMatchingQuota(svc.db, land, "Rice")
	require.NoError(t, err)
	assert.Nil(t, got)

	active, err := svc.ListQuotas(ctx, QuotaFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateInactiveRegionLimitIsNotResolved(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	l, err := svc.CreateRegionLimit(ctx, RegionLimitInput{
		District: testutil.Ptr("Mandya"), CropName: testutil.Ptr("Ragi"),
		MaxArea: testutil.Ptr(10.0), IsActive: testutil.Ptr(false),
	})
	require.NoError(t, err)
	assert.False(t, l.IsActive)

	var stored models.RegionLimit
	require.NoError(t, svc.db.First(&stored, l.ID).Error)
	assert.False(t, stored.IsActive)

	got, err := FindLegacyLimit(svc.db, "Mandya", "Ragi")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateQuotaClearsOptionalLimits(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuota(ctx, QuotaInput{
		CropName: testutil.Ptr("Rice"), District: testutil.Ptr("Mandya"), TotalAllowedArea: testutil.Ptr(10.0),
		MaxPerFarmer: testutil.Ptr(2.0), MinPricePerUnit: testutil.Ptr(18.0),
	})
	require.NoError(t, err)

	_, _, err = svc.UpdateQuota(ctx, q.ID, QuotaInput{Clear: []string{"total_allowed_area"}})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, _, err = svc.UpdateQuota(ctx, q.ID, QuotaInput{MaxPerFarmer: testutil.Ptr(3.0), Clear: []string{"max_per_farmer"}})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	before, after, err := svc.UpdateQuota(ctx, q.ID, QuotaInput{Clear: []string{"max_per_farmer", "min_price_per_unit"}})
	require.NoError(t, err)
	require.NotNil(t, before.MaxPerFarmer)
	assert.Equal(t, 2.0, *before.MaxPerFarmer)
	assert.Nil(t, after.MaxPerFarmer)
	assert.Nil(t, after.MinPricePerUnit)

	got, err := svc.GetQuota(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MaxPerFarmer)
	assert.Nil(t, got.MinPricePerUnit)

	ok, reason := IsQuotaAvailable(*got, 8)
	assert.True(t, ok, reason)
}

func TestUpdateQuotaScopeLockedWhileAreaHeld(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	farmer := testutil.CreateUser(t, svc.db, "girish", models.RoleFarmer)
	land := testutil.CreateLand(t, svc.db, farmer.ID, 5)
	q := testutil.CreateQuota(t, svc.db, models.AdminQuota{District: "Mandya", CropName: "Rice", TotalAllowedArea: 10})
	require.NoError(t, AllocateArea(svc.db, q.ID, 2, true))

	c := models.Cultivation{UserID: farmer.ID, LandID: land.ID, QuotaID: &q.ID, ApprovalID: "AGR-S1", CropName: "Rice", AreaUsed: 2, Status: models.CultivationHarvested}
	require.NoError(t, svc.db.Create(&c).Error)

	edits := map[string]QuotaInput{
		"crop":     {CropName: testutil.Ptr("Ragi")},
		"district": {District: testutil.Ptr("Hassan")},
		"narrowed": {Village: testutil.Ptr("Kestur")},
	}
	for name, in := range edits {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.UpdateQuota(ctx, q.ID, in)
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, apperror.KindIntegrity), err.Error())
		})
	}

	_, after, err := svc.UpdateQuota(ctx, q.ID, QuotaInput{CropName: testutil.Ptr(" rice "), TotalAllowedArea: testutil.Ptr(12.0)})
	require.NoError(t, err)
	assert.Equal(t, 12.0, after.TotalAllowedArea)

	require.NoError(t, svc.db.Model(&c).Update("status", models.CultivationCancelled).Error)
	_, after, err = svc.UpdateQuota(ctx, q.ID, QuotaInput{CropName: testutil.Ptr("Ragi")})
	require.NoError(t, err)
	assert.Equal(t, "Ragi", after.CropName)
}
