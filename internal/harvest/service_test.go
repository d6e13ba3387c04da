package harvest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu  sync.Mutex
	got []models.Notification
}

func (r *recordingSink) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

var seq atomic.Int64

type fixture struct {
	svc    *Service
	db     *gorm.DB
	sink   *recordingSink
	farmer models.User
	admin  models.User
	land   models.Land
	quota  models.AdminQuota
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	sink := &recordingSink{}
	svc := NewService(db, zaptest.NewLogger(t), sink, 0.10, 0.05)
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	f := &fixture{svc: svc, db: db, sink: sink}
	f.farmer = testutil.CreateUser(t, db, "farmer", models.RoleFarmer)
	f.admin = testutil.CreateUser(t, db, "admin", models.RoleAdmin)
	f.land = testutil.CreateLand(t, db, f.farmer.ID, 10)
	start, end := date("2026-10-01"), date("2026-11-30")
	f.quota = testutil.CreateQuota(t, db, models.AdminQuota{
		District: "Mandya", CropName: "Rice", TotalAllowedArea: 50,
		HarvestSeasonStart: &start, HarvestSeasonEnd: &end,
		MaxPricePerUnit: testutil.Ptr(25.0),
	})
	return f
}

func (f *fixture) cultivation(t *testing.T, status models.CultivationStatus) models.Cultivation {
	t.Helper()
	c := models.Cultivation{
		UserID:                 f.farmer.ID,
		LandID:                 f.land.ID,
		QuotaID:                &f.quota.ID,
		ApprovalID:             fmt.Sprintf("AGR-20261015-%08d", seq.Add(1)),
		CropName:               "Rice",
		AreaUsed:               2,
		Status:                 status,
		EstimatedYield:         testutil.Ptr(100.0),
		MaxAllowedSaleQuantity: testutil.Ptr(110.0),
		YieldUnit:              "kg",
	}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) price(t *testing.T, perUnit float64) models.CropPrice {
	t.Helper()
	p := models.CropPrice{CropName: "Rice", District: "Mandya", PricePerUnit: perUnit, Unit: "kg", IsActive: true}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func TestSubmitHarvestRecordsYield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cultivation(t, models.CultivationActive)

	_, err := f.svc.SubmitHarvest(ctx, f.farmer.ID, c.ID, HarvestInput{HarvestDate: "2026-10-20", ActualYield: 110.01})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = f.svc.SubmitHarvest(ctx, f.farmer.ID, c.ID, HarvestInput{HarvestDate: "2026-12-20", ActualYield: 90})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation), "outside the harvest season")

	got, err := f.svc.SubmitHarvest(ctx, f.farmer.ID, c.ID, HarvestInput{HarvestDate: "2026-10-20", ActualYield: 110})
	require.NoError(t, err)
	assert.Equal(t, models.CultivationHarvested, got.Status)

	var stored models.Cultivation
	require.NoError(t, f.db.First(&stored, c.ID).Error)
	assert.Equal(t, models.CultivationHarvested, stored.Status)
	require.NotNil(t, stored.ActualYield)
	assert.Equal(t, 110.0, *stored.ActualYield)
	require.NotNil(t, stored.ActualHarvestDate)

	_, err = f.svc.SubmitHarvest(ctx, f.farmer.ID, c.ID, HarvestInput{HarvestDate: "2026-10-21", ActualYield: 50})
	assert.True(t, apperror.IsKind(err, apperror.KindIllegalTransition), "cannot harvest twice")
}

func TestSubmitHarvestDefaultsToToday(t *testing.T) {
	f := newFixture(t)
	c := f.cultivation(t, models.CultivationPlanned)

	got, err := f.svc.SubmitHarvest(context.Background(), f.farmer.ID, c.ID, HarvestInput{ActualYield: 80})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", got.ActualHarvestDate.Format("2006-01-02"))
}

func TestSubmitHarvestRejectsOtherFarmer(t *testing.T) {
	f := newFixture(t)
	c := f.cultivation(t, models.CultivationActive)
	other := testutil.CreateUser(t, f.db, "other", models.RoleFarmer)

	_, err := f.svc.SubmitHarvest(context.Background(), other.ID, c.ID, HarvestInput{HarvestDate: "2026-10-20", ActualYield: 10})
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
}

func harvested(t *testing.T, f *fixture) models.Cultivation {
	t.Helper()
	c := f.cultivation(t, models.CultivationActive)
	_, err := f.svc.SubmitHarvest(context.Background(), f.farmer.ID, c.ID, HarvestInput{HarvestDate: "2026-10-20", ActualYield: 100})
	require.NoError(t, err)
	return c
}

func TestSubmitSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.price(t, 30)

	open := f.cultivation(t, models.CultivationActive)
	_, err := f.svc.SubmitSale(ctx, f.farmer.ID, open.ID, SaleInput{SellingQuantity: 10})
	assert.True(t, apperror.IsKind(err, apperror.KindIllegalTransition), "not harvested yet")

	c := harvested(t, f)
	_, err = f.svc.SubmitSale(ctx, f.farmer.ID, c.ID, SaleInput{SellingQuantity: 106})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	sale, err := f.svc.SubmitSale(ctx, f.farmer.ID, c.ID, SaleInput{SellingQuantity: 100})
	require.NoError(t, err)
	assert.Equal(t, models.HarvestSalePending, sale.Status)
	assert.Equal(t, 100.0, sale.ActualYieldQuantity)
	require.NotNil(t, sale.ExpectedPricePerUnit)
	assert.Equal(t, 25.0, *sale.ExpectedPricePerUnit, "capped at the quota max price")
	require.NotNil(t, sale.ExpectedRevenue)
	assert.Equal(t, 2500.0, *sale.ExpectedRevenue)

	_, err = f.svc.SubmitSale(ctx, f.farmer.ID, c.ID, SaleInput{SellingQuantity: 50})
	assert.True(t, apperror.IsKind(err, apperror.KindIllegalTransition), "one sale per cultivation")
}

func TestSubmitSaleWithoutPriceLeavesRevenueEmpty(t *testing.T) {
	f := newFixture(t)
	c := harvested(t, f)

	sale, err := f.svc.SubmitSale(context.Background(), f.farmer.ID, c.ID, SaleInput{SellingQuantity: 40})
	require.NoError(t, err)
	assert.Nil(t, sale.ExpectedPricePerUnit)
	assert.Nil(t, sale.ExpectedRevenue)
}

func TestApproveOnceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := harvested(t, f)
	sale, err := f.svc.SubmitSale(ctx, f.farmer.ID, c.ID, SaleInput{SellingQuantity: 80})
	require.NoError(t, err)

	_, _, err = f.svc.Approve(ctx, f.admin.ID, sale.ID, ReviewInput{ApprovedQuantity: testutil.Ptr(81.0)})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	before, after, err := f.svc.Approve(ctx, f.admin.ID, sale.ID, ReviewInput{ApprovedQuantity: testutil.Ptr(70.0), AdminNotes: "moisture"})
	require.NoError(t, err)
	assert.Equal(t, models.HarvestSalePending, before.Status)
	assert.Equal(t, models.HarvestSaleApproved, after.Status)
	assert.Equal(t, 70.0, after.RemainingQuantity())
	require.NotNil(t, after.ReviewedBy)
	assert.Equal(t, f.admin.ID, *after.ReviewedBy)

	_, _, err = f.svc.Approve(ctx, f.admin.ID, sale.ID, ReviewInput{})
	assert.True(t, apperror.IsKind(err, apperror.KindIllegalTransition))
	_, _, err = f.svc.Reject(ctx, f.admin.ID, sale.ID, ReviewInput{})
	assert.True(t, apperror.IsKind(err, apperror.KindIllegalTransition))

	require.Len(t, f.sink.got, 1)
	assert.Equal(t, models.NotificationApproval, f.sink.got[0].Type)
	assert.Contains(t, f.sink.got[0].Message, "Rice")
	assert.Equal(t, sale.ID, *f.sink.got[0].RelatedHarvestSaleID)
}

func TestRejectDefaultsNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := harvested(t, f)
	sale, err := f.svc.SubmitSale(ctx, f.farmer.ID, c.ID, SaleInput{SellingQuantity: 80})
	require.NoError(t, err)

	_, after, err := f.svc.Reject(ctx, f.admin.ID, sale.ID, ReviewInput{})
	require.NoError(t, err)
	assert.Equal(t, models.HarvestSaleRejected, after.Status)
	assert.Equal(t, defaultRejectNote, after.AdminNotes)

	require.Len(t, f.sink.got, 1)
	assert.Equal(t, models.NotificationRejection, f.sink.got[0].Type)
	assert.Contains(t, f.sink.got[0].Message, defaultRejectNote)
}

func TestCreateListingWithinRemainingQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	price := f.price(t, 22)
	c := harvested(t, f)
	sale, err := f.svc.SubmitSale(ctx, f.farmer.ID, c.ID, SaleInput{SellingQuantity: 80})
	require.NoError(t, err)

	_, err = f.svc.CreateListing(ctx, f.farmer.ID, sale.ID, ListingInput{Quantity: 10})
	assert.True(t, apperror.IsKind(err, apperror.KindIllegalTransition), "pending sales cannot be listed")

	_, _, err = f.svc.Approve(ctx, f.admin.ID, sale.ID, ReviewInput{ApprovedQuantity: testutil.Ptr(60.0)})
	require.NoError(t, err)

	first, err := f.svc.CreateListing(ctx, f.farmer.ID, sale.ID, ListingInput{Quantity: 40.4})
	require.NoError(t, err)
	assert.Equal(t, 22.0, first.PricePerUnit)
	assert.Equal(t, models.ListingAvailable, first.Status)
	assert.Equal(t, "Kestur, Maddur, Mandya", first.Location)

	_, err = f.svc.CreateListing(ctx, f.farmer.ID, sale.ID, ListingInput{Quantity: 20})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation), "40.4 + 20 > 60")

	_, err = f.svc.CreateListing(ctx, f.farmer.ID, sale.ID, ListingInput{Quantity: 19.6})
	require.NoError(t, err)

	var stored models.CropPrice
	require.NoError(t, f.db.First(&stored, price.ID).Error)
	assert.Equal(t, 60, stored.UnitsSold)

	market, err := f.svc.Marketplace(ctx, "rice")
	require.NoError(t, err)
	assert.Len(t, market, 2)

	sold, err := f.svc.MarkSold(ctx, f.farmer.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, sold.Status)
	_, err = f.svc.MarkSold(ctx, f.farmer.ID, first.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindIllegalTransition))

	market, err = f.svc.Marketplace(ctx, "")
	require.NoError(t, err)
	assert.Len(t, market, 1)
}
