package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/dateutil"
	"agribalance-backend/internal/metrics"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/notify"
	"agribalance-backend/internal/pricing"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	notifier         notify.Sink
	harvestTolerance float64
	saleTolerance    float64
	metrics          *metrics.Metrics
	now              func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger, notifier notify.Sink, harvestTolerance, saleTolerance float64) *Service {
	return &Service{
		db:               db,
		log:              log,
		notifier:         notifier,
		harvestTolerance: harvestTolerance,
		saleTolerance:    saleTolerance,
		now:              time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

type HarvestInput struct {
	HarvestDate string  `json:"harvest_date"` // YYYY-MM-DD, defaults to today
	ActualYield float64 `json:"actual_yield"`
}

type SaleInput struct {
	SellingQuantity float64 `json:"selling_quantity"`
}

// lockCultivation serialises writers on one cultivation for the rest of the
// transaction and returns the fresh row, checking ownership.
func lockCultivation(tx *gorm.DB, farmerID, id uint) (*models.Cultivation, error) {
	res := tx.Model(&models.Cultivation{}).Where("id = ?", id).UpdateColumn("updated_at", time.Now())
	if res.Error != nil {
		return nil, fmt.Errorf("lock cultivation %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.NotFound("cultivation %d not found", id)
	}
	var c models.Cultivation
	if err := tx.First(&c, id).Error; err != nil {
		return nil, fmt.Errorf("load cultivation %d: %w", id, err)
	}
	if c.UserID != farmerID {
		return nil, apperror.Forbidden("cultivation %d does not belong to you", id)
	}
	return &c, nil
}

// boundQuota loads the quota a cultivation reserved against, including a
// quota deleted since.
func boundQuota(tx *gorm.DB, c *models.Cultivation) (*models.AdminQuota, error) {
	if c.QuotaID == nil {
		return nil, nil
	}
	var q models.AdminQuota
	err := tx.Unscoped().First(&q, *c.QuotaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load quota %d: %w", *c.QuotaID, err)
	}
	return &q, nil
}

// SubmitHarvest records the actual harvest and closes the cultivation as
// harvested. The reserved area stays allocated.
func (s *Service) SubmitHarvest(ctx context.Context, farmerID, cultivationID uint, in HarvestInput) (*models.Cultivation, error) {
	harvestDate := dateutil.Day(s.now())
	if in.HarvestDate != "" {
		t, err := dateutil.ParseOptional(in.HarvestDate)
		if err != nil {
			return nil, apperror.Validation("invalid harvest_date %q, expected YYYY-MM-DD", in.HarvestDate)
		}
		harvestDate = *t
	}

	var c *models.Cultivation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = lockCultivation(tx, farmerID, cultivationID); err != nil {
			return err
		}
		q, err := boundQuota(tx, c)
		if err != nil {
			return err
		}
		if err := ValidateHarvestSubmission(*c, q, harvestDate, in.ActualYield, s.harvestTolerance); err != nil {
			return err
		}

		yield := in.ActualYield
		res := tx.Model(&models.Cultivation{}).
			Where("id = ? AND status IN ?", c.ID, []models.CultivationStatus{models.CultivationPlanned, models.CultivationActive}).
			Updates(map[string]any{
				"status":              models.CultivationHarvested,
				"actual_yield":        yield,
				"actual_harvest_date": harvestDate,
			})
		if res.Error != nil {
			return fmt.Errorf("record harvest on cultivation %d: %w", c.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.IllegalTransition("cultivation %d was closed concurrently", c.ID)
		}
		c.Status = models.CultivationHarvested
		c.ActualYield = &yield
		c.ActualHarvestDate = &harvestDate
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("harvest recorded",
		zap.Uint("cultivation_id", c.ID),
		zap.Float64("actual_yield", *c.ActualYield))
	return c, nil
}

// SubmitSale files the single harvest-to-sale request for a harvested
// cultivation. Expected revenue uses the admin price for the land's
// district, capped at the quota's max price when one is set.
func (s *Service) SubmitSale(ctx context.Context, farmerID, cultivationID uint, in SaleInput) (*models.HarvestSale, error) {
	var sale models.HarvestSale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockCultivation(tx, farmerID, cultivationID)
		if err != nil {
			return err
		}
		if c.Status != models.CultivationHarvested {
			return apperror.IllegalTransition("cultivation %d is %s, only harvested crops can be sold", c.ID, c.Status)
		}

		var existing int64
		if err := tx.Model(&models.HarvestSale{}).Where("cultivation_id = ?", c.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing sale for cultivation %d: %w", c.ID, err)
		}
		if existing > 0 {
			return apperror.IllegalTransition("a sale request already exists for cultivation %d", c.ID)
		}

		if err := CheckSaleQuantity(*c, in.SellingQuantity, s.saleTolerance); err != nil {
			return err
		}

		sale = models.HarvestSale{
			UserID:              farmerID,
			CultivationID:       c.ID,
			ActualYieldQuantity: *c.ActualYield,
			SellingQuantity:     in.SellingQuantity,
			YieldUnit:           c.YieldUnit,
			Status:              models.HarvestSalePending,
		}
		if err := s.expectRevenue(tx, c, &sale); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&sale).Error; err != nil {
			return fmt.Errorf("create sale for cultivation %d: %w", c.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("harvest sale submitted",
		zap.Uint("harvest_sale_id", sale.ID),
		zap.Uint("cultivation_id", sale.CultivationID),
		zap.Float64("selling_quantity", sale.SellingQuantity))
	return &sale, nil
}

func (s *Service) expectRevenue(tx *gorm.DB, c *models.Cultivation, sale *models.HarvestSale) error {
	var land models.Land
	if err := tx.Select("id", "district").First(&land, c.LandID).Error; err != nil {
		return fmt.Errorf("load land %d: %w", c.LandID, err)
	}
	price, err := pricing.PriceAt(tx, c.CropName, land.District, s.now())
	if err != nil {
		return err
	}
	if price == nil {
		return nil
	}

	perUnit := price.PricePerUnit
	q, err := boundQuota(tx, c)
	if err != nil {
		return err
	}
	if q != nil && q.MaxPricePerUnit != nil && perUnit > *q.MaxPricePerUnit {
		perUnit = *q.MaxPricePerUnit
	}
	revenue := perUnit * sale.SellingQuantity
	sale.ExpectedPricePerUnit = &perUnit
	sale.ExpectedRevenue = &revenue
	return nil
}

func (s *Service) ListSales(ctx context.Context, status string) ([]models.HarvestSale, error) {
	q := s.db.WithContext(ctx).Model(&models.HarvestSale{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.HarvestSale
	if err := q.Order("created_at desc, id desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list harvest sales: %w", err)
	}
	return out, nil
}

func (s *Service) FarmerSales(ctx context.Context, farmerID uint) ([]models.HarvestSale, error) {
	var out []models.HarvestSale
	err := s.db.WithContext(ctx).Where("user_id = ?", farmerID).Order("created_at desc, id desc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list harvest sales for user %d: %w", farmerID, err)
	}
	return out, nil
}
