// Package cultivation runs the cultivation lifecycle: start against a
// capacity source, activate, fail and cancel.
package cultivation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/dateutil"
	"agribalance-backend/internal/metrics"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/notify"
	"agribalance-backend/internal/quota"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	notifier         notify.Sink
	harvestTolerance float64
	metrics          *metrics.Metrics
	now              func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger, notifier notify.Sink, harvestTolerance float64) *Service {
	return &Service{
		db:               db,
		log:              log,
		notifier:         notifier,
		harvestTolerance: harvestTolerance,
		now:              time.Now,
	}
}

// WithMetrics attaches counters for start and cancel outcomes.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

type StartInput struct {
	LandID              uint    `json:"land_id"`
	CropName            string  `json:"crop_name"`
	Variety             string  `json:"variety"`
	AreaUsed            float64 `json:"area_used"`
	PlantingDate        string  `json:"planting_date"`         // YYYY-MM-DD
	ExpectedHarvestDate string  `json:"expected_harvest_date"` // defaults to planting + growth duration
	Notes               string  `json:"notes"`
}

var openStatuses = []models.CultivationStatus{models.CultivationPlanned, models.CultivationActive}

// Start reserves area for a new cultivation. The capacity checks, the
// counter update and the cultivation insert share one transaction; any
// rejection leaves nothing behind.
func (s *Service) Start(ctx context.Context, farmerID uint, in StartInput) (*models.Cultivation, error) {
	crop := strings.TrimSpace(in.CropName)
	if in.LandID == 0 || crop == "" {
		return nil, apperror.Validation("land_id and crop_name are required")
	}
	if in.AreaUsed <= 0 {
		return nil, apperror.Validation("area_used must be greater than zero")
	}
	planting, err := dateutil.ParseOptional(in.PlantingDate)
	if err != nil {
		return nil, apperror.Validation("invalid planting_date %q, expected YYYY-MM-DD", in.PlantingDate)
	}
	expected, err := dateutil.ParseOptional(in.ExpectedHarvestDate)
	if err != nil {
		return nil, apperror.Validation("invalid expected_harvest_date %q, expected YYYY-MM-DD", in.ExpectedHarvestDate)
	}
	if planting != nil && expected != nil && expected.Before(*planting) {
		return nil, apperror.Validation("expected_harvest_date cannot be before planting_date")
	}

	var (
		c          models.Cultivation
		sourceKind string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var land models.Land
		if err := tx.First(&land, in.LandID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("land %d not found", in.LandID)
			}
			return fmt.Errorf("load land %d: %w", in.LandID, err)
		}
		if land.UserID != farmerID {
			return apperror.Forbidden("land %d does not belong to you", in.LandID)
		}
		if in.AreaUsed > land.LandSize {
			return apperror.Validation("requested area %.2f exceeds the land size of %.2f acres", in.AreaUsed, land.LandSize)
		}

		master, err := findCropMaster(tx, crop)
		if err != nil {
			return err
		}

		src, err := quota.Resolve(tx, land, crop)
		if err != nil {
			return err
		}
		if src != nil {
			sourceKind = src.Kind()
			if err := src.Admit(tx, in.AreaUsed, farmerID); err != nil {
				return err
			}
			if err := src.Reserve(tx, in.AreaUsed, farmerID); err != nil {
				return err
			}
		}

		est := EstimateYield(master, land, in.AreaUsed, s.harvestTolerance)
		if expected == nil && planting != nil && master != nil && master.GrowthDurationDays != nil {
			t := planting.AddDate(0, 0, *master.GrowthDurationDays)
			expected = &t
		}

		c = models.Cultivation{
			UserID:                 farmerID,
			LandID:                 land.ID,
			ApprovalID:             NewApprovalID(s.now()),
			CropName:               crop,
			Variety:                strings.TrimSpace(in.Variety),
			AreaUsed:               in.AreaUsed,
			PlantingDate:           planting,
			ExpectedHarvestDate:    expected,
			Status:                 models.CultivationPlanned,
			EstimatedYield:         est.EstimatedYield,
			YieldUnit:              est.YieldUnit,
			MaxAllowedSaleQuantity: est.MaxAllowedSaleQuantity,
			Notes:                  strings.TrimSpace(in.Notes),
		}
		if src != nil {
			src.Bind(&c)
			remaining := max(src.RemainingArea(), 0)
			est.Advisory.CapacitySource = src.Kind()
			est.Advisory.RemainingArea = &remaining
			if q, ok := quota.QuotaOf(src); ok {
				est.Advisory.HarvestWindow = harvestWindow(q)
				est.Advisory.PriceGuidance = priceGuidance(q)
			}
		}
		c.Advisory = est.Advisory.JSON()

		if err := tx.Omit(clause.Associations).Create(&c).Error; err != nil {
			return fmt.Errorf("create cultivation: %w", err)
		}
		return nil
	})
	s.metrics.ObserveStart(sourceKind, err)
	if err != nil {
		return nil, err
	}

	s.log.Info("cultivation started",
		zap.Uint("cultivation_id", c.ID),
		zap.String("approval_id", c.ApprovalID),
		zap.Uint("user_id", farmerID),
		zap.String("crop", c.CropName),
		zap.Float64("area", c.AreaUsed))

	s.notifier.Notify(ctx, models.Notification{
		UserID:               farmerID,
		Type:                 models.NotificationApproval,
		Title:                "Cultivation approved",
		Message:              fmt.Sprintf("Your %s cultivation on %.2f acres is approved. Approval ID: %s", c.CropName, c.AreaUsed, c.ApprovalID),
		RelatedCultivationID: &c.ID,
	})
	return &c, nil
}

func findCropMaster(tx *gorm.DB, crop string) (*models.CropMaster, error) {
	var m models.CropMaster
	err := tx.Where("LOWER(crop_name) = LOWER(?) AND is_active = ?", crop, true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load crop master for %s: %w", crop, err)
	}
	return &m, nil
}

func harvestWindow(q models.AdminQuota) string {
	if q.HarvestSeasonStart == nil && q.HarvestSeasonEnd == nil {
		return ""
	}
	from, to := "open", "open"
	if q.HarvestSeasonStart != nil {
		from = q.HarvestSeasonStart.Format(dateutil.Layout)
	}
	if q.HarvestSeasonEnd != nil {
		to = q.HarvestSeasonEnd.Format(dateutil.Layout)
	}
	return from + " to " + to
}

func priceGuidance(q models.AdminQuota) string {
	switch {
	case q.MinPricePerUnit != nil && q.MaxPricePerUnit != nil:
		return fmt.Sprintf("%.2f - %.2f per %s", *q.MinPricePerUnit, *q.MaxPricePerUnit, q.PriceUnit)
	case q.MaxPricePerUnit != nil:
		return fmt.Sprintf("up to %.2f per %s", *q.MaxPricePerUnit, q.PriceUnit)
	case q.MinPricePerUnit != nil:
		return fmt.Sprintf("from %.2f per %s", *q.MinPricePerUnit, q.PriceUnit)
	default:
		return ""
	}
}

func loadOwned(db *gorm.DB, farmerID, id uint) (*models.Cultivation, error) {
	var c models.Cultivation
	err := db.First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("cultivation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load cultivation %d: %w", id, err)
	}
	if c.UserID != farmerID {
		return nil, apperror.Forbidden("cultivation %d does not belong to you", id)
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, farmerID, id uint) (*models.Cultivation, error) {
	return loadOwned(s.db.WithContext(ctx), farmerID, id)
}

func (s *Service) List(ctx context.Context, farmerID uint, status string) ([]models.Cultivation, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", farmerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Cultivation
	if err := q.Order("created_at desc, id desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list cultivations for user %d: %w", farmerID, err)
	}
	return out, nil
}

// transition moves a cultivation from one of from to to with a conditional
// update, so two racing requests cannot both succeed.
func transition(tx *gorm.DB, c *models.Cultivation, from []models.CultivationStatus, to models.CultivationStatus) error {
	res := tx.Model(&models.Cultivation{}).
		Where("id = ? AND status IN ?", c.ID, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("set cultivation %d to %s: %w", c.ID, to, res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.Cultivation
		if err := tx.Select("id", "status").First(&current, c.ID).Error; err != nil {
			return fmt.Errorf("reload cultivation %d: %w", c.ID, err)
		}
		return apperror.IllegalTransition("cultivation %d is %s and cannot become %s", c.ID, current.Status, to)
	}
	c.Status = to
	return nil
}

func (s *Service) Activate(ctx context.Context, farmerID, id uint) (*models.Cultivation, error) {
	var c *models.Cultivation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = loadOwned(tx, farmerID, id); err != nil {
			return err
		}
		return transition(tx, c, []models.CultivationStatus{models.CultivationPlanned}, models.CultivationActive)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cultivation activated", zap.Uint("cultivation_id", id))
	return c, nil
}

// Fail closes a cultivation as a crop failure. Like a harvest, the reserved
// area stays counted against the source.
func (s *Service) Fail(ctx context.Context, farmerID, id uint) (*models.Cultivation, error) {
	var c *models.Cultivation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = loadOwned(tx, farmerID, id); err != nil {
			return err
		}
		return transition(tx, c, openStatuses, models.CultivationFailed)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cultivation failed", zap.Uint("cultivation_id", id))
	return c, nil
}

// Cancel releases the cultivation's area back to its source and marks it
// cancelled in one transaction. Harvested cultivations cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, farmerID, id uint) (*models.Cultivation, error) {
	var (
		c        *models.Cultivation
		released string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = loadOwned(tx, farmerID, id); err != nil {
			return err
		}
		if c.Status == models.CultivationHarvested {
			return apperror.IllegalTransition("cultivation %d is already harvested and cannot be cancelled", id)
		}
		if err := transition(tx, c, openStatuses, models.CultivationCancelled); err != nil {
			return err
		}

		src, err := quota.SourceFor(tx, c)
		if err != nil {
			return err
		}
		if src == nil {
			return nil
		}
		if err := src.Release(tx, c); err != nil {
			return err
		}
		released = src.Kind()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if released != "" {
		s.metrics.ObserveRelease(released)
	}
	s.log.Info("cultivation cancelled",
		zap.Uint("cultivation_id", id),
		zap.Float64("released_area", c.AreaUsed))
	return c, nil
}
