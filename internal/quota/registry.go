package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/dateutil"
	"agribalance-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// QuotaInput is the admin payload for create and update. Nil fields are left
// unchanged on update; optional numeric fields listed in Clear are reset to
// null.
type QuotaInput struct {
	Country  *string `json:"country"`
	State    *string `json:"state"`
	District *string `json:"district"`
	Taluk    *string `json:"taluk"`
	Village  *string `json:"village"`
	CropName *string `json:"crop_name"`

	HarvestSeasonStart *string `json:"harvest_season_start"` // YYYY-MM-DD, "" clears
	HarvestSeasonEnd   *string `json:"harvest_season_end"`

	TotalAllowedArea      *float64 `json:"total_allowed_area"`
	AreaUnit              *string  `json:"area_unit"`
	MaxPerFarmer          *float64 `json:"max_per_farmer"`
	PredictedDemandVolume *float64 `json:"predicted_demand_volume"`
	MinPricePerUnit       *float64 `json:"min_price_per_unit"`
	MaxPricePerUnit       *float64 `json:"max_price_per_unit"`
	PriceUnit             *string  `json:"price_unit"`
	IsActive              *bool    `json:"is_active"`

	Clear []string `json:"clear"`
}

// Optional numeric columns that Clear may reset.
var quotaClearable = map[string]func(*models.AdminQuota){
	"max_per_farmer":          func(q *models.AdminQuota) { q.MaxPerFarmer = nil },
	"predicted_demand_volume": func(q *models.AdminQuota) { q.PredictedDemandVolume = nil },
	"min_price_per_unit":      func(q *models.AdminQuota) { q.MinPricePerUnit = nil },
	"max_price_per_unit":      func(q *models.AdminQuota) { q.MaxPricePerUnit = nil },
}

func (in QuotaInput) sets(field string) bool {
	switch field {
	case "max_per_farmer":
		return in.MaxPerFarmer != nil
	case "predicted_demand_volume":
		return in.PredictedDemandVolume != nil
	case "min_price_per_unit":
		return in.MinPricePerUnit != nil
	case "max_price_per_unit":
		return in.MaxPricePerUnit != nil
	}
	return false
}

// Columns an admin may edit. Allocation counters are absent on purpose: they
// only move through the ledger.
var quotaEditable = []string{
	"country", "state", "district", "taluk", "village", "crop_name",
	"harvest_season_start", "harvest_season_end",
	"total_allowed_area", "area_unit", "max_per_farmer", "predicted_demand_volume",
	"min_price_per_unit", "max_price_per_unit", "price_unit", "is_active",
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func (in QuotaInput) apply(q *models.AdminQuota) error {
	setString(&q.Country, in.Country)
	setString(&q.State, in.State)
	setString(&q.District, in.District)
	setString(&q.Taluk, in.Taluk)
	setString(&q.Village, in.Village)
	setString(&q.CropName, in.CropName)
	setString(&q.AreaUnit, in.AreaUnit)
	setString(&q.PriceUnit, in.PriceUnit)

	if in.HarvestSeasonStart != nil {
		t, err := dateutil.ParseOptional(*in.HarvestSeasonStart)
		if err != nil {
			return apperror.Validation("invalid harvest_season_start %q, expected YYYY-MM-DD", *in.HarvestSeasonStart)
		}
		q.HarvestSeasonStart = t
	}
	if in.HarvestSeasonEnd != nil {
		t, err := dateutil.ParseOptional(*in.HarvestSeasonEnd)
		if err != nil {
			return apperror.Validation("invalid harvest_season_end %q, expected YYYY-MM-DD", *in.HarvestSeasonEnd)
		}
		q.HarvestSeasonEnd = t
	}

	if in.TotalAllowedArea != nil {
		q.TotalAllowedArea = *in.TotalAllowedArea
	}
	if in.MaxPerFarmer != nil {
		q.MaxPerFarmer = in.MaxPerFarmer
	}
	if in.PredictedDemandVolume != nil {
		q.PredictedDemandVolume = in.PredictedDemandVolume
	}
	if in.MinPricePerUnit != nil {
		q.MinPricePerUnit = in.MinPricePerUnit
	}
	if in.MaxPricePerUnit != nil {
		q.MaxPricePerUnit = in.MaxPricePerUnit
	}
	if in.IsActive != nil {
		q.IsActive = *in.IsActive
	}

	for _, field := range in.Clear {
		field = strings.TrimSpace(field)
		reset, ok := quotaClearable[field]
		if !ok {
			return apperror.Validation("%q cannot be cleared", field)
		}
		if in.sets(field) {
			return apperror.Validation("%s is both set and cleared", field)
		}
		reset(q)
	}
	return nil
}

// scopeChanged reports whether an edit moves the quota to another crop or
// location.
func scopeChanged(a, b models.AdminQuota) bool {
	return !same(a.CropName, b.CropName) ||
		!same(a.Country, b.Country) ||
		!same(a.State, b.State) ||
		!same(a.District, b.District) ||
		!same(a.Taluk, b.Taluk) ||
		!same(a.Village, b.Village)
}

func validateQuota(q *models.AdminQuota) error {
	if q.CropName == "" {
		return apperror.Validation("crop_name is required")
	}
	if blank(q.Country) && blank(q.State) && blank(q.District) && blank(q.Taluk) && blank(q.Village) {
		return apperror.Validation("at least one location field is required")
	}
	if q.TotalAllowedArea <= 0 {
		return apperror.Validation("total_allowed_area must be greater than zero")
	}
	if q.MaxPerFarmer != nil && *q.MaxPerFarmer <= 0 {
		return apperror.Validation("max_per_farmer must be greater than zero")
	}
	if q.HarvestSeasonStart != nil && q.HarvestSeasonEnd != nil && q.HarvestSeasonEnd.Before(*q.HarvestSeasonStart) {
		return apperror.Validation("harvest_season_end cannot be before harvest_season_start")
	}
	if q.MinPricePerUnit != nil && q.MaxPricePerUnit != nil && *q.MinPricePerUnit > *q.MaxPricePerUnit {
		return apperror.Validation("min_price_per_unit cannot exceed max_price_per_unit")
	}
	return nil
}

func (s *Service) CreateQuota(ctx context.Context, in QuotaInput) (*models.AdminQuota, error) {
	q := models.AdminQuota{AreaUnit: "acres", PriceUnit: "kg", IsActive: true}
	if err := in.apply(&q); err != nil {
		return nil, err
	}
	if err := validateQuota(&q); err != nil {
		return nil, err
	}
	q.AllocatedArea = 0
	q.AllocatedFarmerCount = 0

	// Create fills is_active from its column default, so the requested value
	// is captured first and false is written explicitly.
	wantActive := q.IsActive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&q).Error; err != nil {
			return fmt.Errorf("create quota: %w", err)
		}
		if !wantActive {
			if err := tx.Model(&q).UpdateColumn("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivate quota %d: %w", q.ID, err)
			}
			q.IsActive = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("quota created",
		zap.Uint("quota_id", q.ID),
		zap.String("crop", q.CropName),
		zap.Float64("total_allowed_area", q.TotalAllowedArea))
	return &q, nil
}

func (s *Service) GetQuota(ctx context.Context, id uint) (*models.AdminQuota, error) {
	var q models.AdminQuota
	err := s.db.WithContext(ctx).First(&q, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("quota %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load quota %d: %w", id, err)
	}
	return &q, nil
}

type QuotaFilter struct {
	CropName   string
	District   string
	ActiveOnly bool
}

func (s *Service) ListQuotas(ctx context.Context, f QuotaFilter) ([]models.AdminQuota, error) {
	q := s.db.WithContext(ctx).Model(&models.AdminQuota{})
	if f.CropName != "" {
		q = q.Where("LOWER(crop_name) = LOWER(?)", f.CropName)
	}
	if f.District != "" {
		q = q.Where("LOWER(district) = LOWER(?)", f.District)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var quotas []models.AdminQuota
	if err := q.Order("crop_name, id").Find(&quotas).Error; err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	return quotas, nil
}

// UpdateQuota applies an admin edit under the quota's row lock. The total may
// never drop below what is already allocated, and crop or location stay fixed
// while any non-cancelled cultivation holds area on the quota.
func (s *Service) UpdateQuota(ctx context.Context, id uint, in QuotaInput) (before, after *models.AdminQuota, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := lockQuota(tx, id)
		if err != nil {
			return err
		}
		prev := *q
		before = &prev

		if err := in.apply(q); err != nil {
			return err
		}
		if err := validateQuota(q); err != nil {
			return err
		}
		if exceeds(q.AllocatedArea, q.TotalAllowedArea) {
			return apperror.Integrity("total_allowed_area %.2f cannot be below the allocated area %.2f", q.TotalAllowedArea, q.AllocatedArea)
		}
		if scopeChanged(prev, *q) {
			var holders int64
			err := tx.Model(&models.Cultivation{}).
				Where("quota_id = ? AND status <> ?", id, models.CultivationCancelled).
				Count(&holders).Error
			if err != nil {
				return fmt.Errorf("count cultivations on quota %d: %w", id, err)
			}
			if holders > 0 {
				return apperror.Integrity("crop and location cannot change while %d cultivation(s) hold area on quota %d", holders, id)
			}
		}
		if err := tx.Model(q).Select(quotaEditable).Updates(q).Error; err != nil {
			return fmt.Errorf("update quota %d: %w", id, err)
		}
		after = q
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("quota updated", zap.Uint("quota_id", id), zap.Float64("total_allowed_area", after.TotalAllowedArea))
	return before, after, nil
}

// DeleteQuota soft-deletes a quota that no open cultivation depends on.
func (s *Service) DeleteQuota(ctx context.Context, id uint) (*models.AdminQuota, error) {
	var deleted *models.AdminQuota
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := lockQuota(tx, id)
		if err != nil {
			return err
		}
		var open int64
		err = tx.Model(&models.Cultivation{}).
			Where("quota_id = ? AND status IN ?", id, []models.CultivationStatus{models.CultivationPlanned, models.CultivationActive}).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("count cultivations on quota %d: %w", id, err)
		}
		if open > 0 {
			return apperror.Integrity("quota %d still has %d active cultivation(s)", id, open)
		}
		if err := tx.Delete(q).Error; err != nil {
			return fmt.Errorf("delete quota %d: %w", id, err)
		}
		deleted = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("quota deleted", zap.Uint("quota_id", id))
	return deleted, nil
}

// RegionLimitInput mirrors QuotaInput for the legacy table.
type RegionLimitInput struct {
	District            *string  `json:"district"`
	CropName            *string  `json:"crop_name"`
	MaxArea             *float64 `json:"max_area"`
	MaxCultivationCount *int     `json:"max_cultivation_count"`
	IsActive            *bool    `json:"is_active"`
}

var regionLimitEditable = []string{"district", "crop_name", "max_area", "max_cultivation_count", "is_active"}

func (in RegionLimitInput) apply(l *models.RegionLimit) {
	setString(&l.District, in.District)
	setString(&l.CropName, in.CropName)
	if in.MaxArea != nil {
		l.MaxArea = *in.MaxArea
	}
	if in.MaxCultivationCount != nil {
		l.MaxCultivationCount = *in.MaxCultivationCount
	}
	if in.IsActive != nil {
		l.IsActive = *in.IsActive
	}
}

func validateRegionLimit(l *models.RegionLimit) error {
	if l.District == "" || l.CropName == "" {
		return apperror.Validation("district and crop_name are required")
	}
	if l.MaxArea <= 0 {
		return apperror.Validation("max_area must be greater than zero")
	}
	if l.MaxCultivationCount < 0 {
		return apperror.Validation("max_cultivation_count cannot be negative")
	}
	return nil
}

func (s *Service) CreateRegionLimit(ctx context.Context, in RegionLimitInput) (*models.RegionLimit, error) {
	l := models.RegionLimit{IsActive: true}
	in.apply(&l)
	if err := validateRegionLimit(&l); err != nil {
		return nil, err
	}

	wantActive := l.IsActive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&l).Error; err != nil {
			return fmt.Errorf("create region limit: %w", err)
		}
		if !wantActive {
			if err := tx.Model(&l).UpdateColumn("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivate region limit %d: %w", l.ID, err)
			}
			l.IsActive = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("region limit created", zap.Uint("region_limit_id", l.ID), zap.String("district", l.District), zap.String("crop", l.CropName))
	return &l, nil
}

func (s *Service) ListRegionLimits(ctx context.Context) ([]models.RegionLimit, error) {
	var limits []models.RegionLimit
	if err := s.db.WithContext(ctx).Order("district, crop_name").Find(&limits).Error; err != nil {
		return nil, fmt.Errorf("list region limits: %w", err)
	}
	return limits, nil
}

func (s *Service) UpdateRegionLimit(ctx context.Context, id uint, in RegionLimitInput) (before, after *models.RegionLimit, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := lockRegionLimit(tx, id)
		if err != nil {
			return err
		}
		prev := *l
		before = &prev

		in.apply(l)
		if err := validateRegionLimit(l); err != nil {
			return err
		}
		if exceeds(l.CurrentAreaUsed, l.MaxArea) {
			return apperror.Integrity("max_area %.2f cannot be below the area in use %.2f", l.MaxArea, l.CurrentAreaUsed)
		}
		if l.MaxCultivationCount > 0 && l.MaxCultivationCount < l.CurrentCultivationCount {
			return apperror.Integrity("max_cultivation_count %d cannot be below the current count %d", l.MaxCultivationCount, l.CurrentCultivationCount)
		}
		if err := tx.Model(l).Select(regionLimitEditable).Updates(l).Error; err != nil {
			return fmt.Errorf("update region limit %d: %w", id, err)
		}
		after = l
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("region limit updated", zap.Uint("region_limit_id", id))
	return before, after, nil
}

func (s *Service) DeleteRegionLimit(ctx context.Context, id uint) (*models.RegionLimit, error) {
	var deleted *models.RegionLimit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := lockRegionLimit(tx, id)
		if err != nil {
			return err
		}
		var open int64
		err = tx.Model(&models.Cultivation{}).
			Where("region_limit_id = ? AND status IN ?", id, []models.CultivationStatus{models.CultivationPlanned, models.CultivationActive}).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("count cultivations on region limit %d: %w", id, err)
		}
		if open > 0 {
			return apperror.Integrity("region limit %d still has %d active cultivation(s)", id, open)
		}
		if err := tx.Delete(l).Error; err != nil {
			return fmt.Errorf("delete region limit %d: %w", id, err)
		}
		deleted = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("region limit deleted", zap.Uint("region_limit_id", id))
	return deleted, nil
}
