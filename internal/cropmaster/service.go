// Package cropmaster maintains the crop reference data used for yield
// estimates.
package cropmaster

import (
	"context"
	"fmt"
	"strings"

	"agribalance-backend/internal/apperror"
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

type Input struct {
	CropName           string   `json:"crop_name"`
	CropType           string   `json:"crop_type"`
	ScientificName     string   `json:"scientific_name"`
	AvgYieldPerAcre    *float64 `json:"avg_yield_per_acre"`
	YieldUnit          string   `json:"yield_unit"`
	GrowthDurationDays *int     `json:"growth_duration_days"`
	WaterRequirement   string   `json:"water_requirement"`
	Season             string   `json:"season"`
	IsActive           *bool    `json:"is_active"` // defaults to true
}

func (s *Service) Create(ctx context.Context, in Input) (*models.CropMaster, error) {
	m := models.CropMaster{
		CropName:           strings.TrimSpace(in.CropName),
		CropType:           strings.TrimSpace(in.CropType),
		ScientificName:     strings.TrimSpace(in.ScientificName),
		AvgYieldPerAcre:    in.AvgYieldPerAcre,
		YieldUnit:          strings.TrimSpace(in.YieldUnit),
		GrowthDurationDays: in.GrowthDurationDays,
		WaterRequirement:   strings.TrimSpace(in.WaterRequirement),
		Season:             strings.TrimSpace(in.Season),
		IsActive:           in.IsActive == nil || *in.IsActive,
	}
	if m.CropName == "" {
		return nil, apperror.Validation("crop_name is required")
	}
	if m.AvgYieldPerAcre != nil && *m.AvgYieldPerAcre < 0 {
		return nil, apperror.Validation("avg_yield_per_acre cannot be negative")
	}
	if m.GrowthDurationDays != nil && *m.GrowthDurationDays <= 0 {
		return nil, apperror.Validation("growth_duration_days must be greater than zero")
	}
	if m.YieldUnit == "" {
		m.YieldUnit = "kg"
	}

	wantActive := m.IsActive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dup int64
		if err := tx.Model(&models.CropMaster{}).Where("LOWER(crop_name) = LOWER(?)", m.CropName).Count(&dup).Error; err != nil {
			return fmt.Errorf("check crop master %s: %w", m.CropName, err)
		}
		if dup > 0 {
			return apperror.Validation("crop %s already exists", m.CropName)
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("create crop master %s: %w", m.CropName, err)
		}
		// Create fills is_active from its column default, so false is
		// written explicitly.
		if !wantActive {
			if err := tx.Model(&m).UpdateColumn("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivate crop master %s: %w", m.CropName, err)
			}
			m.IsActive = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("crop master added", zap.Uint("crop_master_id", m.ID), zap.String("crop", m.CropName))
	return &m, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]models.CropMaster, error) {
	q := s.db.WithContext(ctx).Model(&models.CropMaster{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.CropMaster
	if err := q.Order("crop_name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list crop master: %w", err)
	}
	return out, nil
}
