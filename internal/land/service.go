// Package land manages a farmer's registered parcels.
package land

import (
	"context"
	"errors"
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
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	State       string  `json:"state"`
	District    string  `json:"district"`
	Taluk       string  `json:"taluk"`
	Village     string  `json:"village"`
	LandSize    float64 `json:"land_size"`
	LandType    string  `json:"land_type"`
	SoilType    string  `json:"soil_type"`
	ClimateType string  `json:"climate_type"`
	WaterSource string  `json:"water_source"`
	Notes       string  `json:"notes"`
}

func (s *Service) Create(ctx context.Context, farmerID uint, in Input) (*models.Land, error) {
	l := models.Land{
		UserID:      farmerID,
		Name:        strings.TrimSpace(in.Name),
		Country:     strings.TrimSpace(in.Country),
		State:       strings.TrimSpace(in.State),
		District:    strings.TrimSpace(in.District),
		Taluk:       strings.TrimSpace(in.Taluk),
		Village:     strings.TrimSpace(in.Village),
		LandSize:    in.LandSize,
		LandType:    strings.TrimSpace(in.LandType),
		SoilType:    strings.TrimSpace(in.SoilType),
		ClimateType: strings.TrimSpace(in.ClimateType),
		WaterSource: strings.TrimSpace(in.WaterSource),
		Notes:       strings.TrimSpace(in.Notes),
	}
	if l.Country == "" {
		return nil, apperror.Validation("country is required")
	}
	if l.LandSize <= 0 {
		return nil, apperror.Validation("land_size must be greater than zero")
	}
	if l.Name == "" {
		l.Name = strings.Join(nonEmpty(l.Village, l.Taluk, l.District), " ")
		if l.Name == "" {
			l.Name = "Land"
		}
	}

	if err := s.db.WithContext(ctx).Create(&l).Error; err != nil {
		return nil, fmt.Errorf("create land: %w", err)
	}
	s.log.Info("land registered",
		zap.Uint("land_id", l.ID),
		zap.Uint("user_id", farmerID),
		zap.Float64("land_size", l.LandSize))
	return &l, nil
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) List(ctx context.Context, farmerID uint) ([]models.Land, error) {
	var out []models.Land
	if err := s.db.WithContext(ctx).Where("user_id = ?", farmerID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list lands for user %d: %w", farmerID, err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, farmerID, id uint) (*models.Land, error) {
	var l models.Land
	err := s.db.WithContext(ctx).First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("land %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load land %d: %w", id, err)
	}
	if l.UserID != farmerID {
		return nil, apperror.Forbidden("land %d does not belong to you", id)
	}
	return &l, nil
}
