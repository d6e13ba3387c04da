// Package pricing resolves the admin-fixed price of a crop in a district.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

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

// GetCropPrice returns the active price for crop in district, or nil when
// none is set. A non-empty asOf (YYYY-MM-DD) must fall inside the row's
// validity window; an unparsable asOf is ignored and the lookup runs without
// a date filter.
func (s *Service) GetCropPrice(ctx context.Context, crop, district, asOf string) (*models.CropPrice, error) {
	var day *time.Time
	if asOf = strings.TrimSpace(asOf); asOf != "" {
		t, err := time.Parse(dateutil.Layout, asOf)
		if err != nil {
			s.log.Warn("price lookup date ignored",
				zap.String("crop", crop),
				zap.String("district", district),
				zap.String("as_of", asOf))
		} else {
			day = &t
		}
	}
	return lookup(s.db.WithContext(ctx), crop, district, day)
}

func lookup(db *gorm.DB, crop, district string, day *time.Time) (*models.CropPrice, error) {
	var rows []models.CropPrice
	err := db.Where("is_active = ? AND LOWER(crop_name) = LOWER(?) AND LOWER(district) = LOWER(?)",
		true, strings.TrimSpace(crop), strings.TrimSpace(district)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load prices for %s/%s: %w", crop, district, err)
	}
	for i := range rows {
		if day == nil || dateutil.Within(*day, rows[i].ValidFrom, rows[i].ValidTo) {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// PriceAt is GetCropPrice for callers already inside a transaction.
func PriceAt(tx *gorm.DB, crop, district string, day time.Time) (*models.CropPrice, error) {
	return lookup(tx, crop, district, &day)
}

// AddUnitsSold bumps the sold counter of a price row by the listed quantity
// rounded to whole units.
func AddUnitsSold(tx *gorm.DB, priceID uint, quantity float64) error {
	n := int(math.Round(quantity))
	if n <= 0 {
		return nil
	}
	res := tx.Model(&models.CropPrice{}).Where("id = ?", priceID).
		UpdateColumn("units_sold", gorm.Expr("units_sold + ?", n))
	if res.Error != nil {
		return fmt.Errorf("update units sold on price %d: %w", priceID, res.Error)
	}
	return nil
}

type PriceInput struct {
	CropName     *string  `json:"crop_name"`
	CropType     *string  `json:"crop_type"`
	District     *string  `json:"district"`
	PricePerUnit *float64 `json:"price_per_unit"`
	Unit         *string  `json:"unit"`
	ValidFrom    *string  `json:"valid_from"`
	ValidTo      *string  `json:"valid_to"`
	IsActive     *bool    `json:"is_active"`
}

var priceEditable = []string{"crop_name", "crop_type", "district", "price_per_unit", "unit", "valid_from", "valid_to", "is_active"}

func (in PriceInput) apply(p *models.CropPrice) error {
	if in.CropName != nil {
		p.CropName = strings.TrimSpace(*in.CropName)
	}
	if in.CropType != nil {
		p.CropType = strings.TrimSpace(*in.CropType)
	}
	if in.District != nil {
		p.District = strings.TrimSpace(*in.District)
	}
	if in.Unit != nil {
		p.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.PricePerUnit != nil {
		p.PricePerUnit = *in.PricePerUnit
	}
	if in.ValidFrom != nil {
		t, err := dateutil.ParseOptional(*in.ValidFrom)
		if err != nil {
			return apperror.Validation("invalid valid_from %q, expected YYYY-MM-DD", *in.ValidFrom)
		}
		p.ValidFrom = t
	}
	if in.ValidTo != nil {
		t, err := dateutil.ParseOptional(*in.ValidTo)
		if err != nil {
			return apperror.Validation("invalid valid_to %q, expected YYYY-MM-DD", *in.ValidTo)
		}
		p.ValidTo = t
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return nil
}

func validatePrice(p *models.CropPrice) error {
	if p.CropName == "" || p.District == "" {
		return apperror.Validation("crop_name and district are required")
	}
	if p.PricePerUnit <= 0 {
		return apperror.Validation("price_per_unit must be greater than zero")
	}
	if p.ValidFrom != nil && p.ValidTo != nil && p.ValidTo.Before(*p.ValidFrom) {
		return apperror.Validation("valid_to cannot be before valid_from")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in PriceInput) (*models.CropPrice, error) {
	p := models.CropPrice{Unit: "kg", IsActive: true}
	if err := in.apply(&p); err != nil {
		return nil, err
	}
	if err := validatePrice(&p); err != nil {
		return nil, err
	}
	p.UnitsSold = 0

	wantActive := p.IsActive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create price: %w", err)
		}
		if !wantActive {
			if err := tx.Model(&p).UpdateColumn("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivate price %d: %w", p.ID, err)
			}
			p.IsActive = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("crop price created", zap.Uint("price_id", p.ID), zap.String("crop", p.CropName), zap.String("district", p.District))
	return &p, nil
}

func (s *Service) get(db *gorm.DB, id uint) (*models.CropPrice, error) {
	var p models.CropPrice
	err := db.First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("price %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load price %d: %w", id, err)
	}
	return &p, nil
}

func (s *Service) Update(ctx context.Context, id uint, in PriceInput) (before, after *models.CropPrice, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.get(tx, id)
		if err != nil {
			return err
		}
		prev := *p
		before = &prev
		if err := in.apply(p); err != nil {
			return err
		}
		if err := validatePrice(p); err != nil {
			return err
		}
		if err := tx.Model(p).Select(priceEditable).Updates(p).Error; err != nil {
			return fmt.Errorf("update price %d: %w", id, err)
		}
		after = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *Service) Delete(ctx context.Context, id uint) (*models.CropPrice, error) {
	p, err := s.get(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(p).Error; err != nil {
		return nil, fmt.Errorf("delete price %d: %w", id, err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, crop, district string) ([]models.CropPrice, error) {
	q := s.db.WithContext(ctx).Model(&models.CropPrice{})
	if crop != "" {
		q = q.Where("LOWER(crop_name) = LOWER(?)", crop)
	}
	if district != "" {
		q = q.Where("LOWER(district) = LOWER(?)", district)
	}
	var out []models.CropPrice
	if err := q.Order("crop_name, district, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return out, nil
}
