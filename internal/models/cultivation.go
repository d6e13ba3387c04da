package models

import (
	"time"

	"gorm.io/datatypes"
)

type CultivationStatus string

const (
	CultivationPlanned   CultivationStatus = "planned"
	CultivationActive    CultivationStatus = "active"
	CultivationHarvested CultivationStatus = "harvested"
	CultivationFailed    CultivationStatus = "failed"
	CultivationCancelled CultivationStatus = "cancelled"
)

// Open reports whether the cultivation can still be harvested, failed or cancelled.
func (s CultivationStatus) Open() bool {
	return s == CultivationPlanned || s == CultivationActive
}

type Cultivation struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"index;not null" json:"user_id"`
	LandID uint `gorm:"index;not null" json:"land_id"`
	Land   Land `json:"-"`

	// At most one of QuotaID / RegionLimitID is set; both nil means the
	// cultivation was started without any capacity restriction.
	QuotaID       *uint       `gorm:"index" json:"quota_id"`
	Quota         *AdminQuota `json:"-"`
	RegionLimitID *uint       `gorm:"index" json:"region_limit_id"`

	ApprovalID string  `gorm:"size:40;uniqueIndex;not null" json:"approval_id"`
	CropName   string  `gorm:"size:100;not null" json:"crop_name"`
	Variety    string  `gorm:"size:100" json:"variety"`
	AreaUsed   float64 `gorm:"not null" json:"area_used"`

	PlantingDate        *time.Time `json:"planting_date"`
	ExpectedHarvestDate *time.Time `json:"expected_harvest_date"`
	ActualHarvestDate   *time.Time `json:"actual_harvest_date"`

	Status                 CultivationStatus `gorm:"size:20;index;not null;default:planned" json:"status"`
	EstimatedYield         *float64          `json:"estimated_yield"`
	ActualYield            *float64          `json:"actual_yield"`
	YieldUnit              string            `gorm:"size:20;default:kg" json:"yield_unit"`
	MaxAllowedSaleQuantity *float64          `json:"max_allowed_sale_quantity"`

	Advisory datatypes.JSON `json:"advisory"`
	Notes    string         `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
