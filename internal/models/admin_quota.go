package models

import (
	"time"

	"gorm.io/gorm"
)

// AdminQuota: cultivation area cap for a (location, crop, season).
// Empty location fields mean "not scoped at this level".
// AllocatedArea / AllocatedFarmerCount are only touched by the quota ledger.
type AdminQuota struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Country  string `gorm:"size:100" json:"country"`
	State    string `gorm:"size:100" json:"state"`
	District string `gorm:"size:100;index" json:"district"`
	Taluk    string `gorm:"size:100" json:"taluk"`
	Village  string `gorm:"size:100" json:"village"`
	CropName string `gorm:"size:100;index;not null" json:"crop_name"`

	HarvestSeasonStart *time.Time `json:"harvest_season_start"`
	HarvestSeasonEnd   *time.Time `json:"harvest_season_end"`

	TotalAllowedArea     float64  `gorm:"not null" json:"total_allowed_area"`
	AreaUnit             string   `gorm:"size:20;default:acres" json:"area_unit"`
	AllocatedArea        float64  `gorm:"not null;default:0" json:"allocated_area"`
	AllocatedFarmerCount int      `gorm:"not null;default:0" json:"allocated_farmer_count"`
	MaxPerFarmer         *float64 `json:"max_per_farmer"`

	PredictedDemandVolume *float64 `json:"predicted_demand_volume"`
	MinPricePerUnit       *float64 `json:"min_price_per_unit"`
	MaxPricePerUnit       *float64 `json:"max_price_per_unit"`
	PriceUnit             string   `gorm:"size:20;default:kg" json:"price_unit"`

	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (q AdminQuota) RemainingArea() float64 {
	return q.TotalAllowedArea - q.AllocatedArea
}
