package models

import "time"

// CropMaster: read-only reference data for yield estimation.
type CropMaster struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CropName           string    `gorm:"size:100;uniqueIndex;not null" json:"crop_name"`
	CropType           string    `gorm:"size:50" json:"crop_type"`
	ScientificName     string    `gorm:"size:150" json:"scientific_name"`
	AvgYieldPerAcre    *float64  `json:"avg_yield_per_acre"`
	YieldUnit          string    `gorm:"size:20;default:kg" json:"yield_unit"`
	GrowthDurationDays *int      `json:"growth_duration_days"`
	WaterRequirement   string    `gorm:"size:50" json:"water_requirement"`
	Season             string    `gorm:"size:50" json:"season"`
	IsActive           bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
