package models

import "time"

// CropPrice: admin-fixed price for a crop in a district. ValidFrom/ValidTo
// are optional and open-ended when nil.
type CropPrice struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CropName     string     `gorm:"size:100;index;not null" json:"crop_name"`
	CropType     string     `gorm:"size:50" json:"crop_type"`
	District     string     `gorm:"size:100;index;not null" json:"district"`
	PricePerUnit float64    `gorm:"not null" json:"price_per_unit"`
	Unit         string     `gorm:"size:20;default:kg" json:"unit"`
	UnitsSold    int        `gorm:"not null;default:0" json:"units_sold"`
	ValidFrom    *time.Time `json:"valid_from"`
	ValidTo      *time.Time `json:"valid_to"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
