package models

import "time"

// RegionLimit: flat (district, crop) limit kept for records created before
// AdminQuota existed.
type RegionLimit struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	District                string    `gorm:"size:100;index;not null" json:"district"`
	CropName                string    `gorm:"size:100;not null" json:"crop_name"`
	MaxArea                 float64   `gorm:"not null" json:"max_area"`
	MaxCultivationCount     int       `gorm:"not null;default:0" json:"max_cultivation_count"` // 0 = unlimited
	CurrentAreaUsed         float64   `gorm:"not null;default:0" json:"current_area_used"`
	CurrentCultivationCount int       `gorm:"not null;default:0" json:"current_cultivation_count"`
	IsActive                bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (l RegionLimit) RemainingArea() float64 {
	return l.MaxArea - l.CurrentAreaUsed
}
