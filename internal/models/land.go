package models

import "time"

// Land: a farmer's parcel. The location hierarchy drives quota resolution.
type Land struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Country     string    `gorm:"size:100;not null" json:"country"`
	State       string    `gorm:"size:100" json:"state"`
	District    string    `gorm:"size:100;index" json:"district"`
	Taluk       string    `gorm:"size:100" json:"taluk"`
	Village     string    `gorm:"size:100" json:"village"`
	LandSize    float64   `gorm:"not null" json:"land_size"` // acres
	LandType    string    `gorm:"size:50" json:"land_type"`  // irrigated, rain-fed
	SoilType    string    `gorm:"size:50" json:"soil_type"`
	ClimateType string    `gorm:"size:50" json:"climate_type"`
	WaterSource string    `gorm:"size:100" json:"water_source"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
