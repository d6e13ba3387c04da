package models

import "time"

type ListingStatus string

const (
	ListingAvailable ListingStatus = "available"
	ListingSold      ListingStatus = "sold"
)

type CropListing struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	UserID        uint          `gorm:"index;not null" json:"user_id"`
	CultivationID uint          `gorm:"index;not null" json:"cultivation_id"`
	HarvestSaleID uint          `gorm:"index;not null" json:"harvest_sale_id"`
	CropName      string        `gorm:"size:100;not null" json:"crop_name"`
	Variety       string        `gorm:"size:100" json:"variety"`
	Quantity      float64       `gorm:"not null" json:"quantity"`
	QuantityUnit  string        `gorm:"size:20;default:kg" json:"quantity_unit"`
	PricePerUnit  float64       `gorm:"not null" json:"price_per_unit"` // admin price, not editable by the farmer
	Currency      string        `gorm:"size:10;default:INR" json:"currency"`
	Location      string        `gorm:"size:200" json:"location"`
	Status        ListingStatus `gorm:"size:20;index;not null;default:available" json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
