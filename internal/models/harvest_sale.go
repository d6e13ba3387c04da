package models

import "time"

type HarvestSaleStatus string

const (
	HarvestSalePending  HarvestSaleStatus = "pending"
	HarvestSaleApproved HarvestSaleStatus = "approved"
	HarvestSaleRejected HarvestSaleStatus = "rejected"
)

// HarvestSale: one per cultivation, checked by lookup before insert.
type HarvestSale struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"index;not null" json:"user_id"`
	CultivationID uint        `gorm:"index;not null" json:"cultivation_id"`
	Cultivation   Cultivation `json:"-"`

	ActualYieldQuantity float64  `gorm:"not null" json:"actual_yield_quantity"`
	SellingQuantity     float64  `gorm:"not null" json:"selling_quantity"`
	ApprovedQuantity    *float64 `json:"approved_quantity"`
	YieldUnit           string   `gorm:"size:20;default:kg" json:"yield_unit"`

	ExpectedPricePerUnit *float64 `json:"expected_price_per_unit"`
	ExpectedRevenue      *float64 `json:"expected_revenue"`

	Status     HarvestSaleStatus `gorm:"size:20;index;not null;default:pending" json:"status"`
	AdminNotes string            `gorm:"type:text" json:"admin_notes"`
	ReviewedBy *uint             `json:"reviewed_by"`
	ReviewedAt *time.Time        `json:"reviewed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemainingQuantity is the ceiling for listings created from this sale.
func (s HarvestSale) RemainingQuantity() float64 {
	if s.ApprovedQuantity != nil {
		return *s.ApprovedQuantity
	}
	return s.ActualYieldQuantity
}
