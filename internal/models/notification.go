package models

import "time"

type NotificationType string

const (
	NotificationApproval  NotificationType = "approval"
	NotificationRejection NotificationType = "rejection"
)

type Notification struct {
	ID                   uint             `gorm:"primaryKey" json:"id"`
	UserID               uint             `gorm:"index;not null" json:"user_id"`
	Type                 NotificationType `gorm:"size:30;not null" json:"type"`
	Title                string           `gorm:"size:200;not null" json:"title"`
	Message              string           `gorm:"type:text" json:"message"`
	RelatedCultivationID *uint            `json:"related_cultivation_id"`
	RelatedHarvestSaleID *uint            `json:"related_harvest_sale_id"`
	IsRead               bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt            time.Time        `json:"created_at"`
}
