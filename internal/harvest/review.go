package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReviewInput struct {
	ApprovedQuantity *float64 `json:"approved_quantity"` // defaults to the selling quantity
	AdminNotes       string   `json:"admin_notes"`
}

const defaultRejectNote = "Rejected by admin"

func loadSale(tx *gorm.DB, id uint) (*models.HarvestSale, error) {
	var sale models.HarvestSale
	err := tx.First(&sale, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("harvest sale %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load harvest sale %d: %w", id, err)
	}
	return &sale, nil
}

// review moves a pending sale to its final status. The pending guard sits in
// the UPDATE itself, so a sale is reviewed at most once.
func (s *Service) review(ctx context.Context, adminID, saleID uint, status models.HarvestSaleStatus, decide func(*models.HarvestSale) error) (before, after *models.HarvestSale, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sale, err := loadSale(tx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != models.HarvestSalePending {
			return apperror.IllegalTransition("harvest sale %d is already %s", saleID, sale.Status)
		}
		prev := *sale
		before = &prev

		if err := decide(sale); err != nil {
			return err
		}
		now := s.now()
		sale.Status = status
		sale.ReviewedBy = &adminID
		sale.ReviewedAt = &now

		res := tx.Model(&models.HarvestSale{}).
			Where("id = ? AND status = ?", saleID, models.HarvestSalePending).
			Updates(map[string]any{
				"status":            sale.Status,
				"approved_quantity": sale.ApprovedQuantity,
				"admin_notes":       sale.AdminNotes,
				"reviewed_by":       adminID,
				"reviewed_at":       now,
			})
		if res.Error != nil {
			return fmt.Errorf("review harvest sale %d: %w", saleID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.IllegalTransition("harvest sale %d was reviewed concurrently", saleID)
		}
		after = sale
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *Service) cropName(ctx context.Context, cultivationID uint) string {
	var c models.Cultivation
	if err := s.db.WithContext(ctx).Select("id", "crop_name").First(&c, cultivationID).Error; err != nil {
		return "your crop"
	}
	return c.CropName
}

// Approve accepts a pending sale. The approved quantity may trim the selling
// quantity but never exceed it.
func (s *Service) Approve(ctx context.Context, adminID, saleID uint, in ReviewInput) (before, after *models.HarvestSale, err error) {
	before, after, err = s.review(ctx, adminID, saleID, models.HarvestSaleApproved, func(sale *models.HarvestSale) error {
		qty := sale.SellingQuantity
		if in.ApprovedQuantity != nil {
			qty = *in.ApprovedQuantity
		}
		if qty <= 0 || qty > sale.SellingQuantity {
			return apperror.Validation("approved quantity must be above zero and at most the selling quantity %.2f", sale.SellingQuantity)
		}
		sale.ApprovedQuantity = &qty
		sale.AdminNotes = strings.TrimSpace(in.AdminNotes)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.ObserveReview(string(models.HarvestSaleApproved))
	s.log.Info("harvest sale approved", zap.Uint("harvest_sale_id", saleID), zap.Float64("approved_quantity", *after.ApprovedQuantity))
	s.notifier.Notify(ctx, models.Notification{
		UserID: after.UserID,
		Type:   models.NotificationApproval,
		Title:  "Harvest sale approved",
		Message: fmt.Sprintf("Your harvest sale for %s has been approved. Approved quantity: %.2f %s",
			s.cropName(ctx, after.CultivationID), *after.ApprovedQuantity, after.YieldUnit),
		RelatedCultivationID: &after.CultivationID,
		RelatedHarvestSaleID: &after.ID,
	})
	return before, after, nil
}

func (s *Service) Reject(ctx context.Context, adminID, saleID uint, in ReviewInput) (before, after *models.HarvestSale, err error) {
	before, after, err = s.review(ctx, adminID, saleID, models.HarvestSaleRejected, func(sale *models.HarvestSale) error {
		sale.AdminNotes = strings.TrimSpace(in.AdminNotes)
		if sale.AdminNotes == "" {
			sale.AdminNotes = defaultRejectNote
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.ObserveReview(string(models.HarvestSaleRejected))
	s.log.Info("harvest sale rejected", zap.Uint("harvest_sale_id", saleID))
	s.notifier.Notify(ctx, models.Notification{
		UserID: after.UserID,
		Type:   models.NotificationRejection,
		Title:  "Harvest sale rejected",
		Message: fmt.Sprintf("Your harvest sale for %s has been rejected. Reason: %s",
			s.cropName(ctx, after.CultivationID), after.AdminNotes),
		RelatedCultivationID: &after.CultivationID,
		RelatedHarvestSaleID: &after.ID,
	})
	return before, after, nil
}
