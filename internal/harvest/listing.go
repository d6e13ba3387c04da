package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"
	"agribalance-backend/internal/pricing"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListingInput struct {
	Quantity float64 `json:"quantity"`
}

// CreateListing offers part of an approved sale on the marketplace. The total
// listed from one sale stays within its remaining quantity, and the price is
// always the admin price for the land's district.
func (s *Service) CreateListing(ctx context.Context, farmerID, saleID uint, in ListingInput) (*models.CropListing, error) {
	if in.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be greater than zero")
	}

	var listing models.CropListing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.HarvestSale{}).Where("id = ?", saleID).UpdateColumn("updated_at", time.Now())
		if res.Error != nil {
			return fmt.Errorf("lock harvest sale %d: %w", saleID, res.Error)
		}
		sale, err := loadSale(tx, saleID)
		if err != nil {
			return err
		}
		if sale.UserID != farmerID {
			return apperror.Forbidden("harvest sale %d does not belong to you", saleID)
		}
		if sale.Status != models.HarvestSaleApproved {
			return apperror.IllegalTransition("harvest sale %d is %s, only approved sales can be listed", saleID, sale.Status)
		}

		var listed float64
		err = tx.Model(&models.CropListing{}).
			Where("harvest_sale_id = ?", saleID).
			Select("COALESCE(SUM(quantity), 0)").
			Scan(&listed).Error
		if err != nil {
			return fmt.Errorf("sum listings for sale %d: %w", saleID, err)
		}
		if remaining := sale.RemainingQuantity() - listed; in.Quantity > remaining {
			return apperror.Validation("only %.2f %s left to list from this sale", max(remaining, 0), sale.YieldUnit)
		}

		var c models.Cultivation
		if err := tx.Preload("Land").First(&c, sale.CultivationID).Error; err != nil {
			return fmt.Errorf("load cultivation %d: %w", sale.CultivationID, err)
		}
		price, err := pricing.PriceAt(tx, c.CropName, c.Land.District, s.now())
		if err != nil {
			return err
		}
		if price == nil {
			return apperror.Validation("no price set for %s in %s, contact the admin", c.CropName, c.Land.District)
		}

		listing = models.CropListing{
			UserID:        farmerID,
			CultivationID: c.ID,
			HarvestSaleID: sale.ID,
			CropName:      c.CropName,
			Variety:       c.Variety,
			Quantity:      in.Quantity,
			QuantityUnit:  sale.YieldUnit,
			PricePerUnit:  price.PricePerUnit,
			Currency:      "INR",
			Location:      location(c.Land),
			Status:        models.ListingAvailable,
		}
		if err := tx.Omit(clause.Associations).Create(&listing).Error; err != nil {
			return fmt.Errorf("create listing: %w", err)
		}
		return pricing.AddUnitsSold(tx, price.ID, in.Quantity)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("listing created",
		zap.Uint("listing_id", listing.ID),
		zap.Uint("harvest_sale_id", saleID),
		zap.Float64("quantity", listing.Quantity))
	return &listing, nil
}

func location(l models.Land) string {
	var parts []string
	for _, p := range []string{l.Village, l.Taluk, l.District} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Marketplace lists available produce, optionally for one crop.
func (s *Service) Marketplace(ctx context.Context, crop string) ([]models.CropListing, error) {
	q := s.db.WithContext(ctx).Where("status = ?", models.ListingAvailable)
	if crop != "" {
		q = q.Where("LOWER(crop_name) = LOWER(?)", crop)
	}
	var out []models.CropListing
	if err := q.Order("created_at desc, id desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list marketplace: %w", err)
	}
	return out, nil
}

func (s *Service) FarmerListings(ctx context.Context, farmerID uint) ([]models.CropListing, error) {
	var out []models.CropListing
	err := s.db.WithContext(ctx).Where("user_id = ?", farmerID).Order("created_at desc, id desc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list listings for user %d: %w", farmerID, err)
	}
	return out, nil
}

func (s *Service) MarkSold(ctx context.Context, farmerID, listingID uint) (*models.CropListing, error) {
	var l models.CropListing
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", listingID, farmerID).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("listing %d not found", listingID)
	}
	if err != nil {
		return nil, fmt.Errorf("load listing %d: %w", listingID, err)
	}
	if l.Status == models.ListingSold {
		return nil, apperror.IllegalTransition("listing %d is already sold", listingID)
	}
	if err := s.db.WithContext(ctx).Model(&l).Update("status", models.ListingSold).Error; err != nil {
		return nil, fmt.Errorf("mark listing %d sold: %w", listingID, err)
	}
	l.Status = models.ListingSold
	return &l, nil
}
