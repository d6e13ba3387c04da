package quota

import (
	"fmt"
	"time"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"

	"gorm.io/gorm"
)

// areaEpsilon absorbs float rounding when area sums are compared with a
// limit, so 0.1 + 0.2 still fits into 0.3.
const areaEpsilon = 1e-9

// exceeds reports whether v is larger than limit beyond rounding noise.
func exceeds(v, limit float64) bool {
	return v > limit+areaEpsilon
}

// IsQuotaAvailable checks a single request against the quota snapshot: the
// quota must be active, have enough remaining area and the request must not
// exceed the per-farmer cap on its own.
func IsQuotaAvailable(q models.AdminQuota, requested float64) (bool, string) {
	if !q.IsActive {
		return false, fmt.Sprintf("quota for %s is not active", q.CropName)
	}
	remaining := q.RemainingArea()
	if exceeds(requested, remaining) {
		return false, fmt.Sprintf("only %.2f %s available for %s in this region", max(remaining, 0), unitOf(q), q.CropName)
	}
	if q.MaxPerFarmer != nil && exceeds(requested, *q.MaxPerFarmer) {
		return false, fmt.Sprintf("requested %.2f %s exceeds the per-farmer limit of %.2f %s", requested, unitOf(q), *q.MaxPerFarmer, unitOf(q))
	}
	return true, ""
}

// CheckPerFarmerLimit adds the farmer's area already held on the quota
// (every non-cancelled cultivation) to the request and compares the total
// with MaxPerFarmer.
func CheckPerFarmerLimit(tx *gorm.DB, q models.AdminQuota, farmerID uint, requested float64) (bool, string, error) {
	if q.MaxPerFarmer == nil {
		return true, "", nil
	}
	held, err := farmerHeldArea(tx, q.ID, farmerID)
	if err != nil {
		return false, "", err
	}
	if exceeds(held+requested, *q.MaxPerFarmer) {
		return false, fmt.Sprintf("per-farmer limit exceeded: %.2f held + %.2f requested > %.2f %s", held, requested, *q.MaxPerFarmer, unitOf(q)), nil
	}
	return true, "", nil
}

func farmerHeldArea(tx *gorm.DB, quotaID, farmerID uint) (float64, error) {
	var held float64
	err := tx.Model(&models.Cultivation{}).
		Where("quota_id = ? AND user_id = ? AND status <> ?", quotaID, farmerID, models.CultivationCancelled).
		Select("COALESCE(SUM(area_used), 0)").
		Scan(&held).Error
	if err != nil {
		return 0, fmt.Errorf("sum farmer area on quota %d: %w", quotaID, err)
	}
	return held, nil
}

// AllocateArea adds area to the quota in one conditional statement. Nothing
// is applied when the result would exceed the total or the quota is inactive.
func AllocateArea(tx *gorm.DB, quotaID uint, area float64, incrementFarmerCount bool) error {
	if area <= 0 {
		return apperror.Validation("area must be greater than zero")
	}
	res := tx.Model(&models.AdminQuota{}).
		Where("id = ? AND is_active = ? AND allocated_area + ? <= total_allowed_area + ?", quotaID, true, area, areaEpsilon).
		UpdateColumns(map[string]any{
			"allocated_area":         gorm.Expr("allocated_area + ?", area),
			"allocated_farmer_count": gorm.Expr("allocated_farmer_count + ?", boolToInt(incrementFarmerCount)),
			"updated_at":             time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("allocate %.2f on quota %d: %w", area, quotaID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.QuotaExhausted("quota %d cannot take %.2f more: insufficient remaining area or quota inactive", quotaID, area)
	}
	return nil
}

// ReleaseArea returns area to the quota. Both counters are floored at zero.
func ReleaseArea(tx *gorm.DB, quotaID uint, area float64, decrementFarmerCount bool) error {
	dec := boolToInt(decrementFarmerCount)
	res := tx.Model(&models.AdminQuota{}).
		Where("id = ?", quotaID).
		UpdateColumns(map[string]any{
			"allocated_area":         gorm.Expr("CASE WHEN allocated_area - ? < ? THEN 0 ELSE allocated_area - ? END", area, areaEpsilon, area),
			"allocated_farmer_count": gorm.Expr("CASE WHEN allocated_farmer_count - ? < 0 THEN 0 ELSE allocated_farmer_count - ? END", dec, dec),
			"updated_at":             time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("release %.2f on quota %d: %w", area, quotaID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("quota %d not found", quotaID)
	}
	return nil
}

// AllocateLegacy is AllocateArea for the flat region limit table; it also
// enforces max_cultivation_count (0 = unlimited).
func AllocateLegacy(tx *gorm.DB, limitID uint, area float64) error {
	if area <= 0 {
		return apperror.Validation("area must be greater than zero")
	}
	res := tx.Model(&models.RegionLimit{}).
		Where("id = ? AND is_active = ? AND current_area_used + ? <= max_area + ?", limitID, true, area, areaEpsilon).
		Where("(max_cultivation_count = 0 OR current_cultivation_count < max_cultivation_count)").
		UpdateColumns(map[string]any{
			"current_area_used":         gorm.Expr("current_area_used + ?", area),
			"current_cultivation_count": gorm.Expr("current_cultivation_count + 1"),
			"updated_at":                time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("allocate %.2f on region limit %d: %w", area, limitID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.QuotaExhausted("region limit %d cannot take %.2f more: insufficient area, cultivation cap reached or limit inactive", limitID, area)
	}
	return nil
}

func ReleaseLegacy(tx *gorm.DB, limitID uint, area float64) error {
	res := tx.Model(&models.RegionLimit{}).
		Where("id = ?", limitID).
		UpdateColumns(map[string]any{
			"current_area_used":         gorm.Expr("CASE WHEN current_area_used - ? < ? THEN 0 ELSE current_area_used - ? END", area, areaEpsilon, area),
			"current_cultivation_count": gorm.Expr("CASE WHEN current_cultivation_count - 1 < 0 THEN 0 ELSE current_cultivation_count - 1 END"),
			"updated_at":                time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("release %.2f on region limit %d: %w", area, limitID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("region limit %d not found", limitID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unitOf(q models.AdminQuota) string {
	if q.AreaUnit == "" {
		return "acres"
	}
	return q.AreaUnit
}
