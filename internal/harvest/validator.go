// Package harvest gates a cultivation from harvest through sale: the
// harvest submission check, sale ceilings, admin review and listings.
package harvest

import (
	"time"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/dateutil"
	"agribalance-backend/internal/models"
)

// ValidateHarvestSubmission checks a reported harvest against the bound
// quota's season window (q may be nil), the cultivation status and the yield
// ceiling estimated × (1 + tolerance). Without an estimate the quantity is
// not capped.
func ValidateHarvestSubmission(c models.Cultivation, q *models.AdminQuota, harvestDate time.Time, quantity, tolerance float64) error {
	if quantity <= 0 {
		return apperror.Validation("harvest quantity must be greater than zero")
	}
	if q != nil && !dateutil.Within(harvestDate, q.HarvestSeasonStart, q.HarvestSeasonEnd) {
		return apperror.Validation("harvest date %s is outside the harvest season %s",
			harvestDate.Format(dateutil.Layout), seasonLabel(q))
	}
	if !c.Status.Open() {
		return apperror.IllegalTransition("cultivation %d is %s and cannot be harvested", c.ID, c.Status)
	}
	if c.EstimatedYield != nil {
		ceiling := *c.EstimatedYield * (1 + tolerance)
		if quantity > ceiling {
			return apperror.Validation("harvest quantity %.2f exceeds the allowed %.2f (estimated %.2f + %.0f%%)",
				quantity, ceiling, *c.EstimatedYield, tolerance*100)
		}
	}
	return nil
}

// CheckSaleQuantity applies both sale ceilings: the actual yield plus the
// sale tolerance, and the cultivation's max allowed sale quantity. The
// tighter one governs.
func CheckSaleQuantity(c models.Cultivation, selling, saleTolerance float64) error {
	if selling <= 0 {
		return apperror.Validation("selling quantity must be greater than zero")
	}
	if c.ActualYield == nil {
		return apperror.Validation("cultivation %d has no recorded harvest quantity", c.ID)
	}
	if limit := *c.ActualYield * (1 + saleTolerance); selling > limit {
		return apperror.Validation("selling quantity %.2f exceeds the harvested %.2f %s plus tolerance (%.2f)",
			selling, *c.ActualYield, c.YieldUnit, limit)
	}
	if c.MaxAllowedSaleQuantity != nil && selling > *c.MaxAllowedSaleQuantity {
		return apperror.Validation("selling quantity %.2f exceeds the maximum allowed sale quantity %.2f %s",
			selling, *c.MaxAllowedSaleQuantity, c.YieldUnit)
	}
	return nil
}

func seasonLabel(q *models.AdminQuota) string {
	from, to := "open", "open"
	if q.HarvestSeasonStart != nil {
		from = q.HarvestSeasonStart.Format(dateutil.Layout)
	}
	if q.HarvestSeasonEnd != nil {
		to = q.HarvestSeasonEnd.Format(dateutil.Layout)
	}
	return from + " to " + to
}
