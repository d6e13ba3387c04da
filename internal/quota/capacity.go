package quota

import (
	"fmt"
	"time"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"

	"gorm.io/gorm"
)

// CapacitySource is the area budget a cultivation draws from: an AdminQuota
// or, for regions without one, a legacy RegionLimit. Sources are obtained
// inside a transaction with their row already locked, so Admit and Reserve
// see a stable view until commit.
type CapacitySource interface {
	Kind() string
	ID() uint
	RemainingArea() float64
	// Admit runs every business check for a new reservation.
	Admit(tx *gorm.DB, area float64, farmerID uint) error
	// Reserve debits the counters; it never partially applies.
	Reserve(tx *gorm.DB, area float64, farmerID uint) error
	// Release credits back the area held by c.
	Release(tx *gorm.DB, c *models.Cultivation) error
	// Bind records the source on a cultivation about to be created.
	Bind(c *models.Cultivation)
}

const (
	KindQuota       = "quota"
	KindRegionLimit = "region_limit"
)

type quotaSource struct {
	q models.AdminQuota
}

func (s *quotaSource) Kind() string           { return KindQuota }
func (s *quotaSource) ID() uint               { return s.q.ID }
func (s *quotaSource) RemainingArea() float64 { return s.q.RemainingArea() }

func (s *quotaSource) Admit(tx *gorm.DB, area float64, farmerID uint) error {
	if ok, reason := IsQuotaAvailable(s.q, area); !ok {
		return apperror.QuotaExhausted("%s", reason)
	}
	ok, reason, err := CheckPerFarmerLimit(tx, s.q, farmerID, area)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.QuotaExhausted("%s", reason)
	}
	return nil
}

func (s *quotaSource) Reserve(tx *gorm.DB, area float64, farmerID uint) error {
	holders, err := farmerCultivationCount(tx, s.q.ID, farmerID, 0)
	if err != nil {
		return err
	}
	if err := AllocateArea(tx, s.q.ID, area, holders == 0); err != nil {
		return err
	}
	s.q.AllocatedArea += area
	if holders == 0 {
		s.q.AllocatedFarmerCount++
	}
	return nil
}

func (s *quotaSource) Release(tx *gorm.DB, c *models.Cultivation) error {
	others, err := farmerCultivationCount(tx, s.q.ID, c.UserID, c.ID)
	if err != nil {
		return err
	}
	return ReleaseArea(tx, s.q.ID, c.AreaUsed, others == 0)
}

func (s *quotaSource) Bind(c *models.Cultivation) {
	id := s.q.ID
	c.QuotaID = &id
	c.RegionLimitID = nil
}

// QuotaOf returns the quota behind src when src is quota-backed.
func QuotaOf(src CapacitySource) (models.AdminQuota, bool) {
	qs, ok := src.(*quotaSource)
	if !ok {
		return models.AdminQuota{}, false
	}
	return qs.q, true
}

// farmerCultivationCount counts the farmer's non-cancelled cultivations on
// the quota, ignoring excludeID.
func farmerCultivationCount(tx *gorm.DB, quotaID, farmerID, excludeID uint) (int64, error) {
	q := tx.Model(&models.Cultivation{}).
		Where("quota_id = ? AND user_id = ? AND status <> ?", quotaID, farmerID, models.CultivationCancelled)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count farmer cultivations on quota %d: %w", quotaID, err)
	}
	return n, nil
}

type legacySource struct {
	l models.RegionLimit
}

func (s *legacySource) Kind() string           { return KindRegionLimit }
func (s *legacySource) ID() uint               { return s.l.ID }
func (s *legacySource) RemainingArea() float64 { return s.l.RemainingArea() }

func (s *legacySource) Admit(_ *gorm.DB, area float64, _ uint) error {
	if !s.l.IsActive {
		return apperror.QuotaExhausted("region limit for %s in %s is not active", s.l.CropName, s.l.District)
	}
	remaining := s.l.RemainingArea()
	if exceeds(area, remaining) {
		return apperror.QuotaExhausted("only %.2f acres available for %s in %s", max(remaining, 0), s.l.CropName, s.l.District)
	}
	if s.l.MaxCultivationCount > 0 && s.l.CurrentCultivationCount >= s.l.MaxCultivationCount {
		return apperror.QuotaExhausted("maximum farmers (%d) already cultivating %s in %s", s.l.MaxCultivationCount, s.l.CropName, s.l.District)
	}
	return nil
}

func (s *legacySource) Reserve(tx *gorm.DB, area float64, _ uint) error {
	if err := AllocateLegacy(tx, s.l.ID, area); err != nil {
		return err
	}
	s.l.CurrentAreaUsed += area
	s.l.CurrentCultivationCount++
	return nil
}

func (s *legacySource) Release(tx *gorm.DB, c *models.Cultivation) error {
	return ReleaseLegacy(tx, s.l.ID, c.AreaUsed)
}

func (s *legacySource) Bind(c *models.Cultivation) {
	id := s.l.ID
	c.RegionLimitID = &id
	c.QuotaID = nil
}

// lockQuota takes the row lock for the rest of the transaction with a no-op
// write (row lock on PostgreSQL, database write lock on SQLite) and returns
// the fresh row.
func lockQuota(tx *gorm.DB, id uint) (*models.AdminQuota, error) {
	res := tx.Model(&models.AdminQuota{}).Where("id = ?", id).UpdateColumn("updated_at", time.Now())
	if res.Error != nil {
		return nil, fmt.Errorf("lock quota %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.NotFound("quota %d not found", id)
	}
	var q models.AdminQuota
	if err := tx.First(&q, id).Error; err != nil {
		return nil, fmt.Errorf("load quota %d: %w", id, err)
	}
	return &q, nil
}

func lockRegionLimit(tx *gorm.DB, id uint) (*models.RegionLimit, error) {
	res := tx.Model(&models.RegionLimit{}).Where("id = ?", id).UpdateColumn("updated_at", time.Now())
	if res.Error != nil {
		return nil, fmt.Errorf("lock region limit %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.NotFound("region limit %d not found", id)
	}
	var l models.RegionLimit
	if err := tx.First(&l, id).Error; err != nil {
		return nil, fmt.Errorf("load region limit %d: %w", id, err)
	}
	return &l, nil
}

// SourceFor returns the locked source a cultivation reserved against, or nil
// when it was started unrestricted. A quota deleted since then is treated as
// unrestricted; deletion is refused while open cultivations reference it.
func SourceFor(tx *gorm.DB, c *models.Cultivation) (CapacitySource, error) {
	switch {
	case c.QuotaID != nil:
		q, err := lockQuota(tx, *c.QuotaID)
		if apperror.IsKind(err, apperror.KindNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &quotaSource{q: *q}, nil
	case c.RegionLimitID != nil:
		l, err := lockRegionLimit(tx, *c.RegionLimitID)
		if apperror.IsKind(err, apperror.KindNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &legacySource{l: *l}, nil
	default:
		return nil, nil
	}
}
