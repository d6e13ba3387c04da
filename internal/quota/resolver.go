package quota

import (
	"errors"
	"fmt"
	"strings"

	"agribalance-backend/internal/models"

	"gorm.io/gorm"
)

// Scope levels, most specific first.
const (
	levelVillage = iota
	levelTaluk
	levelDistrict
	levelState
	levelCountry
	levelNone
)

func same(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// scopeLevel is the most specific location field the quota sets.
func scopeLevel(q models.AdminQuota) int {
	switch {
	case !blank(q.Village):
		return levelVillage
	case !blank(q.Taluk):
		return levelTaluk
	case !blank(q.District):
		return levelDistrict
	case !blank(q.State):
		return levelState
	case !blank(q.Country):
		return levelCountry
	default:
		return levelNone
	}
}

// covers reports whether every location field the quota sets agrees with
// the land.
func covers(q models.AdminQuota, land models.Land) bool {
	pairs := [][2]string{
		{q.Country, land.Country},
		{q.State, land.State},
		{q.District, land.District},
		{q.Taluk, land.Taluk},
		{q.Village, land.Village},
	}
	for _, p := range pairs {
		if !blank(p[0]) && !same(p[0], p[1]) {
			return false
		}
	}
	return true
}

// MatchQuota picks the best quota for the land from candidates that are
// already filtered to one crop. Village-scoped quotas beat taluk-scoped ones,
// and so on up to country. Within a level the lowest id wins; a quota never
// matches through a level it does not scope.
func MatchQuota(candidates []models.AdminQuota, land models.Land) *models.AdminQuota {
	var best *models.AdminQuota
	bestLevel := levelNone
	for i := range candidates {
		q := &candidates[i]
		if !q.IsActive {
			continue
		}
		lvl := scopeLevel(*q)
		if lvl == levelNone || !covers(*q, land) {
			continue
		}
		if lvl < bestLevel || (lvl == bestLevel && best != nil && q.ID < best.ID) {
			best, bestLevel = q, lvl
		}
	}
	return best
}

// FindMatchingQuota returns the active quota for crop that best fits the
// land, or nil when none applies.
func FindMatchingQuota(db *gorm.DB, land models.Land, crop string) (*models.AdminQuota, error) {
	var candidates []models.AdminQuota
	err := db.Where("is_active = ? AND LOWER(crop_name) = LOWER(?)", true, strings.TrimSpace(crop)).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("load quotas for %s: %w", crop, err)
	}
	return MatchQuota(candidates, land), nil
}

// FindLegacyLimit looks up the flat (district, crop) limit.
func FindLegacyLimit(db *gorm.DB, district, crop string) (*models.RegionLimit, error) {
	if blank(district) {
		return nil, nil
	}
	var l models.RegionLimit
	err := db.Where("is_active = ? AND LOWER(district) = LOWER(?) AND LOWER(crop_name) = LOWER(?)",
		true, strings.TrimSpace(district), strings.TrimSpace(crop)).
		Order("id").
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load region limit for %s/%s: %w", district, crop, err)
	}
	return &l, nil
}

// Resolve finds and locks the capacity source for a new cultivation. It must
// run inside the transaction that will create the cultivation. A nil source
// means the crop is unrestricted for this land.
func Resolve(tx *gorm.DB, land models.Land, crop string) (CapacitySource, error) {
	q, err := FindMatchingQuota(tx, land, crop)
	if err != nil {
		return nil, err
	}
	if q != nil {
		locked, err := lockQuota(tx, q.ID)
		if err != nil {
			return nil, err
		}
		return &quotaSource{q: *locked}, nil
	}

	l, err := FindLegacyLimit(tx, land.District, crop)
	if err != nil || l == nil {
		return nil, err
	}
	locked, err := lockRegionLimit(tx, l.ID)
	if err != nil {
		return nil, err
	}
	return &legacySource{l: *locked}, nil
}
