package cultivation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"agribalance-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type factor struct {
	key   string
	value float64
}

// Yield multipliers by soil type and water source, checked in order against
// free-text land attributes ("Black cotton soil", "Canal irrigation").
// Unknown values count as 1.
var (
	soilFactors = []factor{
		{"alluvial", 1.10},
		{"loam", 1.10},
		{"black", 1.05},
		{"clay", 1.00},
		{"red", 0.90},
		{"laterite", 0.85},
		{"sandy", 0.85},
	}
	waterFactors = []factor{
		{"canal", 1.10},
		{"river", 1.10},
		{"drip", 1.05},
		{"well", 1.00},
		{"tank", 0.95},
		{"rain", 0.85},
	}
)

func lookupFactor(table []factor, key string) float64 {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, f := range table {
		if strings.Contains(key, f.key) {
			return f.value
		}
	}
	return 1
}

func SoilFactor(soilType string) float64     { return lookupFactor(soilFactors, soilType) }
func WaterFactor(waterSource string) float64 { return lookupFactor(waterFactors, waterSource) }

// Estimate is the derived yield data stored on a cultivation. A nil
// EstimatedYield means no crop master average was available.
type Estimate struct {
	EstimatedYield         *float64
	MaxAllowedSaleQuantity *float64
	YieldUnit              string
	Advisory               Advisory
}

// Advisory is the structured note shown to the farmer next to a cultivation.
type Advisory struct {
	AvgYieldPerAcre    *float64 `json:"avg_yield_per_acre,omitempty"`
	SoilType           string   `json:"soil_type,omitempty"`
	SoilFactor         float64  `json:"soil_factor"`
	WaterSource        string   `json:"water_source,omitempty"`
	WaterFactor        float64  `json:"water_factor"`
	HarvestTolerance   float64  `json:"harvest_tolerance"`
	GrowthDurationDays *int     `json:"growth_duration_days,omitempty"`
	Season             string   `json:"season,omitempty"`
	WaterRequirement   string   `json:"water_requirement,omitempty"`
	CapacitySource     string   `json:"capacity_source,omitempty"`
	RemainingArea      *float64 `json:"remaining_area_after_start,omitempty"`
	HarvestWindow      string   `json:"harvest_window,omitempty"`
	PriceGuidance      string   `json:"price_guidance,omitempty"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EstimateYield computes avg yield/acre × area × soil factor × water factor
// and the sale ceiling estimated × (1 + tolerance). master may be nil.
func EstimateYield(master *models.CropMaster, land models.Land, area, tolerance float64) Estimate {
	e := Estimate{
		YieldUnit: "kg",
		Advisory: Advisory{
			SoilType:         land.SoilType,
			SoilFactor:       SoilFactor(land.SoilType),
			WaterSource:      land.WaterSource,
			WaterFactor:      WaterFactor(land.WaterSource),
			HarvestTolerance: tolerance,
		},
	}
	if master == nil {
		return e
	}
	if master.YieldUnit != "" {
		e.YieldUnit = master.YieldUnit
	}
	e.Advisory.GrowthDurationDays = master.GrowthDurationDays
	e.Advisory.Season = master.Season
	e.Advisory.WaterRequirement = master.WaterRequirement
	if master.AvgYieldPerAcre == nil || *master.AvgYieldPerAcre <= 0 {
		return e
	}

	e.Advisory.AvgYieldPerAcre = master.AvgYieldPerAcre
	est := round2(*master.AvgYieldPerAcre * area * e.Advisory.SoilFactor * e.Advisory.WaterFactor)
	ceiling := est * (1 + tolerance)
	e.EstimatedYield = &est
	e.MaxAllowedSaleQuantity = &ceiling
	return e
}

func (a Advisory) JSON() datatypes.JSON {
	b, err := json.Marshal(a)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

// NewApprovalID returns an identifier such as AGR-20261015-3F9A0C12.
func NewApprovalID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("AGR-%s-%s", now.Format("20060102"), suffix)
}
