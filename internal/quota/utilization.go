package quota

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"agribalance-backend/internal/dateutil"

	"github.com/xuri/excelize/v2"
)

const (
	AlertNone    = ""
	AlertWarning = "warning"
	AlertDanger  = "danger"
)

type UtilizationRow struct {
	QuotaID              uint    `json:"quota_id"`
	CropName             string  `json:"crop_name"`
	Location             string  `json:"location"`
	TotalAllowedArea     float64 `json:"total_allowed_area"`
	AllocatedArea        float64 `json:"allocated_area"`
	RemainingArea        float64 `json:"remaining_area"`
	AreaUnit             string  `json:"area_unit"`
	AllocatedFarmerCount int     `json:"allocated_farmer_count"`
	UtilizationPercent   float64 `json:"utilization_percent"`
	Alert                string  `json:"alert,omitempty"`
	HarvestSeason        string  `json:"harvest_season,omitempty"`
}

func alertFor(pct float64) string {
	switch {
	case pct > 90:
		return AlertDanger
	case pct > 75:
		return AlertWarning
	default:
		return AlertNone
	}
}

func joinLocation(parts ...string) string {
	var out string
	for _, p := range parts {
		if blank(p) {
			continue
		}
		if out != "" {
			out += " / "
		}
		out += p
	}
	return out
}

// Utilization reports allocated share per active quota, busiest first.
func (s *Service) Utilization(ctx context.Context) ([]UtilizationRow, error) {
	quotas, err := s.ListQuotas(ctx, QuotaFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	rows := make([]UtilizationRow, 0, len(quotas))
	for _, q := range quotas {
		pct := 0.0
		if q.TotalAllowedArea > 0 {
			pct = math.Round(q.AllocatedArea/q.TotalAllowedArea*10000) / 100
		}
		row := UtilizationRow{
			QuotaID:              q.ID,
			CropName:             q.CropName,
			Location:             joinLocation(q.Country, q.State, q.District, q.Taluk, q.Village),
			TotalAllowedArea:     q.TotalAllowedArea,
			AllocatedArea:        q.AllocatedArea,
			RemainingArea:        max(q.RemainingArea(), 0),
			AreaUnit:             unitOf(q),
			AllocatedFarmerCount: q.AllocatedFarmerCount,
			UtilizationPercent:   pct,
			Alert:                alertFor(pct),
		}
		if q.HarvestSeasonStart != nil || q.HarvestSeasonEnd != nil {
			row.HarvestSeason = formatDay(q.HarvestSeasonStart) + " - " + formatDay(q.HarvestSeasonEnd)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].UtilizationPercent > rows[j].UtilizationPercent
	})
	return rows, nil
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(dateutil.Layout)
}

var utilizationHeader = []any{
	"Quota ID", "Crop", "Location", "Total area", "Allocated area", "Remaining area",
	"Unit", "Farmers", "Utilization %", "Alert", "Harvest season",
}

// ExportUtilizationXLSX renders the utilization report as a workbook.
func ExportUtilizationXLSX(rows []UtilizationRow) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Utilization"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9EAD3"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	dangerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#9C0006"},
	})
	if err != nil {
		return nil, fmt.Errorf("alert style: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &utilizationHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "K1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{
			r.QuotaID, r.CropName, r.Location, r.TotalAllowedArea, r.AllocatedArea, r.RemainingArea,
			r.AreaUnit, r.AllocatedFarmerCount, r.UtilizationPercent, r.Alert, r.HarvestSeason,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
		if r.Alert == AlertDanger {
			alertCell, _ := excelize.CoordinatesToCellName(10, i+2)
			if err := f.SetCellStyle(sheet, alertCell, alertCell, dangerStyle); err != nil {
				return nil, fmt.Errorf("style row %d: %w", i+2, err)
			}
		}
	}
	if err := f.SetColWidth(sheet, "B", "C", 24); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}
