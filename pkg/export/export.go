package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/mchmarny/pulse/pkg/intel"
)

const (
	SheetName = "pincodes"

	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Header is the column order of every export.
var Header = []string{
	"pincode", "state", "district", "latitude", "longitude",
	"governance_risk_score", "risk_level",
	"school_dropout_risk_index", "migrant_hunger_score", "village_hollow_out_rate",
	"electoral_discrepancy_index", "skill_gap_migration_flow",
	"ml_anomaly", "anomaly_score", "cluster_id",
}

func values(p *intel.PincodeSummary) []any {
	return []any{
		p.Pincode, p.State, p.District, p.Latitude, p.Longitude,
		p.Governance, p.RiskLevel,
		p.Education, p.Hunger, p.Rural, p.Electoral, p.Labor,
		p.Anomaly, p.AnomalyScore, p.ClusterID,
	}
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return ContentTypeXLSX
	}
	return ContentTypeCSV
}

// Write encodes rows in format (csv or xlsx) into w.
func Write(w io.Writer, format string, rows []*intel.PincodeSummary) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// WriteCSV writes a header row followed by one row per pincode.
func WriteCSV(w io.Writer, rows []*intel.PincodeSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	rec := make([]string, len(Header))
	for _, p := range rows {
		for i, v := range values(p) {
			rec[i] = cellString(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write pincode %d: %w", p.Pincode, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// WriteXLSX writes a workbook with a single pincodes sheet.
func WriteXLSX(w io.Writer, rows []*intel.PincodeSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	head := make([]any, len(Header))
	for i, h := range Header {
		head[i] = h
	}
	if err := sw.SetRow("A1", head); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, p := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := sw.SetRow(cell, values(p)); err != nil {
			return fmt.Errorf("failed to write pincode %d: %w", p.Pincode, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
