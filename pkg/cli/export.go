package cli

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/pulse/pkg/export"
	"github.com/mchmarny/pulse/pkg/intel"
)

const exportFilePrefix = "governance_export_"

var (
	outFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "Output file path",
		Required: true,
	}

	exportTypeFlag = &cli.StringFlag{
		Name:  "type",
		Usage: "Export type [csv, xlsx] (default: from the --out extension)",
	}

	exportCmd = &cli.Command{
		Name:   "export",
		Usage:  "Write the scored pincode summaries to a CSV or Excel file",
		Action: cmdExport,
		Flags: []cli.Flag{
			outFlag,
			exportTypeFlag,
		},
	}
)

// exportRows orders pincodes by composite score and caps them at limit.
func exportRows(ds *intel.Dataset, limit int) []*intel.PincodeSummary {
	rows := slices.Clone(ds.Summaries())
	slices.SortStableFunc(rows, func(a, b *intel.PincodeSummary) int {
		return cmp.Compare(b.Governance, a.Governance)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func exportFormat(path, explicit string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(explicit))
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch f {
	case export.FormatCSV, export.FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export type %q, use %s or %s", f, export.FormatCSV, export.FormatXLSX)
	}
}

func cmdExport(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd).Config
	path := cmd.String(outFlag.Name)
	format, err := exportFormat(path, cmd.String(exportTypeFlag.Name))
	if err != nil {
		return err
	}

	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	rows := exportRows(ds, cfg.Export.MaxRows)
	if err := export.Write(f, format, rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	slog.Info("export written", "path", path, "format", format, "rows", len(rows))
	return nil
}

func exportAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Export.Enabled {
			writeError(w, http.StatusNotFound, "export is disabled")
			return
		}
		format := r.PathValue("format")
		if format != export.FormatCSV && format != export.FormatXLSX {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format: %s", format))
			return
		}

		name := fmt.Sprintf("%s%s.%s", exportFilePrefix, time.Now().Format("20060102"), format)
		w.Header().Set("Content-Type", export.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

		rows := exportRows(s.ds, s.cfg.Export.MaxRows)
		if err := export.Write(w, format, rows); err != nil {
			slog.Error("export failed", "format", format, "error", err)
		}
	}
}
