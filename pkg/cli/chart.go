package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/pulse/pkg/chart"
)

var (
	chartDirFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Directory for the rendered PNG files",
		Value: "charts",
	}

	chartCmd = &cli.Command{
		Name:   "chart",
		Usage:  "Render PNG infographics of the scored dataset",
		Action: cmdChart,
		Flags: []cli.Flag{
			chartDirFlag,
		},
	}
)

func cmdChart(ctx context.Context, cmd *cli.Command) error {
	ds, err := loadDataset(ctx, getConfig(cmd).Config)
	if err != nil {
		return err
	}

	files, err := chart.Render(ds, cmd.String(chartDirFlag.Name))
	if err != nil {
		return fmt.Errorf("rendering charts: %w", err)
	}
	slog.Info("charts rendered", "count", len(files))
	return encode(map[string]any{"files": files})
}
