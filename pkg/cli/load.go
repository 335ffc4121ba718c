package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/data"
	"github.com/mchmarny/pulse/pkg/intel"
)

// loadDataset reads the configured CSV chunks and builds the scored dataset.
func loadDataset(ctx context.Context, cfg *config.Config) (*intel.Dataset, error) {
	src, err := data.Load(ctx, data.LoadOptions{
		Dir:     cfg.Data.Dir,
		Dataset: cfg.Data.Dataset,
		GeoFile: cfg.Data.GeoFile,
		Workers: cfg.Data.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s from %s: %w", cfg.Data.Dataset, cfg.Data.Dir, err)
	}

	ds, err := intel.Build(ctx, src, cfg)
	if err != nil {
		return nil, fmt.Errorf("building dataset: %w", err)
	}
	return ds, nil
}
