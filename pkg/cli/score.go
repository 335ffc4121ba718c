package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

var scoreCmd = &cli.Command{
	Name:   "score",
	Usage:  "Load and score the dataset, then print the national overview",
	Action: cmdScore,
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	ds, err := loadDataset(ctx, getConfig(cmd).Config)
	if err != nil {
		return err
	}
	return encode(ds.Overview())
}
