package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/pulse/pkg/store"
)

const snapshotTopDefault = 20

var (
	dsnFlag = &cli.StringFlag{
		Name:  "dsn",
		Usage: "Snapshot database: sqlite file path or postgres:// URL (default: ~/.pulse/pulse.db)",
	}

	snapshotIDFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "Snapshot id",
		Required: true,
	}

	snapshotLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Number of highest risk pincodes to show",
		Value: snapshotTopDefault,
	}

	snapshotCmd = &cli.Command{
		Name:            "snapshot",
		HideHelpCommand: true,
		Usage:           "Persist and inspect scored pincode summaries",
		Flags: []cli.Flag{
			dsnFlag,
		},
		Commands: []*cli.Command{
			{
				Name:   "save",
				Usage:  "Score the dataset and save the pincode summaries",
				Action: cmdSnapshotSave,
			},
			{
				Name:   "list",
				Usage:  "List saved snapshots, newest first",
				Action: cmdSnapshotList,
			},
			{
				Name:   "show",
				Usage:  "Show the highest risk pincodes of a snapshot",
				Action: cmdSnapshotShow,
				Flags: []cli.Flag{
					snapshotIDFlag,
					snapshotLimitFlag,
				},
			},
		},
	}
)

// openStore resolves the DSN from the flag, the config, or the home dir.
func openStore(ctx context.Context, cmd *cli.Command) (*store.Store, error) {
	app := getConfig(cmd)
	dsn := cmd.String(dsnFlag.Name)
	if dsn == "" {
		dsn = app.Config.Store.DSN
	}
	if dsn == "" {
		dsn = filepath.Join(app.HomeDir, store.DataFileName)
	}

	s, err := store.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	slog.Debug("store ready", "driver", s.Driver())
	return s, nil
}

func cmdSnapshotSave(ctx context.Context, cmd *cli.Command) error {
	ds, err := loadDataset(ctx, getConfig(cmd).Config)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.Save(ctx, store.Snapshot{
		ModelVersion: ds.ModelVersion(),
		Fingerprint:  ds.Fingerprint(),
	}, ds.Summaries())
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	snap, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return encode(snap)
}

func cmdSnapshotList(ctx context.Context, cmd *cli.Command) error {
	s, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	return encode(list)
}

func cmdSnapshotShow(ctx context.Context, cmd *cli.Command) error {
	s, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	id := cmd.String(snapshotIDFlag.Name)
	snap, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rows, err := s.Top(ctx, id, cmd.Int(snapshotLimitFlag.Name))
	if err != nil {
		return err
	}
	return encode(map[string]any{
		"snapshot": snap,
		"data":     rows,
	})
}
