package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/pulse/pkg/data"
	"github.com/mchmarny/pulse/pkg/net"
)

const (
	chunkSizeDefault  = 90
	fetchMaxMBDefault = 1024
	bytesPerMB        = 1 << 20
)

var (
	splitInFlag = &cli.StringFlag{
		Name:     "in",
		Usage:    "CSV file to split",
		Required: true,
	}

	splitOutFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Directory for the chunk files (default: config data.dir)",
	}

	splitNameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Dataset base name of the chunks (default: input file name)",
	}

	splitSizeFlag = &cli.FloatFlag{
		Name:  "size-mb",
		Usage: "Maximum chunk size in MB",
		Value: chunkSizeDefault,
	}

	fetchURLFlag = &cli.StringFlag{
		Name:     "url",
		Usage:    "URL of the dataset file",
		Required: true,
	}

	fetchOutFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Destination file (default: file name of the URL in config data.dir)",
	}

	fetchMaxFlag = &cli.IntFlag{
		Name:  "max-mb",
		Usage: "Refuse downloads larger than this many MB",
		Value: fetchMaxMBDefault,
	}

	dataCmd = &cli.Command{
		Name:            "data",
		HideHelpCommand: true,
		Usage:           "Manage dataset files",
		Commands: []*cli.Command{
			{
				Name:   "split",
				Usage:  "Split a CSV file into header-preserving chunks",
				Action: cmdDataSplit,
				Flags: []cli.Flag{
					splitInFlag,
					splitOutFlag,
					splitNameFlag,
					splitSizeFlag,
				},
			},
			{
				Name:   "list",
				Usage:  "List chunked datasets in the data dir",
				Action: cmdDataList,
			},
			{
				Name:   "fetch",
				Usage:  "Download a dataset file",
				Action: cmdDataFetch,
				Flags: []cli.Flag{
					fetchURLFlag,
					fetchOutFlag,
					fetchMaxFlag,
				},
			},
		},
	}
)

func cmdDataSplit(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String(splitOutFlag.Name)
	if dir == "" {
		dir = getConfig(cmd).Config.Data.Dir
	}

	files, err := data.Split(cmd.String(splitInFlag.Name), dir, cmd.String(splitNameFlag.Name), cmd.Float(splitSizeFlag.Name))
	if err != nil {
		return err
	}
	return encode(map[string]any{"chunks": len(files), "files": files})
}

func cmdDataList(_ context.Context, cmd *cli.Command) error {
	dir := getConfig(cmd).Config.Data.Dir
	sets, err := data.ListDatasets(dir)
	if err != nil {
		return err
	}
	return encode(map[string]any{
		"dir":      dir,
		"datasets": data.DatasetNames(sets),
		"chunks":   sets,
	})
}

func cmdDataFetch(ctx context.Context, cmd *cli.Command) error {
	url := cmd.String(fetchURLFlag.Name)
	out := cmd.String(fetchOutFlag.Name)
	if out == "" {
		dir := getConfig(cmd).Config.Data.Dir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		out = filepath.Join(dir, filepath.Base(url))
	}

	n, err := net.Download(ctx, url, out, net.DownloadOptions{
		MaxBytes: int64(cmd.Int(fetchMaxFlag.Name)) * bytesPerMB,
		Columns:  []string{data.ColDate, data.ColPincode},
	})
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	slog.Info("dataset downloaded", "url", url, "path", out, "bytes", n)
	return nil
}
