package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/logging"
)

const (
	appName      = "pulse"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat           = formatJSON
	stdout       io.Writer = os.Stdout

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to the config file (default: ~/.pulse/config.yaml)",
	}

	dataDirFlag = &cli.StringFlag{
		Name:  "data-dir",
		Usage: "Directory holding the dataset CSV chunks",
	}

	datasetFlag = &cli.StringFlag{
		Name:  "dataset",
		Usage: "Dataset base name, e.g. aadhaar_master",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(logging.FormatCLI, "info", false)

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	HomeDir string
	Debug   bool
	Config  *config.Config
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Governance risk intelligence over pincode-level demographic data",
		Flags: []cli.Flag{
			debugFlag,
			configFlag,
			dataDirFlag,
			datasetFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			serveCmd,
			scoreCmd,
			queryCmd,
			exportCmd,
			snapshotCmd,
			dataCmd,
			chartCmd,
			authCmd,
		},
		Metadata: map[string]any{},
		Before:   beforeRun,
	}
}

func beforeRun(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	debug := cmd.Bool(debugFlag.Name)

	outputFormat = formatJSON
	if f := cmd.String(formatFlag.Name); f == formatYAML || f == "yml" {
		outputFormat = formatYAML
	}

	home, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return ctx, fmt.Errorf("initializing home dir: %w", err)
	}

	var cfg *config.Config
	if p := cmd.String(configFlag.Name); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.ReadOrCreate(home)
	}
	if err != nil {
		return ctx, fmt.Errorf("loading config: %w", err)
	}

	if v := cmd.String(dataDirFlag.Name); v != "" {
		cfg.Data.Dir = v
	}
	if v := cmd.String(datasetFlag.Name); v != "" {
		cfg.Data.Dataset = v
	}

	initLogging(cfg.Log.Format, cfg.Log.Level, debug)
	slog.Debug("config loaded", "home", home, "data_dir", cfg.Data.Dir, "dataset", cfg.Data.Dataset)

	cmd.Metadata[appConfigKey] = &appConfig{
		HomeDir: home,
		Debug:   debug,
		Config:  cfg,
	}
	return ctx, nil
}

func initLogging(format, level string, debug bool) {
	if debug {
		level = "debug"
	}
	logging.SetDefaultLogger(format, level)
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(stdout).Encode(v)
	}
	e := json.NewEncoder(stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
