package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

const (
	queryResultLimitDefault = 20
)

var (
	queryLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits number of result returned",
		Value: queryResultLimitDefault,
	}

	pincodeFlag = &cli.IntFlag{
		Name:     "pin",
		Usage:    "Six digit pincode",
		Required: true,
	}

	sectorNameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "Sector [education, hunger, rural, electoral, labor]",
		Required: true,
	}

	minRiskFlag = &cli.FloatFlag{
		Name:  "min",
		Usage: "Minimum sector score",
	}

	districtNameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "District name (case-insensitive substring)",
		Required: true,
	}

	roleFlag = &cli.StringFlag{
		Name:  "role",
		Usage: "Report audience [police, district_admin, state_govt, budget, education, health, skill]",
	}

	queryCmd = &cli.Command{
		Name:            "query",
		HideHelpCommand: true,
		Usage:           "Query the scored dataset",
		Commands: []*cli.Command{
			{
				Name:   "pincode",
				Usage:  "Governance report of one pincode",
				Action: cmdQueryPincode,
				Flags: []cli.Flag{
					pincodeFlag,
				},
			},
			{
				Name:   "top",
				Usage:  "Highest risk pincodes with their anomaly type",
				Action: cmdQueryTop,
				Flags: []cli.Flag{
					queryLimitFlag,
				},
			},
			{
				Name:   "sector",
				Usage:  "Pincodes ranked by one sector score",
				Action: cmdQuerySector,
				Flags: []cli.Flag{
					sectorNameFlag,
					minRiskFlag,
					queryLimitFlag,
				},
			},
			{
				Name:   "district",
				Usage:  "Forecast-driven intelligence report of a district",
				Action: cmdQueryDistrict,
				Flags: []cli.Flag{
					districtNameFlag,
					roleFlag,
				},
			},
		},
	}
)

func cmdQueryPincode(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd).Config
	pin := cmd.Int(pincodeFlag.Name)
	if err := cfg.ValidatePincode(pin); err != nil {
		return err
	}

	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return err
	}
	rep, err := ds.PincodeReport(pin)
	if err != nil {
		return err
	}
	return encode(rep)
}

func cmdQueryTop(ctx context.Context, cmd *cli.Command) error {
	ds, err := loadDataset(ctx, getConfig(cmd).Config)
	if err != nil {
		return err
	}
	return encode(ds.TopAnomalies(cmd.Int(queryLimitFlag.Name)))
}

func cmdQuerySector(ctx context.Context, cmd *cli.Command) error {
	ds, err := loadDataset(ctx, getConfig(cmd).Config)
	if err != nil {
		return err
	}
	res, err := ds.Sector(cmd.String(sectorNameFlag.Name), cmd.Float(minRiskFlag.Name), cmd.Int(queryLimitFlag.Name))
	if err != nil {
		return err
	}
	return encode(res)
}

func cmdQueryDistrict(ctx context.Context, cmd *cli.Command) error {
	ds, err := loadDataset(ctx, getConfig(cmd).Config)
	if err != nil {
		return err
	}
	rep, err := ds.DistrictReport(cmd.String(districtNameFlag.Name), cmd.String(roleFlag.Name))
	if err != nil {
		return err
	}
	return encode(rep)
}
