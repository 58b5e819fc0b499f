package commands

import "github.com/urfave/cli/v3"

const (
	Usage       = "Order groceries for a weekly pickup"
	Description = `Pickup keeps one cart per buyer and turns it into orders for the tenant's
weekly pickup date. Placed orders stay editable until the edit deadline
before pickup; after that they are locked.

Run 'pickup schedule' to see the next pickup dates and their deadlines.
Run 'pickup cart add' to start a draft and 'pickup checkout' to place it.`
)

// Register adds every pickup command to root.
func Register(root *cli.Command, flags *Flags, app *App) *cli.Command {
	root = NewScheduleCmd(flags, app).Register(root)
	root = NewCartCmd(flags, app).Register(root)
	root = NewCheckoutCmd(flags, app).Register(root)
	root = NewOrderCmd(flags, app).Register(root)
	root = NewResolveCmd(flags, app).Register(root)
	root = NewSweepCmd(flags, app).Register(root)
	root = NewConfigValidateCmd(flags).Register(root)
	return root
}

// GlobalFlags returns the root flags bound to flags.
func GlobalFlags(flags *Flags) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error, fatal, panic)",
			Sources:     cli.EnvVars("PICKUP_LOG_LEVEL"),
			Value:       "info",
			Destination: &flags.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-file",
			Usage:       "path to log file (defaults to <data-dir>/pickup.log)",
			Sources:     cli.EnvVars("PICKUP_LOG_FILE"),
			Destination: &flags.LogFile,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to config file",
			Sources:     cli.EnvVars("PICKUP_CONFIG"),
			Value:       DefaultConfigPath(),
			Destination: &flags.ConfigPath,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "path to data directory",
			Sources:     cli.EnvVars("PICKUP_DATA_DIR"),
			Value:       DefaultDataDir(),
			Destination: &flags.DataDir,
		},
		&cli.StringFlag{
			Name:        "buyer",
			Usage:       "buyer id (defaults to buyer in the config file)",
			Sources:     cli.EnvVars("PICKUP_BUYER"),
			Destination: &flags.Buyer,
		},
	}
}
