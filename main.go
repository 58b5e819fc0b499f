package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pickup/internal/commands"
	"github.com/hay-kot/pickup/internal/core/config"
	"github.com/hay-kot/pickup/internal/core/styles"
	"github.com/hay-kot/pickup/internal/printer"
	"github.com/hay-kot/pickup/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		pickupApp = &commands.App{}
		// bus notices are held until the command has written its output
		notices = &printer.Deferred{}
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:        "pickup",
		Usage:       commands.Usage,
		UsageText:   "pickup [global options] command [command options]",
		Description: commands.Description,
		Version:     build(),
		Flags:       commands.GlobalFlags(flags),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; use explicit path or default to <datadir>/pickup.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "pickup.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Apply configured theme (validation ensures name is valid)
			palette, _ := styles.GetPalette(cfg.Theme)
			styles.SetTheme(palette)

			ctx = printer.NewContext(ctx, printer.New(c.Root().Writer, c.Root().ErrWriter))

			// config validate does not need the stores
			if c.Args().First() == "config" {
				return ctx, nil
			}

			svcLogger := log.With().Str("component", "pickup").Logger()
			a, err := commands.NewApp(ctx, cfg, svcLogger, notices)
			if err != nil {
				return ctx, err
			}

			// Populate the pre-allocated App struct (commands already hold a pointer to it)
			*pickupApp = *a
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			err := pickupApp.Close()
			if err != nil {
				log.Error().Err(err).Msg("failed to close application")
			}
			_ = notices.Flush(c.Root().ErrWriter)

			// Close log file
			if logCloser != nil {
				logCloser()
			}
			return err
		},
	}

	app = commands.Register(app, flags, pickupApp)

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
