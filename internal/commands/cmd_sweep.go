package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pickup/internal/pickup/sweep"
	"github.com/hay-kot/pickup/internal/printer"
	"github.com/hay-kot/pickup/pkg/profiler"
)

type SweepCmd struct {
	flags *Flags
	app   *App

	// flags
	watch     bool
	debugPort int
}

// NewSweepCmd creates a new sweep command
func NewSweepCmd(flags *Flags, app *App) *SweepCmd {
	return &SweepCmd{flags: flags, app: app}
}

// Register adds the sweep command to the application
func (cmd *SweepCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sweep",
		Usage:     "Lock placed orders whose edit deadline has passed",
		UsageText: "pickup sweep [--watch [--debug-port N]]",
		Description: `Moves every placed order past its edit deadline to locked. With --watch
the sweep repeats every sweep.interval until interrupted; --debug-port then
serves pprof and Prometheus metrics on that port.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "watch",
				Usage:       "keep sweeping until interrupted",
				Destination: &cmd.watch,
			},
			&cli.IntFlag{
				Name:        "debug-port",
				Usage:       "serve /metrics and /debug/pprof on this port while watching (e.g., 6060)",
				Sources:     cli.EnvVars("PICKUP_DEBUG_PORT"),
				Destination: &cmd.debugPort,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SweepCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if !cmd.watch {
		n, err := sweep.Once(ctx, cmd.app.Orders)
		if err != nil {
			return err
		}
		p.Successf("Locked %d order(s)", n)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.debugPort > 0 {
		srv := profiler.New(cmd.debugPort, cmd.app.Metrics.Registry())
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start debug server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to shutdown debug server")
			}
		}()
		p.Infof("Metrics at http://%s/metrics", srv.Addr())
	}

	p.Infof("Sweeping every %s", cmd.app.Config.Sweep.Interval)
	return sweep.Start(ctx, cmd.app.Orders, cmd.app.Config.Sweep.Interval)
}
