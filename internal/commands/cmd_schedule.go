package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pickup/internal/core/deadline"
	"github.com/hay-kot/pickup/internal/core/schedule"
	"github.com/hay-kot/pickup/pkg/iojson"
)

type ScheduleCmd struct {
	flags *Flags
	app   *App

	// flags
	count      int
	jsonOutput bool
}

// NewScheduleCmd creates a new schedule command
func NewScheduleCmd(flags *Flags, app *App) *ScheduleCmd {
	return &ScheduleCmd{flags: flags, app: app}
}

// Register adds the schedule command to the application
func (cmd *ScheduleCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "schedule",
		Usage:     "List upcoming pickup dates and their edit deadlines",
		UsageText: "pickup schedule [--count N] [--json]",
		Description: `Shows the next pickup dates that can still be ordered for. A pickup whose
edit deadline has passed is skipped.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "count",
				Aliases:     []string{"n"},
				Usage:       "number of pickup dates to list",
				Value:       4,
				Destination: &cmd.count,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

type scheduleEntry struct {
	DateKey  string           `json:"date_key"`
	Pickup   time.Time        `json:"pickup"`
	Deadline time.Time        `json:"deadline"`
	Urgency  deadline.Urgency `json:"urgency"`
}

func (cmd *ScheduleCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	calc := cmd.app.Orders.Calculator()
	now := cmd.app.Orders.Now()

	var cycles []schedule.PickupCycle
	for pickup := range calc.Available(cmd.count, now) {
		pc, err := calc.PickupCycle(pickup)
		if err != nil {
			return err
		}
		cycles = append(cycles, pc)
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		for _, pc := range cycles {
			entry := scheduleEntry{
				DateKey:  calc.DateKey(pc.Pickup),
				Pickup:   pc.Pickup,
				Deadline: pc.Deadline,
				Urgency:  deadline.Level(now, pc.Deadline),
			}
			if err := iojson.WriteLine(out, entry); err != nil {
				return err
			}
		}
		return nil
	}

	renderSchedule(out, cycles, calc, now)
	return nil
}
