package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pickup/internal/core/styles"
	"github.com/hay-kot/pickup/internal/printer"
)

type CheckoutCmd struct {
	flags *Flags
	app   *App

	// flags
	date string
}

// NewCheckoutCmd creates a new checkout command
func NewCheckoutCmd(flags *Flags, app *App) *CheckoutCmd {
	return &CheckoutCmd{flags: flags, app: app}
}

// Register adds the checkout command to the application
func (cmd *CheckoutCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "checkout",
		Usage:     "Place the draft as an order",
		UsageText: "pickup checkout [--date yyyyMMdd]",
		Description: `Places the draft for its selected pickup date, or the first date still open
for ordering. Only one order per pickup date is allowed; edit the existing
order instead.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "date",
				Usage:       "pickup date (yyyyMMdd) to order for",
				Destination: &cmd.date,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *CheckoutCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	if cmd.date != "" {
		if err := sess.SelectPickupDate(ctx, cmd.date); err != nil {
			return err
		}
	}

	placed, err := sess.Checkout(ctx)
	if err != nil {
		return err
	}

	p.Successf("Placed order %s for %s, total %s",
		placed.ID, placed.PickupAt.In(cmd.app.Orders.Calculator().Zone()).Format(dayLayout), styles.Money(placed.Total()))
	renderView(c.Root().Writer, sess.View())
	return nil
}
