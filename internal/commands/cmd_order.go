package commands

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pickup/internal/core/styles"
	"github.com/hay-kot/pickup/internal/pickup"
	"github.com/hay-kot/pickup/internal/printer"
	"github.com/hay-kot/pickup/pkg/iojson"
)

type OrderCmd struct {
	flags *Flags
	app   *App

	// flags
	jsonOutput bool
	force      bool
}

// NewOrderCmd creates a new order command
func NewOrderCmd(flags *Flags, app *App) *OrderCmd {
	return &OrderCmd{flags: flags, app: app}
}

// Register adds the order command to the application
func (cmd *OrderCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "order",
		Usage: "List, edit and cancel placed orders",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List the buyer's orders",
				UsageText: "pickup order ls [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON lines",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.runList,
			},
			{
				Name:      "edit",
				Usage:     "Load an order into the cart for editing",
				UsageText: "pickup order edit <order-id> [--force]",
				Description: `Loads the order into the cart. A draft with items is kept unless --force
is given. Re-running edit for the order already in the cart keeps local
changes and reports a conflict if the order changed elsewhere.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "force",
						Usage:       "discard a draft with items",
						Destination: &cmd.force,
					},
				},
				Action: cmd.runEdit,
			},
			{
				Name:      "save",
				Usage:     "Write the edited cart back to its order",
				UsageText: "pickup order save",
				Action:    cmd.runSave,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel an order before its edit deadline",
				UsageText: "pickup order cancel <order-id>",
				Action:    cmd.runCancel,
			},
		},
	})

	return app
}

func (cmd *OrderCmd) runList(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	orders, err := sess.Orders(ctx)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		for _, o := range orders {
			if err := iojson.WriteLine(out, o); err != nil {
				return err
			}
		}
		return nil
	}

	if len(orders) == 0 {
		printer.Ctx(ctx).Infof("No orders found")
		return nil
	}
	renderOrders(out, orders, cmd.app.Orders.Calculator(), cmd.app.Orders.Now())
	return nil
}

func (cmd *OrderCmd) runEdit(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, 0, "order-id")
	if err != nil {
		return err
	}

	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	state, err := sess.EnableEditing(ctx, id, cmd.force)
	if err := explainConflict(ctx, err); err != nil {
		return err
	}

	printer.Ctx(ctx).Infof("Cart is %s", state)
	renderView(c.Root().Writer, sess.View())
	return nil
}

func (cmd *OrderCmd) runSave(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	saved, err := sess.SaveChanges(ctx)
	if err := explainConflict(ctx, err); err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Order %s saved (version %d, total %s)", saved.ID, saved.Version, styles.Money(saved.Total()))
	renderView(c.Root().Writer, sess.View())
	return nil
}

func (cmd *OrderCmd) runCancel(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, 0, "order-id")
	if err != nil {
		return err
	}

	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.CancelOrder(ctx, id); err != nil {
		return err
	}
	printer.Ctx(ctx).Successf("Order %s cancelled", id)
	return nil
}

// explainConflict prints a conflict and points at the resolve command.
func explainConflict(ctx context.Context, err error) error {
	var conflictErr *pickup.ConflictError
	if !errors.As(err, &conflictErr) {
		return err
	}
	p := printer.Ctx(ctx)
	renderConflict(p.Out(), conflictErr.Conflict)
	p.Warnf("Run 'pickup resolve --prefer local|remote' or 'pickup resolve' to pick per product")
	return err
}
