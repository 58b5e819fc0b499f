package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/pickup"
	"github.com/hay-kot/pickup/pkg/iojson"
)

type CartCmd struct {
	flags *Flags
	app   *App

	// show flags
	jsonOutput bool

	// add flags
	name  string
	unit  string
	price int64
	qty   float64

	lines iojson.FileReader[[]basket.Line]
}

// NewCartCmd creates a new cart command
func NewCartCmd(flags *Flags, app *App) *CartCmd {
	return &CartCmd{flags: flags, app: app}
}

// Register adds the cart command to the application
func (cmd *CartCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "cart",
		Usage: "Show and change the active cart",
		Description: `The cart is either a fresh draft or an edit of a placed order. Every change
is saved locally right away; edits reach the order with 'pickup order save'.`,
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the cart",
				UsageText: "pickup cart show [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.runShow,
			},
			{
				Name:      "add",
				Usage:     "Add a product or replace its line",
				UsageText: "pickup cart add <product-id> --price <minor units> [--qty N] [--name NAME] [--unit UNIT]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "display name", Destination: &cmd.name},
					&cli.StringFlag{Name: "unit", Usage: "unit of measure", Value: "pc", Destination: &cmd.unit},
					&cli.Int64Flag{Name: "price", Usage: "unit price in minor currency units", Required: true, Destination: &cmd.price},
					&cli.FloatFlag{Name: "qty", Usage: "quantity", Value: 1, Destination: &cmd.qty},
				},
				Action: cmd.runAdd,
			},
			{
				Name:      "import",
				Usage:     "Add lines from a JSON array",
				UsageText: "pickup cart import [-f lines.json]",
				Flags:     []cli.Flag{cmd.lines.Flag()},
				Action:    cmd.runImport,
			},
			{
				Name:      "set",
				Usage:     "Change the quantity of a product; 0 removes it",
				UsageText: "pickup cart set <product-id> <qty>",
				Action:    cmd.runSet,
			},
			{
				Name:      "rm",
				Usage:     "Remove a product",
				UsageText: "pickup cart rm <product-id>",
				Action:    cmd.runRemove,
			},
			{
				Name:      "date",
				Usage:     "Select the pickup date of a draft",
				UsageText: "pickup cart date <yyyyMMdd>",
				Action:    cmd.runDate,
			},
			{
				Name:      "new",
				Usage:     "Discard the cart and start an empty draft",
				UsageText: "pickup cart new",
				Action:    cmd.runNew,
			},
			{
				Name:      "clear",
				Usage:     "Discard the cart",
				UsageText: "pickup cart clear",
				Action:    cmd.runClear,
			},
		},
	})

	return app
}

// withSession opens the buyer's session, runs fn and prints the resulting cart.
func (cmd *CartCmd) withSession(ctx context.Context, c *cli.Command, fn func(*pickup.Session) error) error {
	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := fn(sess); err != nil {
		return err
	}
	renderView(c.Root().Writer, sess.View())
	return nil
}

func (cmd *CartCmd) runShow(ctx context.Context, c *cli.Command) error {
	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	if cmd.jsonOutput {
		return iojson.WriteLine(c.Root().Writer, sess.View())
	}
	renderView(c.Root().Writer, sess.View())
	return nil
}

func (cmd *CartCmd) runAdd(ctx context.Context, c *cli.Command) error {
	productID, err := requireArg(c, 0, "product-id")
	if err != nil {
		return err
	}
	name := cmd.name
	if name == "" {
		name = productID
	}
	line := basket.Line{
		ProductID:   productID,
		DisplayName: name,
		Unit:        cmd.unit,
		UnitPrice:   cmd.price,
		Quantity:    cmd.qty,
	}
	return cmd.withSession(ctx, c, func(s *pickup.Session) error {
		return s.AddOrUpdateLine(ctx, line)
	})
}

func (cmd *CartCmd) runImport(ctx context.Context, c *cli.Command) error {
	lines, err := cmd.lines.Read()
	if err != nil {
		return err
	}
	return cmd.withSession(ctx, c, func(s *pickup.Session) error {
		for _, l := range lines {
			if err := s.AddOrUpdateLine(ctx, l); err != nil {
				return fmt.Errorf("add %s: %w", l.ProductID, err)
			}
		}
		return nil
	})
}

func (cmd *CartCmd) runSet(ctx context.Context, c *cli.Command) error {
	productID, err := requireArg(c, 0, "product-id")
	if err != nil {
		return err
	}
	raw, err := requireArg(c, 1, "qty")
	if err != nil {
		return err
	}
	qty, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", raw, err)
	}
	return cmd.withSession(ctx, c, func(s *pickup.Session) error {
		return s.SetQuantity(ctx, productID, qty)
	})
}

func (cmd *CartCmd) runRemove(ctx context.Context, c *cli.Command) error {
	productID, err := requireArg(c, 0, "product-id")
	if err != nil {
		return err
	}
	return cmd.withSession(ctx, c, func(s *pickup.Session) error {
		return s.RemoveLine(ctx, productID)
	})
}

func (cmd *CartCmd) runDate(ctx context.Context, c *cli.Command) error {
	key, err := requireArg(c, 0, "yyyyMMdd")
	if err != nil {
		return err
	}
	return cmd.withSession(ctx, c, func(s *pickup.Session) error {
		return s.SelectPickupDate(ctx, key)
	})
}

func (cmd *CartCmd) runNew(ctx context.Context, c *cli.Command) error {
	return cmd.withSession(ctx, c, func(s *pickup.Session) error {
		return s.StartNewDraft(ctx)
	})
}

func (cmd *CartCmd) runClear(ctx context.Context, c *cli.Command) error {
	return cmd.withSession(ctx, c, func(s *pickup.Session) error {
		return s.Clear(ctx)
	})
}

func requireArg(c *cli.Command, i int, name string) (string, error) {
	v := c.Args().Get(i)
	if v == "" {
		return "", fmt.Errorf("missing <%s> argument; usage: %s", name, c.UsageText)
	}
	return v, nil
}
