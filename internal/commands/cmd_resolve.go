package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/pickup/internal/core/merge"
	"github.com/hay-kot/pickup/internal/printer"
)

const (
	choiceLocal  = "local"
	choiceRemote = "remote"
	choiceDrop   = "drop"
)

type ResolveCmd struct {
	flags *Flags
	app   *App

	// flags
	prefer string
}

// NewResolveCmd creates a new resolve command
func NewResolveCmd(flags *Flags, app *App) *ResolveCmd {
	return &ResolveCmd{flags: flags, app: app}
}

// Register adds the resolve command to the application
func (cmd *ResolveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "resolve",
		Usage:     "Merge a cart that conflicts with its order",
		UsageText: "pickup resolve [--prefer local|remote]",
		Description: `Merges the saved cart with the order it edits. --prefer local keeps the
cart's quantities, --prefer remote takes the order's. Without --prefer each
conflicting product is chosen interactively. The merged cart still has to
be written with 'pickup order save'.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "prefer",
				Usage:       "merge policy (local, remote)",
				Destination: &cmd.prefer,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ResolveCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	sess, err := cmd.app.Session(ctx, cmd.flags.Buyer)
	if err != nil {
		return err
	}
	defer sess.Close()

	conflict := sess.PendingConflict()
	if conflict == nil {
		p.Infof("Nothing to resolve")
		return nil
	}

	policy, err := cmd.policy(conflict)
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := sess.ResolveConflict(ctx, policy); err != nil {
		return err
	}

	p.Successf("Conflict resolved (%s); run 'pickup order save' to write it", merge.Name(policy))
	renderView(c.Root().Writer, sess.View())
	return nil
}

func (cmd *ResolveCmd) policy(c *merge.Conflict) (merge.Policy, error) {
	if cmd.prefer != "" {
		return merge.ParsePolicy(cmd.prefer)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("stdin is not a terminal; pass --prefer local or --prefer remote")
	}

	choices := make([]string, len(c.Diffs))
	fields := make([]huh.Field, len(c.Diffs))
	for i, d := range c.Diffs {
		choices[i] = defaultChoice(d)
		fields[i] = huh.NewSelect[string]().
			Title(fmt.Sprintf("%s (%s)", d.ProductID, d.Kind)).
			Options(choiceOptions(d)...).
			Value(&choices[i])
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return nil, err
	}
	return manualPolicy(c, choices), nil
}

func choiceOptions(d merge.Diff) []huh.Option[string] {
	var opts []huh.Option[string]
	if d.Local != nil {
		opts = append(opts, huh.NewOption("keep cart: "+formatQty(d.Local.Quantity)+" "+d.Local.Unit, choiceLocal))
	}
	if d.Remote != nil {
		opts = append(opts, huh.NewOption("keep order: "+formatQty(d.Remote.Quantity)+" "+d.Remote.Unit, choiceRemote))
	}
	return append(opts, huh.NewOption("drop", choiceDrop))
}

func defaultChoice(d merge.Diff) string {
	if d.Local != nil {
		return choiceLocal
	}
	return choiceRemote
}

// manualPolicy maps the per-diff answers, in diff order, to a Manual policy.
func manualPolicy(c *merge.Conflict, choices []string) merge.Manual {
	m := merge.Manual{Choices: make(map[string]merge.Choice, len(c.Diffs))}
	for i, d := range c.Diffs {
		switch choices[i] {
		case choiceLocal:
			m.Choices[d.ProductID] = merge.KeepLocal(d)
		case choiceRemote:
			m.Choices[d.ProductID] = merge.KeepRemote(d)
		default:
			m.Choices[d.ProductID] = merge.Drop()
		}
	}
	return m
}
