package commands

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/deadline"
	"github.com/hay-kot/pickup/internal/core/merge"
	"github.com/hay-kot/pickup/internal/core/order"
	"github.com/hay-kot/pickup/internal/core/schedule"
	"github.com/hay-kot/pickup/internal/core/styles"
	"github.com/hay-kot/pickup/internal/pickup"
)

const (
	dayLayout  = "Mon Jan 2"
	timeLayout = "Mon Jan 2 15:04"
)

func renderView(w io.Writer, v pickup.View) {
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.HeaderStyle.Render("Cart"), styles.StateBadge(v.State))

	switch {
	case v.Window != nil:
		win := v.Window
		_, _ = fmt.Fprintf(w, "%s %s  %s %s\n",
			styles.LabelStyle.Render("order"), win.OrderID,
			styles.LabelStyle.Render("status"), win.OrderStatus)
		_, _ = fmt.Fprintf(w, "%s %s  %s %s %s\n",
			styles.LabelStyle.Render("pickup"), win.Pickup.Format(dayLayout),
			styles.LabelStyle.Render("edit until"), win.Deadline.Format(timeLayout),
			styles.UrgencyBadge(win.Urgency))
		if win.Status == deadline.Open {
			_, _ = fmt.Fprintf(w, "%s\n", styles.MutedStyle.Render(formatRemaining(v.Remaining)+" left to edit"))
		}
	case v.Cart.SourcePickupDateKey != "":
		_, _ = fmt.Fprintf(w, "%s %s\n", styles.LabelStyle.Render("pickup"), v.Cart.SourcePickupDateKey)
	}

	if len(v.Cart.Lines) == 0 {
		_, _ = fmt.Fprintln(w, styles.MutedStyle.Render("no items"))
	} else {
		renderLines(w, v.Cart.Lines)
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.LabelStyle.Render("total"), styles.TotalStyle.Render(styles.Money(v.Total)))

	if v.Conflict != nil {
		_, _ = fmt.Fprintln(w)
		renderConflict(w, v.Conflict)
	}
}

func renderLines(w io.Writer, lines []basket.Line) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tPRICE\tTOTAL")
	for _, l := range lines {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n",
			l.ProductID, l.DisplayName, formatQty(l.Quantity), l.Unit,
			styles.Money(l.UnitPrice), styles.Money(l.Total()))
	}
	_ = tw.Flush()
}

func renderConflict(w io.Writer, c *merge.Conflict) {
	_, _ = fmt.Fprintln(w, styles.WarningStyle.Render(fmt.Sprintf("Conflict with order %s (version %d)", c.Remote.ID, c.Remote.Version)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PRODUCT\tKIND\tLOCAL\tREMOTE")
	for _, d := range c.Diffs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ProductID, d.Kind, sideQty(d.Local), sideQty(d.Remote))
	}
	_ = tw.Flush()
}

func renderOrders(w io.Writer, orders []order.PlacedOrder, calc *schedule.Calculator, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPICKUP\tSTATUS\tITEMS\tTOTAL\tDEADLINE")
	for _, o := range orders {
		dl := "-"
		if d, err := calc.EditDeadline(o.PickupAt); err == nil {
			dl = d.Format(timeLayout)
			if o.Status.Editable() {
				dl += " " + styles.UrgencyBadge(deadline.Level(now, d))
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			o.ID, o.PickupAt.In(calc.Zone()).Format(dayLayout), o.Status, len(o.Lines), styles.Money(o.Total()), dl)
	}
	_ = tw.Flush()
}

func renderSchedule(w io.Writer, cycles []schedule.PickupCycle, calc *schedule.Calculator, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DATE\tPICKUP\tEDIT UNTIL\tLEFT\tURGENCY")
	for _, pc := range cycles {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			calc.DateKey(pc.Pickup), pc.Pickup.Format(dayLayout), pc.Deadline.Format(timeLayout),
			formatRemaining(deadline.Remaining(now, pc.Deadline)), styles.UrgencyBadge(deadline.Level(now, pc.Deadline)))
	}
	_ = tw.Flush()
}

func sideQty(l *basket.Line) string {
	if l == nil {
		return "-"
	}
	return formatQty(l.Quantity)
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// formatRemaining renders d as days and hours, or minutes under an hour.
func formatRemaining(d time.Duration) string {
	switch {
	case d <= 0:
		return "0m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd%02dh", days, int(d.Hours())%24)
	}
}
