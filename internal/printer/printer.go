// Package printer writes styled status lines for CLI commands.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hay-kot/pickup/internal/core/styles"
)

type ctxKey struct{}

// Printer writes command results to out and status messages to err.
type Printer struct {
	out io.Writer
	err io.Writer
}

// New returns a printer writing to out and err.
func New(out, err io.Writer) *Printer {
	return &Printer{out: out, err: err}
}

// NewContext returns ctx carrying p.
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the printer stored in ctx, or one bound to stdout and stderr.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok && p != nil {
		return p
	}
	return New(os.Stdout, os.Stderr)
}

// Out is the writer command results go to.
func (p *Printer) Out() io.Writer { return p.out }

// Printf writes a plain line to out.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

// Successf writes a success line to out.
func (p *Printer) Successf(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, styles.SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Infof writes an informational line to err.
func (p *Printer) Infof(format string, args ...any) {
	_, _ = fmt.Fprintln(p.err, styles.MutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Warnf writes a warning line to err.
func (p *Printer) Warnf(format string, args ...any) {
	_, _ = fmt.Fprintln(p.err, styles.WarningStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// Errorf writes an error line to err.
func (p *Printer) Errorf(format string, args ...any) {
	_, _ = fmt.Fprintln(p.err, styles.ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}
