package dispatch

import (
	"errors"
	"io"

	"github.com/fatih/color"
)

// Console prints one human-readable line per outcome.
type Console struct {
	w       io.Writer
	success *color.Color
	failure *color.Color
	abort   *color.Color
}

// NewConsole returns a Console writing to w. Colors are emitted only when
// colored is true.
func NewConsole(w io.Writer, colored bool) *Console {
	c := &Console{
		w:       w,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		abort:   color.New(color.FgYellow),
	}
	for _, col := range []*color.Color{c.success, c.failure, c.abort} {
		if colored {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Sent prints a success line for recipient.
func (c *Console) Sent(recipient, filename string) {
	c.success.Fprintf(c.w, "Email sent to %s with attachment '%s'\n", recipient, filename)
}

// Failed prints a failure line for recipient.
func (c *Console) Failed(recipient string, err error) {
	c.failure.Fprintf(c.w, "Failed to send email to %s: %v\n", recipient, err)
}

// Aborted prints why the run stopped before or while opening the session.
func (c *Console) Aborted(err error) {
	if errors.Is(err, ErrInput) {
		c.abort.Fprintf(c.w, "%v\n", err)
		return
	}
	c.abort.Fprintf(c.w, "An error occurred while sending emails: %v\n", err)
}
