package printer

import (
	"bytes"
	"io"
	"sync"
)

// Deferred holds messages written from background goroutines until the
// command has produced its own output. Safe for concurrent use.
type Deferred struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines int
}

// Write stores p. It never fails.
func (d *Deferred) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines += bytes.Count(p, []byte{'\n'})
	return d.buf.Write(p)
}

// Pending returns the number of complete lines waiting to be flushed.
func (d *Deferred) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines
}

// Flush writes everything held to w and empties the buffer.
func (d *Deferred) Flush(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buf.Len() == 0 {
		return nil
	}
	d.lines = 0
	_, err := d.buf.WriteTo(w)
	return err
}
