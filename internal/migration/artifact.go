package migration

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

const (
	headerMarker = "-- automatically generated migration"
	timeLayout   = "2006-01-02 15:04:05"
)

// WriteTo writes the header comment lines followed by every rendered block,
// each preceded by a blank line.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}

	fmt.Fprintf(cw, "%s\n", headerMarker)
	fmt.Fprintf(cw, "-- creation date: %s\n", a.GeneratedAt.Format(timeLayout))

	dialect := a.Dialect
	if dialect == nil {
		dialect = Guarded
	}
	for _, b := range a.Blocks {
		fmt.Fprintf(cw, "\n%s", dialect.Render(b))
	}

	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// String renders the whole artifact.
func (a *Artifact) String() string {
	var buf bytes.Buffer
	_, _ = a.WriteTo(&buf)
	return buf.String()
}

// Tables returns the number of table-creation blocks.
func (a *Artifact) Tables() int {
	n := 0
	for _, b := range a.Blocks {
		if b.Kind == CreateTable {
			n++
		}
	}
	return n
}

// countingWriter remembers the first write error so the caller can check once.
type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
