package output

import (
	"bytes"
	"text/tabwriter"
)

// PlainFormatter formats the plan as a tab-aligned table with one action
// per line. No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("ACTION\tPATH\tTARGET\n")); err != nil {
		return err
	}

	for _, a := range r.Actions {
		target := a.NewPath
		if target == "" {
			target = "-"
		}
		if _, err := tw.Write([]byte(a.Kind.String() + "\t" + a.Path + "\t" + target + "\n")); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
