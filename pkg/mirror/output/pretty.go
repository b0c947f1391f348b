package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PrettyFormatter formats the plan with colors and boxes using lipgloss,
// for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatActions(r))
	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Source: "), ValueStyle.Render(r.Source)),
		fmt.Sprintf("%s %s", LabelStyle.Render("Replica:"), ValueStyle.Render(r.Replica)),
		fmt.Sprintf("%s %s",
			LabelStyle.Render("Scanned:"),
			ValueStyle.Render(fmt.Sprintf("%d source / %d replica files in %s",
				r.SourceFiles, r.ReplicaFiles, r.Elapsed.Round(time.Millisecond)))),
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatActions(r *Result) string {
	if r.InSync() {
		return SuccessStyle.Render("  Replica is in sync") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s\n",
		TableHeaderStyle.Render(padRight("ACTION", 6)),
		TableHeaderStyle.Render("PATH")))

	for _, a := range r.Actions {
		kind := a.Kind.String()
		style, ok := kindStyles[kind]
		if !ok {
			style = lipgloss.NewStyle()
		}

		path := PathStyle.Render(a.Path)
		if a.NewPath != "" {
			path += MutedStyle.Render(" -> ") + PathStyle.Render(a.NewPath)
		}
		sb.WriteString(fmt.Sprintf("  %s  %s\n", style.Render(padRight(kind, 6)), path))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		countPart("Create:", r.Summary.Creates),
		countPart("Modify:", r.Summary.Modifies),
		countPart("Rename:", r.Summary.Renames),
		countPart("Delete:", r.Summary.Deletes),
		MutedStyle.Render("Use --format plain for unformatted output"),
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func countPart(label string, n int) string {
	return fmt.Sprintf("%s %s", LabelStyle.Render(label), CountStyle.Render(fmt.Sprintf("%d", n)))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
