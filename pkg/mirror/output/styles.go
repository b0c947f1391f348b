package output

import "github.com/charmbracelet/lipgloss"

// Colors from the ANSI 256-color palette.
const (
	// ColorPrimary is used for headers and counts (bright blue).
	ColorPrimary = lipgloss.Color("39")

	// ColorSuccess marks creates and the in-sync notice (green).
	ColorSuccess = lipgloss.Color("42")

	// ColorWarning marks modifies and warnings (orange).
	ColorWarning = lipgloss.Color("214")

	// ColorDanger marks deletes (red).
	ColorDanger = lipgloss.Color("196")

	// ColorMove marks renames (magenta).
	ColorMove = lipgloss.Color("170")

	// ColorMuted is used for secondary text (gray).
	ColorMuted = lipgloss.Color("245")
)

// Box styles.
var (
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)
)

// Text styles.
var (
	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	PathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	CountStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorMuted)
)

// kindStyles colors the action column by kind.
var kindStyles = map[string]lipgloss.Style{
	"create": lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
	"modify": lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
	"rename": lipgloss.NewStyle().Foreground(ColorMove).Bold(true),
	"delete": lipgloss.NewStyle().Foreground(ColorDanger).Bold(true),
}
