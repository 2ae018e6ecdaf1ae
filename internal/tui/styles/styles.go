package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Amber      = lipgloss.Color("#F59E0B")
	SlateDark  = lipgloss.Color("#1F2937")
	SlateLight = lipgloss.Color("#374151")
	DimGray    = lipgloss.Color("#6B7280")
	LightGray  = lipgloss.Color("#9CA3AF")
	White      = lipgloss.Color("#F9FAFB")
	Green      = lipgloss.Color("#10B981")
	Red        = lipgloss.Color("#EF4444")
	Blue       = lipgloss.Color("#3B82F6")
)

// Borders
var (
	ActiveBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Amber)

	InactiveBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(DimGray)
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(Amber)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)
)

// Raw availability characters (unstyled)
const (
	CachedChar  = "●"
	StreamChar  = "○"
	PlayingChar = "▶"
	PausedChar  = "⏸"
)

// Modal styles
var (
	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Amber).
			Padding(1, 2).
			Background(SlateDark)

	ModalTitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true).
			MarginBottom(1)
)

// Help styles
var (
	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(Amber)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(DimGray)
)

// Progress bar styles
var (
	ProgressFullStyle = lipgloss.NewStyle().
				Foreground(Amber)

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(DimGray)
)

// Badge styles
var (
	BadgeStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(Amber).
			Padding(0, 1)

	DimBadgeStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Background(SlateLight).
			Padding(0, 1)
)

// Filter styles
var (
	FilterStyle = lipgloss.NewStyle().
			Foreground(Amber)

	FilterPromptStyle = lipgloss.NewStyle().
				Foreground(Amber).
				Bold(true)
)

// Match highlight styles for filter results
var (
	MatchHighlightStyle = lipgloss.NewStyle().
				Foreground(Amber).
				Bold(true)

	MatchHighlightSelectedStyle = lipgloss.NewStyle().
					Foreground(Amber).
					Background(SlateLight).
					Bold(true)
)

// Truncate shortens s to width cells, ending in an ellipsis when cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 3 {
		return string(runes[:min(width, len(runes))])
	}
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// RenderProgressBar renders a bar of width cells filled to fraction f.
func RenderProgressBar(f float64, width int) string {
	if width < 3 {
		return ""
	}
	f = max(0, min(1, f))

	filled := int(float64(width) * f)
	return ProgressFullStyle.Render(strings.Repeat("█", filled)) +
		ProgressEmptyStyle.Render(strings.Repeat("░", width-filled))
}

// RenderListRow renders a complete list row with uniform background when selected.
// Each part is styled explicitly to avoid ANSI reset code issues.
func RenderListRow(parts []RowPart, selected bool, width int) string {
	bg := SlateLight
	defaultFg := LightGray
	selectedFg := White

	var b strings.Builder
	visibleLen := 0

	for _, part := range parts {
		style := lipgloss.NewStyle()
		if part.Foreground != nil {
			style = style.Foreground(*part.Foreground)
		} else if selected {
			style = style.Foreground(selectedFg)
		} else {
			style = style.Foreground(defaultFg)
		}
		if part.Bold {
			style = style.Bold(true)
		}
		if selected {
			style = style.Background(bg)
		}
		b.WriteString(style.Render(part.Text))
		visibleLen += lipgloss.Width(part.Text)
	}

	// Fill to width, minus one cell of margin each side
	padStyle := lipgloss.NewStyle()
	if selected {
		padStyle = padStyle.Background(bg)
	}
	if pad := width - visibleLen - 2; pad > 0 {
		b.WriteString(padStyle.Render(strings.Repeat(" ", pad)))
	}
	margin := padStyle.Render(" ")

	return margin + b.String() + margin
}

// RowPart is a segment of a list row with an optional foreground color.
type RowPart struct {
	Text       string
	Foreground *lipgloss.Color
	Bold       bool
}
