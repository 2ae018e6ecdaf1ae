package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/tonearm/internal/tui/styles"
)

// Spinner frames for loading animation
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// RenderSpinner renders a loading spinner
func RenderSpinner(frame int) string {
	return styles.AccentStyle.Render(spinnerFrames[frame%len(spinnerFrames)])
}

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	switch m.State {
	case StateHelp:
		return m.renderHelp()
	case StateAddURL:
		return lipgloss.Place(m.Width, m.Height,
			lipgloss.Center, lipgloss.Center,
			m.InputModal.View())
	case StateConfirmDownload, StateConfirmDelete:
		return m.renderConfirmation()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.List.View(),
		m.NowPlaying.View(),
		m.renderFooter(),
	)
}

func (m Model) renderFooter() string {
	// Left side: spinner while busy, otherwise the transient status
	var left string
	switch {
	case m.Loading:
		left = RenderSpinner(m.SpinnerFrame) + " " + styles.DimStyle.Render(m.LoadingText)
	case m.StatusMsg != "":
		if m.StatusIsErr {
			left = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			left = styles.SuccessStyle.Render(m.StatusMsg)
		}
	case m.Offline:
		left = styles.DimStyle.Render("offline")
	}

	right := styles.AccentStyle.Render("?") + styles.DimStyle.Render(" help")

	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// renderHelp renders the help screen
func (m Model) renderHelp() string {
	help := `
PLAYBACK                        LIBRARY
  Enter      Play selected        /      Filter
  Space      Play/pause           a      Add from YouTube URL
  n          Next                 x      Delete song
  p          Previous/restart     R      Refresh
  ←/→        Seek 5%
  s          Shuffle            NAVIGATION
  r          Repeat off/all/one   j/k    Up/down
                                  g/G    First/last
  q          Quit                 C-u/d  Half page

  ● saved offline   ○ streams from server

Press any key to return...
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(help))
}

// renderConfirmation renders the pending yes/no question
func (m Model) renderConfirmation() string {
	title, body := m.confirmText()
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.ModalTitleStyle.Render(title),
		styles.SubtitleStyle.Render(styles.Truncate(body, max(20, m.Width-12))),
		"",
		styles.AccentStyle.Render("[Y]")+" Yes      "+styles.AccentStyle.Render("[N]")+" No",
	)

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(content))
}
