package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/tui/styles"
)

// NowPlaying renders the transport bar: state, song, clock and progress.
type NowPlaying struct {
	status domain.PlaybackStatus
	width  int
	frame  int
}

// Spinner frames shown while a song is loading
var loadingFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (n *NowPlaying) SetStatus(st domain.PlaybackStatus) {
	n.status = st
}

func (n *NowPlaying) SetWidth(w int) {
	n.width = w
}

func (n *NowPlaying) SetSpinnerFrame(f int) {
	n.frame = f
}

// Height is the number of lines View renders.
func (n NowPlaying) Height() int {
	return 2
}

func (n NowPlaying) View() string {
	st := n.status
	width := max(20, n.width)

	if st.Song == nil {
		line := styles.DimStyle.Render("Nothing playing")
		return line + "\n" + n.modes()
	}

	var icon string
	switch st.State {
	case domain.StateLoading:
		icon = styles.AccentStyle.Render(loadingFrames[n.frame%len(loadingFrames)])
	case domain.StatePlaying:
		icon = styles.AccentStyle.Render(styles.PlayingChar)
	case domain.StatePaused:
		icon = styles.AccentStyle.Render(styles.PausedChar)
	default:
		icon = styles.DimStyle.Render("■")
	}

	source := ""
	if st.State == domain.StatePlaying || st.State == domain.StatePaused {
		if st.Source == domain.SourceLocal {
			source = styles.DimBadgeStyle.Render("offline")
		} else {
			source = styles.DimBadgeStyle.Render("stream")
		}
	}

	clock := fmt.Sprintf("%s / %s", domain.FormatClock(st.Position), domain.FormatClock(st.Duration))
	titleWidth := width - lipgloss.Width(clock) - lipgloss.Width(source) - 6
	title := styles.TitleStyle.Render(styles.Truncate(st.Song.DisplayTitle(), max(5, titleWidth)))

	gap := max(1, width-lipgloss.Width(icon)-lipgloss.Width(title)-lipgloss.Width(source)-lipgloss.Width(clock)-3)
	top := icon + " " + title + strings.Repeat(" ", gap) + source + " " + styles.SubtitleStyle.Render(clock)

	modes := n.modes()
	barWidth := max(3, width-lipgloss.Width(modes)-1)
	bottom := styles.RenderProgressBar(st.Progress(), barWidth) + " " + modes

	return top + "\n" + bottom
}

func (n NowPlaying) modes() string {
	shuffle := styles.DimStyle.Render("shuffle")
	if n.status.Shuffle {
		shuffle = styles.AccentStyle.Render("shuffle")
	}

	repeat := styles.DimStyle.Render("repeat")
	switch n.status.Repeat {
	case domain.RepeatQueue:
		repeat = styles.AccentStyle.Render("repeat all")
	case domain.RepeatTrack:
		repeat = styles.AccentStyle.Render("repeat one")
	}
	return shuffle + " " + repeat
}
