package tui

// Vertical chrome: one footer line below the now-playing bar
const ChromeHeight = 1

// updateLayout updates component sizes based on window size
func (m *Model) updateLayout() {
	if m.Width == 0 || m.Height == 0 {
		return
	}

	listHeight := m.Height - ChromeHeight - m.NowPlaying.Height()
	if listHeight < 3 {
		listHeight = 3
	}
	m.List.SetSize(m.Width, listHeight)
	m.NowPlaying.SetWidth(m.Width)
}
