package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/tonearm/internal/catalog"
)

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle state-specific keys
	switch m.State {
	case StateHelp:
		m.State = StateBrowsing
		return m, nil

	case StateAddURL:
		return m.handleAddURLKey(msg)

	case StateConfirmDownload:
		switch {
		case key.Matches(msg, Keys.Confirm):
			p := *m.pendingPreview
			m.pendingPreview = nil
			m.State = StateBrowsing
			m.Loading = true
			m.LoadingText = "Downloading " + p.Title + "..."
			return m, DownloadCmd(m.Library, p)
		case key.Matches(msg, Keys.Deny):
			m.pendingPreview = nil
			m.State = StateBrowsing
		}
		return m, nil

	case StateConfirmDelete:
		switch {
		case key.Matches(msg, Keys.Confirm):
			song := *m.pendingDelete
			m.pendingDelete = nil
			m.State = StateBrowsing
			return m, RemoveSongCmd(m.Library, m.Player, song)
		case key.Matches(msg, Keys.Deny):
			m.pendingDelete = nil
			m.State = StateBrowsing
		}
		return m, nil
	}

	// Filter typing owns the keyboard
	if m.List.IsFilterTyping() {
		return m, m.List.Update(msg)
	}

	// Global keys
	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.State = StateHelp
		return m, nil

	case key.Matches(msg, Keys.Escape):
		if m.List.IsFiltering() {
			m.List.ClearFilter()
		}
		return m, nil

	case key.Matches(msg, Keys.Filter):
		if m.List.IsFiltering() {
			return m, m.List.Update(msg)
		}
		m.List.ToggleFilter()
		return m, nil

	case key.Matches(msg, Keys.Play):
		return m, m.playSelected()

	case key.Matches(msg, Keys.Toggle):
		return m, PlayerCmd(m.Player.Toggle, "play/pause")

	case key.Matches(msg, Keys.Next):
		return m, PlayerCmd(m.Player.Next, "next")

	case key.Matches(msg, Keys.Previous):
		return m, PlayerCmd(m.Player.Previous, "previous")

	case key.Matches(msg, Keys.SeekBack):
		return m, m.seekBy(-seekStep)

	case key.Matches(msg, Keys.SeekForward):
		return m, m.seekBy(seekStep)

	case key.Matches(msg, Keys.Shuffle):
		on := m.Player.ToggleShuffle()
		if on {
			return m.setStatus("Shuffle on", false)
		}
		return m.setStatus("Shuffle off", false)

	case key.Matches(msg, Keys.Repeat):
		return m.setStatus("Repeat: "+m.Player.CycleRepeat().String(), false)

	case key.Matches(msg, Keys.Add):
		m.State = StateAddURL
		m.InputModal.Show("Add a song", "https://www.youtube.com/watch?v=...")
		return m, nil

	case key.Matches(msg, Keys.Delete):
		if song, _, ok := m.List.Selected(); ok {
			m.pendingDelete = &song
			m.State = StateConfirmDelete
		}
		return m, nil

	case key.Matches(msg, Keys.Refresh):
		m.Loading = true
		m.LoadingText = "Refreshing library..."
		return m, RefreshCatalogCmd(m.Library)
	}

	// Everything else moves the cursor
	return m, m.List.Update(msg)
}

// handleAddURLKey routes keys to the URL input modal
func (m Model) handleAddURLKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var submitted bool
	m.InputModal, cmd, submitted = m.InputModal.Update(msg)

	if !m.InputModal.IsVisible() {
		m.State = StateBrowsing
		return m, cmd
	}
	if !submitted {
		return m, cmd
	}

	url, err := catalog.ValidateSourceURL(m.InputModal.Value())
	if err != nil {
		return m.setStatus("Invalid YouTube URL", true)
	}

	m.InputModal.Hide()
	m.State = StateBrowsing
	m.Loading = true
	m.LoadingText = "Fetching video info..."
	return m, PreviewCmd(m.Library, url)
}

// confirmText describes the pending confirmation
func (m Model) confirmText() (title, body string) {
	switch m.State {
	case StateConfirmDownload:
		if m.pendingPreview != nil {
			return "Download?", describePreview(*m.pendingPreview)
		}
	case StateConfirmDelete:
		if m.pendingDelete != nil {
			return "Delete?", m.pendingDelete.DisplayTitle() + "\n\nThis removes it from the server and this device."
		}
	}
	return "", ""
}
