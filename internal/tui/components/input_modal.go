package components

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/tonearm/internal/tui/styles"
)

const inputModalWidth = 60

// InputModal is a single-line text input modal
type InputModal struct {
	visible bool
	title   string
	input   textinput.Model
}

// NewInputModal creates a new input modal
func NewInputModal() InputModal {
	ti := textinput.New()
	ti.CharLimit = 2048
	ti.Width = inputModalWidth - 2
	ti.Prompt = ""
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle

	return InputModal{
		input: ti,
	}
}

// Show displays the modal with a title and placeholder
func (m *InputModal) Show(title, placeholder string) {
	m.visible = true
	m.title = title
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.input.Focus()
}

// Hide dismisses the modal
func (m *InputModal) Hide() {
	m.visible = false
	m.input.Blur()
}

// IsVisible returns whether the modal is shown
func (m InputModal) IsVisible() bool {
	return m.visible
}

// Value returns the current input value
func (m InputModal) Value() string {
	return m.input.Value()
}

// Update handles input events, returns (modal, cmd, submitted)
func (m InputModal) Update(msg tea.Msg) (InputModal, tea.Cmd, bool) {
	if !m.visible {
		return m, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, ModalKeys.Submit):
			return m, nil, true
		case key.Matches(keyMsg, ModalKeys.Cancel):
			m.Hide()
			return m, nil, false
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

// View renders the input modal
func (m InputModal) View() string {
	if !m.visible {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.White).
		Bold(true).
		Width(inputModalWidth).
		Background(styles.SlateDark)

	inputStyle := lipgloss.NewStyle().
		Width(inputModalWidth).
		Background(styles.SlateDark)

	spacer := lipgloss.NewStyle().
		Width(inputModalWidth).
		Background(styles.SlateDark).
		Render("")

	hint := lipgloss.NewStyle().
		Width(inputModalWidth).
		Background(styles.SlateDark).
		Foreground(styles.DimGray).
		Render("enter submit · esc cancel")

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.title),
		spacer,
		inputStyle.Render(m.input.View()),
		spacer,
		hint,
	)

	return styles.ModalStyle.Render(content)
}
