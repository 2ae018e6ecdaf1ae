package components

import "github.com/charmbracelet/bubbles/key"

// SongListKeyMap defines key bindings for song list navigation
type SongListKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Home     key.Binding
	End      key.Binding
	HalfUp   key.Binding
	HalfDown key.Binding
	Escape   key.Binding
	Enter    key.Binding
	Filter   key.Binding
}

// DefaultSongListKeyMap returns the default song list key bindings
func DefaultSongListKeyMap() SongListKeyMap {
	return SongListKeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Home: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "go to top"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "go to bottom"),
		),
		HalfUp: key.NewBinding(
			key.WithKeys("ctrl+u", "pgup"),
			key.WithHelp("C-u", "half page up"),
		),
		HalfDown: key.NewBinding(
			key.WithKeys("ctrl+d", "pgdown"),
			key.WithHelp("C-d", "half page down"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "accept filter"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
	}
}

// ModalKeyMap defines key bindings shared by modals
type ModalKeyMap struct {
	Submit key.Binding
	Cancel key.Binding
}

// DefaultModalKeyMap returns the default modal key bindings
func DefaultModalKeyMap() ModalKeyMap {
	return ModalKeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// Package-level key map instances
var (
	SongListKeys = DefaultSongListKeyMap()
	ModalKeys    = DefaultModalKeyMap()
)
