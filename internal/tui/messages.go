package tui

import (
	"github.com/mmcdole/tonearm/internal/domain"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// CatalogLoadedMsg signals that a catalog refresh finished
type CatalogLoadedMsg struct {
	Result domain.CatalogResult
}

// CacheEventMsg reports one background caching outcome
type CacheEventMsg struct {
	Event domain.CacheEvent
}

// PlaybackStatusMsg carries a controller status snapshot
type PlaybackStatusMsg struct {
	Status domain.PlaybackStatus
}

// PreviewReadyMsg signals that metadata for a URL was extracted
type PreviewReadyMsg struct {
	Preview domain.Preview
}

// SongAddedMsg signals that a download finished and the song was added
type SongAddedMsg struct {
	Song domain.Song
}

// SongRemovedMsg signals that a song was deleted
type SongRemovedMsg struct {
	Song domain.Song
}

// TickMsg drives spinner animation
type TickMsg struct{}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct {
	Seq int
}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}

// channelClosedMsg signals that a subscription channel was closed
type channelClosedMsg struct{}
