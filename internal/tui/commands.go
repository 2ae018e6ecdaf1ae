package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/tonearm/internal/domain"
)

// Command factories for async operations

// RefreshCatalogCmd fetches the catalog, falling back to stored songs
func RefreshCatalogCmd(lib Library) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return CatalogLoadedMsg{Result: lib.RefreshCatalog(ctx)}
	}
}

// PreviewCmd extracts metadata for a source URL
func PreviewCmd(lib Library, url string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		p, err := lib.Preview(ctx, url)
		if err != nil {
			return ErrMsg{Err: err, Context: "fetching video info"}
		}
		return PreviewReadyMsg{Preview: p}
	}
}

// DownloadCmd asks the server to acquire a previewed song
func DownloadCmd(lib Library, p domain.Preview) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		song, err := lib.Download(ctx, p)
		if err != nil {
			return ErrMsg{Err: err, Context: "downloading"}
		}
		return SongAddedMsg{Song: song}
	}
}

// RemoveSongCmd deletes a song and stops it if it is playing
func RemoveSongCmd(lib Library, player Player, song domain.Song) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := lib.RemoveSong(ctx, song.ID); err != nil {
			return ErrMsg{Err: err, Context: "deleting " + song.DisplayTitle()}
		}
		if err := player.Evict(song.ID); err != nil {
			return ErrMsg{Err: err, Context: "stopping playback"}
		}
		return SongRemovedMsg{Song: song}
	}
}

// PlayerCmd runs a controller command off the update loop
func PlayerCmd(fn func() error, action string) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return ErrMsg{Err: err, Context: action}
		}
		return nil
	}
}

// WaitForCacheEventCmd blocks until the next caching outcome
func WaitForCacheEventCmd(ch <-chan domain.CacheEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return CacheEventMsg{Event: ev}
	}
}

// WaitForStatusCmd blocks until the next playback status snapshot
func WaitForStatusCmd(ch <-chan domain.PlaybackStatus) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return PlaybackStatusMsg{Status: st}
	}
}

// TickCmd returns a command that ticks after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(seq int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{Seq: seq}
	})
}

func describePreview(p domain.Preview) string {
	if p.Artist == "" {
		return fmt.Sprintf("%s (%s)", p.Title, domain.FormatClock(p.Duration))
	}
	return fmt.Sprintf("%s - %s (%s)", p.Title, p.Artist, domain.FormatClock(p.Duration))
}
