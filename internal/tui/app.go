package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/tui/components"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateBrowsing ApplicationState = iota
	StateHelp
	StateAddURL
	StateConfirmDownload
	StateConfirmDelete
)

const (
	// Notices stay on screen this long
	statusTimeout = 3 * time.Second
	errorTimeout  = 5 * time.Second

	spinnerInterval = 100 * time.Millisecond

	// Arrow keys seek by this fraction of the track
	seekStep = 0.05
)

// Library is the catalog surface the TUI drives.
type Library interface {
	RefreshCatalog(ctx context.Context) domain.CatalogResult
	Preview(ctx context.Context, sourceURL string) (domain.Preview, error)
	Download(ctx context.Context, p domain.Preview) (domain.Song, error)
	RemoveSong(ctx context.Context, id string) error
}

// Player is the playback surface the TUI drives.
type Player interface {
	Select(i int) error
	Toggle() error
	Next() error
	Previous() error
	SeekFraction(f float64) error
	ToggleShuffle() bool
	CycleRepeat() domain.RepeatMode
	Evict(id string) error
	Status() domain.PlaybackStatus
}

// Queue is the session song list the TUI displays.
type Queue interface {
	Songs() []domain.Song
	IndexOf(id string) int
}

// CacheIndex answers which songs are playable offline.
type CacheIndex interface {
	CachedIDs(songs []domain.Song) map[string]bool
}

// Model is the main Bubble Tea model for the application
type Model struct {
	// Application state
	State ApplicationState
	Ready bool

	// Services
	Library Library
	Player  Player
	Queue   Queue
	Cache   CacheIndex

	// Subscriptions
	cacheEvents <-chan domain.CacheEvent
	updates     <-chan domain.PlaybackStatus

	// UI Components
	List       *components.SongList
	NowPlaying components.NowPlaying
	InputModal components.InputModal

	// Playback
	Status domain.PlaybackStatus

	// Pending confirmations
	pendingPreview *domain.Preview
	pendingDelete  *domain.Song

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg    string
	StatusIsErr  bool
	statusSeq    int
	Loading      bool
	LoadingText  string
	SpinnerFrame int
	Offline      bool
}

// NewModel creates a new application model. cacheEvents and updates feed
// the model; either may be nil.
func NewModel(lib Library, player Player, q Queue, cache CacheIndex, cacheEvents <-chan domain.CacheEvent, updates <-chan domain.PlaybackStatus) Model {
	return Model{
		State:       StateBrowsing,
		Library:     lib,
		Player:      player,
		Queue:       q,
		Cache:       cache,
		cacheEvents: cacheEvents,
		updates:     updates,
		List:        components.NewSongList("Library"),
		InputModal:  components.NewInputModal(),
		Loading:     true,
		LoadingText: "Loading library...",
	}
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		RefreshCatalogCmd(m.Library),
		TickCmd(spinnerInterval),
	}
	if m.cacheEvents != nil {
		cmds = append(cmds, WaitForCacheEventCmd(m.cacheEvents))
	}
	if m.updates != nil {
		cmds = append(cmds, WaitForStatusCmd(m.updates))
	}
	return tea.Batch(cmds...)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.SpinnerFrame++
		m.NowPlaying.SetSpinnerFrame(m.SpinnerFrame)
		return m, TickCmd(spinnerInterval)

	case CatalogLoadedMsg:
		m.Loading = false
		m.Offline = msg.Result.FromCache
		m.syncSongs()
		m.List.SetCached(m.Cache.CachedIDs(msg.Result.Songs))
		if msg.Result.FromCache {
			return m.setStatus(fmt.Sprintf("Offline: showing %d saved songs", len(msg.Result.Songs)), false)
		}
		return m, nil

	case CacheEventMsg:
		m.List.MarkCached(msg.Event.SongID, msg.Event.Cached)
		return m, WaitForCacheEventCmd(m.cacheEvents)

	case PlaybackStatusMsg:
		m.applyStatus(msg.Status)
		cmd := WaitForStatusCmd(m.updates)
		if n := msg.Status.Notice; n != nil {
			next, statusCmd := m.setStatus(n.Text, n.Kind == domain.NoticeError)
			return next, tea.Batch(cmd, statusCmd)
		}
		return m, cmd

	case PreviewReadyMsg:
		m.Loading = false
		p := msg.Preview
		m.pendingPreview = &p
		m.State = StateConfirmDownload
		return m, nil

	case SongAddedMsg:
		m.Loading = false
		m.syncSongs()
		return m.setStatus("Added "+msg.Song.DisplayTitle(), false)

	case SongRemovedMsg:
		m.syncSongs()
		return m.setStatus("Deleted "+msg.Song.DisplayTitle(), false)

	case ErrMsg:
		m.Loading = false
		return m.setStatus(errorText(msg), true)

	case StatusMsg:
		return m.setStatus(msg.Message, msg.IsError)

	case ClearStatusMsg:
		if msg.Seq == m.statusSeq {
			m.StatusMsg = ""
			m.StatusIsErr = false
		}
		return m, nil
	}

	return m, nil
}

// setStatus shows a transient message and schedules its removal
func (m Model) setStatus(text string, isErr bool) (Model, tea.Cmd) {
	m.statusSeq++
	m.StatusMsg = text
	m.StatusIsErr = isErr
	timeout := statusTimeout
	if isErr {
		timeout = errorTimeout
	}
	return m, ClearStatusCmd(m.statusSeq, timeout)
}

// applyStatus mirrors a controller snapshot into the view
func (m *Model) applyStatus(st domain.PlaybackStatus) {
	m.Status = st
	m.NowPlaying.SetStatus(st)
	id := ""
	if st.Song != nil && st.State != domain.StateIdle {
		id = st.Song.ID
	}
	m.List.SetPlaying(id, st.State == domain.StatePaused)
}

// syncSongs reloads the list from the session
func (m *Model) syncSongs() {
	m.List.SetSongs(m.Queue.Songs())
}

// playSelected starts the song under the cursor
func (m Model) playSelected() tea.Cmd {
	song, _, ok := m.List.Selected()
	if !ok {
		return nil
	}
	idx := m.Queue.IndexOf(song.ID)
	if idx < 0 {
		return nil
	}
	return PlayerCmd(func() error { return m.Player.Select(idx) }, "playing "+song.DisplayTitle())
}

// seekBy moves the playhead by delta of the track length
func (m Model) seekBy(delta float64) tea.Cmd {
	st := m.Status
	if st.State != domain.StatePlaying && st.State != domain.StatePaused {
		return nil
	}
	f := max(0, min(1, st.Progress()+delta))
	return PlayerCmd(func() error { return m.Player.SeekFraction(f) }, "seeking")
}

func errorText(e ErrMsg) string {
	switch {
	case errors.Is(e.Err, domain.ErrNetworkUnavailable):
		return e.Context + ": server unreachable"
	default:
		return e.Error()
	}
}
