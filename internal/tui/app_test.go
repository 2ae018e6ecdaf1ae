package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/tonearm/internal/domain"
)

type fakeLibrary struct {
	result    domain.CatalogResult
	preview   domain.Preview
	removeErr error
	removed   []string
	previewed []string
}

func (f *fakeLibrary) RefreshCatalog(context.Context) domain.CatalogResult { return f.result }

func (f *fakeLibrary) Preview(_ context.Context, url string) (domain.Preview, error) {
	f.previewed = append(f.previewed, url)
	return f.preview, nil
}

func (f *fakeLibrary) Download(_ context.Context, p domain.Preview) (domain.Song, error) {
	return domain.Song{ID: "new", Title: p.Title}, nil
}

func (f *fakeLibrary) RemoveSong(_ context.Context, id string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, id)
	return nil
}

type fakePlayer struct {
	selected []int
	seeks    []float64
	evicted  []string
	shuffle  bool
	repeat   domain.RepeatMode
}

func (f *fakePlayer) Select(i int) error {
	f.selected = append(f.selected, i)
	return nil
}

func (f *fakePlayer) Toggle() error   { return nil }
func (f *fakePlayer) Next() error     { return nil }
func (f *fakePlayer) Previous() error { return nil }

func (f *fakePlayer) SeekFraction(v float64) error {
	f.seeks = append(f.seeks, v)
	return nil
}

func (f *fakePlayer) ToggleShuffle() bool {
	f.shuffle = !f.shuffle
	return f.shuffle
}

func (f *fakePlayer) CycleRepeat() domain.RepeatMode {
	f.repeat = f.repeat.Next()
	return f.repeat
}

func (f *fakePlayer) Evict(id string) error {
	f.evicted = append(f.evicted, id)
	return nil
}

func (f *fakePlayer) Status() domain.PlaybackStatus { return domain.PlaybackStatus{} }

type fakeQueue struct {
	songs []domain.Song
}

func (q *fakeQueue) Songs() []domain.Song { return q.songs }

func (q *fakeQueue) IndexOf(id string) int {
	for i, s := range q.songs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

type fakeCache map[string]bool

func (c fakeCache) CachedIDs([]domain.Song) map[string]bool { return c }

var testSongs = []domain.Song{
	{ID: "a", Title: "Alpha", Artist: "One", Duration: time.Minute},
	{ID: "b", Title: "Bravo", Artist: "Two", Duration: 2 * time.Minute},
	{ID: "c", Title: "Charlie", Artist: "Three", Duration: 3 * time.Minute},
}

func newTestModel(t *testing.T) (Model, *fakeLibrary, *fakePlayer) {
	t.Helper()
	lib := &fakeLibrary{result: domain.CatalogResult{Songs: testSongs}}
	player := &fakePlayer{}
	q := &fakeQueue{songs: testSongs}
	m := NewModel(lib, player, q, fakeCache{"b": true}, nil, nil)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	next, _ = next.Update(CatalogLoadedMsg{Result: lib.result})
	return next.(Model), lib, player
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send delivers msg without running the resulting command. Status
// messages schedule timers, so only commands under test are run.
func send(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// press delivers msg and runs the command it produces.
func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	next, cmd := send(m, msg)
	if cmd == nil {
		return next, nil
	}
	return next, cmd()
}

func TestCatalogLoaded(t *testing.T) {
	m, _, _ := newTestModel(t)

	if m.Loading {
		t.Error("Loading still set after catalog loaded")
	}
	if got := m.List.ItemCount(); got != len(testSongs) {
		t.Fatalf("list has %d songs, want %d", got, len(testSongs))
	}
	if !m.List.IsCached("b") || m.List.IsCached("a") {
		t.Error("cached markers not applied from the cache index")
	}

	next, _ := m.Update(CatalogLoadedMsg{Result: domain.CatalogResult{Songs: testSongs, FromCache: true}})
	m = next.(Model)
	if !m.Offline || m.StatusMsg == "" {
		t.Errorf("offline result: Offline=%v status=%q", m.Offline, m.StatusMsg)
	}
}

func TestCacheEventMarksSong(t *testing.T) {
	m, _, _ := newTestModel(t)
	ch := make(chan domain.CacheEvent, 1)
	m.cacheEvents = ch

	next, _ := m.Update(CacheEventMsg{Event: domain.CacheEvent{SongID: "c", Cached: true}})
	m = next.(Model)
	if !m.List.IsCached("c") {
		t.Error("song c not marked cached")
	}
}

func TestPlaySelected(t *testing.T) {
	m, _, player := newTestModel(t)

	m, _ = send(m, runes("j"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(player.selected) != 1 || player.selected[0] != 1 {
		t.Errorf("Select calls = %v, want [1]", player.selected)
	}
}

func TestPlayFilteredSelection(t *testing.T) {
	m, _, player := newTestModel(t)

	m, _ = send(m, runes("/"))
	m, _ = send(m, runes("charl"))
	m, _ = send(m, tea.KeyMsg{Type: tea.KeyEnter}) // accept filter
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter}) // play

	if len(player.selected) != 1 || player.selected[0] != 2 {
		t.Errorf("Select calls = %v, want [2]", player.selected)
	}
}

func TestSeekKeys(t *testing.T) {
	m, _, player := newTestModel(t)

	// Idle: arrows do nothing
	press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if len(player.seeks) != 0 {
		t.Fatalf("seek while idle: %v", player.seeks)
	}

	m.applyStatus(domain.PlaybackStatus{
		State:    domain.StatePlaying,
		Song:     &testSongs[0],
		Position: 30 * time.Second,
		Duration: time.Minute,
	})
	press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	press(t, m, tea.KeyMsg{Type: tea.KeyLeft})

	want := []float64{0.55, 0.45}
	if len(player.seeks) != 2 {
		t.Fatalf("seeks = %v, want %v", player.seeks, want)
	}
	for i := range want {
		if diff := player.seeks[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("seek %d = %v, want %v", i, player.seeks[i], want[i])
		}
	}
}

func TestDeleteFlow(t *testing.T) {
	m, lib, player := newTestModel(t)

	m, _ = send(m, runes("x"))
	if m.State != StateConfirmDelete {
		t.Fatalf("state = %v, want confirm delete", m.State)
	}

	m, msg := press(t, m, runes("y"))
	removed, ok := msg.(SongRemovedMsg)
	if !ok {
		t.Fatalf("confirm produced %T, want SongRemovedMsg", msg)
	}
	if removed.Song.ID != "a" || len(lib.removed) != 1 || len(player.evicted) != 1 {
		t.Errorf("removed=%v evicted=%v msg=%+v", lib.removed, player.evicted, removed)
	}
	if m.State != StateBrowsing {
		t.Errorf("state after confirm = %v", m.State)
	}
}

func TestDeleteRemoteFailureKeepsPlayback(t *testing.T) {
	m, lib, player := newTestModel(t)
	lib.removeErr = domain.ErrNetworkUnavailable

	m, _ = send(m, runes("x"))
	m, msg := press(t, m, runes("y"))
	errMsg, ok := msg.(ErrMsg)
	if !ok || !errors.Is(errMsg.Err, domain.ErrNetworkUnavailable) {
		t.Fatalf("confirm produced %#v, want network ErrMsg", msg)
	}
	if len(player.evicted) != 0 {
		t.Errorf("playback evicted after failed delete: %v", player.evicted)
	}

	m, _ = send(m, msg)
	if !m.StatusIsErr {
		t.Error("failed delete should show an error")
	}
}

func TestDeleteCancelled(t *testing.T) {
	m, lib, _ := newTestModel(t)

	m, _ = send(m, runes("x"))
	m, msg := press(t, m, runes("n"))
	if msg != nil || len(lib.removed) != 0 || m.State != StateBrowsing {
		t.Errorf("cancel: msg=%v removed=%v state=%v", msg, lib.removed, m.State)
	}
}

func TestAddFlow(t *testing.T) {
	m, lib, _ := newTestModel(t)
	lib.preview = domain.Preview{SourceURL: "https://youtu.be/dQw4w9WgXcQ", Title: "Never", Duration: 3 * time.Minute}

	m, _ = send(m, runes("a"))
	if m.State != StateAddURL {
		t.Fatalf("state = %v, want add url", m.State)
	}

	// Invalid input stays in the modal with an error
	m, _ = send(m, runes("not a url"))
	m, _ = send(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.State != StateAddURL || !m.StatusIsErr {
		t.Fatalf("invalid url: state=%v err=%v", m.State, m.StatusIsErr)
	}
	if len(lib.previewed) != 0 {
		t.Fatalf("invalid url reached the server: %v", lib.previewed)
	}

	m.InputModal.Show("Add a song", "")
	m, _ = send(m, runes("https://youtu.be/dQw4w9WgXcQ"))
	m, msg := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := msg.(PreviewReadyMsg); !ok {
		t.Fatalf("submit produced %T, want PreviewReadyMsg", msg)
	}

	m, _ = send(m, msg)
	if m.State != StateConfirmDownload {
		t.Fatalf("state = %v, want confirm download", m.State)
	}

	m, msg = press(t, m, runes("y"))
	added, ok := msg.(SongAddedMsg)
	if !ok || added.Song.Title != "Never" {
		t.Fatalf("confirm produced %#v, want SongAddedMsg", msg)
	}
}

func TestNoticeShownOnce(t *testing.T) {
	m, _, _ := newTestModel(t)
	ch := make(chan domain.PlaybackStatus, 1)
	m.updates = ch

	next, _ := m.Update(PlaybackStatusMsg{Status: domain.PlaybackStatus{
		Notice: &domain.Notice{Kind: domain.NoticeError, Text: "Playback failed"},
	}})
	m = next.(Model)
	if m.StatusMsg != "Playback failed" || !m.StatusIsErr {
		t.Fatalf("status = %q err=%v", m.StatusMsg, m.StatusIsErr)
	}

	// A clear for an older message is ignored
	stale := m.statusSeq - 1
	next, _ = m.Update(ClearStatusMsg{Seq: stale})
	m = next.(Model)
	if m.StatusMsg == "" {
		t.Error("stale clear removed the current message")
	}
	next, _ = m.Update(ClearStatusMsg{Seq: m.statusSeq})
	if next.(Model).StatusMsg != "" {
		t.Error("current clear did not remove the message")
	}
}

func TestModeKeys(t *testing.T) {
	m, _, player := newTestModel(t)

	m, _ = send(m, runes("s"))
	if !player.shuffle || m.StatusMsg != "Shuffle on" {
		t.Errorf("shuffle=%v status=%q", player.shuffle, m.StatusMsg)
	}
	m, _ = send(m, runes("r"))
	if player.repeat != domain.RepeatQueue || m.StatusMsg != "Repeat: queue" {
		t.Errorf("repeat=%v status=%q", player.repeat, m.StatusMsg)
	}
}

func TestViewRenders(t *testing.T) {
	m, _, _ := newTestModel(t)
	if m.View() == "" {
		t.Error("empty view")
	}
	m.applyStatus(domain.PlaybackStatus{State: domain.StateLoading, Song: &testSongs[1]})
	if m.View() == "" {
		t.Error("empty view while loading")
	}
	m.State = StateHelp
	if m.View() == "" {
		t.Error("empty help view")
	}
}
