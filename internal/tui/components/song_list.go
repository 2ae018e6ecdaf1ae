package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/search"
	"github.com/mmcdole/tonearm/internal/tui/styles"
)

// Layout constants for the song list
const (
	// Border adds 1 char on each side
	BorderWidth  = 2
	BorderHeight = 2

	// Scroll indicators ("↑ more" and "↓ more") each take 1 line
	ScrollIndicatorLines = 2

	durationWidth = 6
)

// SongList is the scrollable, filterable list of songs in the session.
type SongList struct {
	songs  []domain.Song
	cached map[string]bool

	playingID string
	paused    bool

	// Selection
	cursor     int
	offset     int
	maxVisible int

	// Dimensions
	width  int
	height int

	title string

	// Filter state
	filterActive bool
	filterInput  textinput.Model
	filterQuery  string
	matches      []search.Match // nil when no filter query
}

// NewSongList creates an empty song list
func NewSongList(title string) *SongList {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.Prompt = "/ "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = styles.FilterStyle

	return &SongList{
		title:       title,
		filterInput: ti,
		cached:      make(map[string]bool),
	}
}

// SetSongs replaces the list contents. The cursor stays on the same song
// when it is still present.
func (l *SongList) SetSongs(songs []domain.Song) {
	selectedID := ""
	if s, _, ok := l.Selected(); ok {
		selectedID = s.ID
	}

	l.songs = songs
	if l.filterQuery != "" {
		l.matches = search.Filter(l.songs, l.filterQuery)
	}

	l.cursor = 0
	for i := 0; i < l.ItemCount(); i++ {
		if l.songs[l.mapIndex(i)].ID == selectedID {
			l.cursor = i
			break
		}
	}
	l.ensureVisible()
}

// SetCached replaces the set of songs playable offline.
func (l *SongList) SetCached(cached map[string]bool) {
	l.cached = cached
}

// MarkCached records the caching outcome for one song.
func (l *SongList) MarkCached(id string, cached bool) {
	if l.cached == nil {
		l.cached = make(map[string]bool)
	}
	l.cached[id] = cached
}

// IsCached reports whether a song is marked as playable offline.
func (l *SongList) IsCached(id string) bool {
	return l.cached[id]
}

// SetPlaying marks the song currently loaded in the player.
func (l *SongList) SetPlaying(id string, paused bool) {
	l.playingID = id
	l.paused = paused
}

func (l *SongList) SetSize(width, height int) {
	l.width = width
	l.height = height
	l.recalcMaxVisible()
	l.ensureVisible()
}

// Selected returns the song under the cursor and its index in the
// unfiltered list.
func (l *SongList) Selected() (domain.Song, int, bool) {
	if l.cursor < 0 || l.cursor >= l.ItemCount() {
		return domain.Song{}, -1, false
	}
	idx := l.mapIndex(l.cursor)
	return l.songs[idx], idx, true
}

// ItemCount is the number of visible rows after filtering.
func (l *SongList) ItemCount() int {
	if l.matches != nil {
		return len(l.matches)
	}
	return len(l.songs)
}

// Update handles navigation and filter typing.
func (l *SongList) Update(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	// Typing into the filter
	if l.filterActive && l.filterInput.Focused() {
		switch {
		case key.Matches(keyMsg, SongListKeys.Escape):
			l.clearFilter()
			return nil
		case key.Matches(keyMsg, SongListKeys.Enter):
			l.filterInput.Blur()
			return nil
		case keyMsg.String() == "backspace" && l.filterInput.Value() == "":
			l.clearFilter()
			return nil
		}

		var cmd tea.Cmd
		l.filterInput, cmd = l.filterInput.Update(msg)
		l.applyFilter()
		return cmd
	}

	if l.filterActive {
		switch {
		case key.Matches(keyMsg, SongListKeys.Escape):
			l.clearFilter()
			return nil
		case key.Matches(keyMsg, SongListKeys.Filter):
			l.filterInput.Focus()
			return nil
		}
	}

	count := l.ItemCount()
	if count == 0 {
		return nil
	}

	switch {
	case key.Matches(keyMsg, SongListKeys.Down):
		if l.cursor < count-1 {
			l.cursor++
		}
	case key.Matches(keyMsg, SongListKeys.Up):
		if l.cursor > 0 {
			l.cursor--
		}
	case key.Matches(keyMsg, SongListKeys.Home):
		l.cursor = 0
	case key.Matches(keyMsg, SongListKeys.End):
		l.cursor = count - 1
	case key.Matches(keyMsg, SongListKeys.HalfDown):
		l.cursor = min(count-1, l.cursor+max(1, l.maxVisible/2))
	case key.Matches(keyMsg, SongListKeys.HalfUp):
		l.cursor = max(0, l.cursor-max(1, l.maxVisible/2))
	}
	l.ensureVisible()
	return nil
}

// ToggleFilter activates the filter input
func (l *SongList) ToggleFilter() {
	l.filterActive = true
	l.filterInput.Focus()
	l.recalcMaxVisible()
}

// IsFiltering returns true if filter mode is active
func (l *SongList) IsFiltering() bool {
	return l.filterActive
}

// IsFilterTyping returns true if filter is active AND input is focused
func (l *SongList) IsFilterTyping() bool {
	return l.filterActive && l.filterInput.Focused()
}

// ClearFilter deactivates the filter and shows all songs
func (l *SongList) ClearFilter() {
	l.clearFilter()
}

func (l *SongList) recalcMaxVisible() {
	// Reserve the title line and both scroll indicators
	l.maxVisible = l.height - BorderHeight - ScrollIndicatorLines - 1
	if l.filterActive {
		l.maxVisible--
	}
	if l.maxVisible < 1 {
		l.maxVisible = 1
	}
}

func (l *SongList) ensureVisible() {
	if l.maxVisible <= 0 {
		return
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.maxVisible {
		l.offset = l.cursor - l.maxVisible + 1
	}
	if l.offset < 0 {
		l.offset = 0
	}
}

func (l *SongList) clearFilter() {
	selectedID := ""
	if s, _, ok := l.Selected(); ok {
		selectedID = s.ID
	}

	l.filterActive = false
	l.filterQuery = ""
	l.matches = nil
	l.filterInput.SetValue("")
	l.filterInput.Blur()
	l.recalcMaxVisible()

	for i, s := range l.songs {
		if s.ID == selectedID {
			l.cursor = i
			break
		}
	}
	l.ensureVisible()
}

func (l *SongList) applyFilter() {
	l.filterQuery = strings.TrimSpace(l.filterInput.Value())
	if l.filterQuery == "" {
		l.matches = nil
	} else {
		l.matches = search.Filter(l.songs, l.filterQuery)
	}
	l.cursor = 0
	l.offset = 0
}

func (l *SongList) mapIndex(i int) int {
	if l.matches != nil && i < len(l.matches) {
		return l.matches[i].Index
	}
	return i
}

func (l *SongList) matchedIndexes(i int) []int {
	if l.matches != nil && i < len(l.matches) {
		return l.matches[i].MatchedIndexes
	}
	return nil
}

// View renders the list inside a border sized to the list dimensions.
func (l *SongList) View() string {
	style := styles.ActiveBorder
	frameW, frameH := style.GetFrameSize()

	return style.
		Width(l.width - frameW).
		Height(l.height - frameH).
		Render(l.renderContent())
}

func (l *SongList) renderContent() string {
	itemWidth := l.width - BorderWidth
	if itemWidth < 10 {
		itemWidth = 10
	}

	title := l.title
	if n := len(l.songs); n > 0 {
		title = fmt.Sprintf("%s (%d)", l.title, n)
	}
	titleLine := styles.AccentStyle.Render(styles.Truncate(title, itemWidth))

	count := l.ItemCount()
	if count == 0 {
		empty := "No songs yet. Press a to add one."
		if l.filterActive && l.filterQuery != "" {
			empty = "No matches"
		}
		content := titleLine + "\n \n" + styles.DimStyle.Render(empty) + "\n "
		if l.filterActive {
			content += "\n" + l.renderFilterBar()
		}
		return content
	}

	end := min(l.offset+l.maxVisible, count)
	lines := make([]string, 0, end-l.offset)
	for i := l.offset; i < end; i++ {
		lines = append(lines, l.renderSong(i, i == l.cursor, itemWidth))
	}

	header := " "
	if l.offset > 0 {
		header = styles.DimStyle.Render("↑ more")
	}
	footer := " "
	if end < count {
		footer = styles.DimStyle.Render("↓ more")
	}

	content := titleLine + "\n" + header + "\n" + strings.Join(lines, "\n") + "\n" + footer
	if l.filterActive {
		content += "\n" + l.renderFilterBar()
	}
	return content
}

func (l *SongList) renderSong(row int, selected bool, width int) string {
	song := l.songs[l.mapIndex(row)]

	indicator := styles.StreamChar
	indicatorFg := styles.DimGray
	if l.cached[song.ID] {
		indicator = styles.CachedChar
		indicatorFg = styles.Green
	}
	if song.ID == l.playingID {
		indicator = styles.PlayingChar
		if l.paused {
			indicator = styles.PausedChar
		}
		indicatorFg = styles.Amber
	}

	// indicator(1) + space(1) + title + space(1) + duration + margins(2)
	titleWidth := max(5, width-durationWidth-5)
	label := styles.Truncate(search.Label(song), titleWidth)
	pad := max(0, titleWidth-lipgloss.Width(label))

	dimFg := styles.DimGray
	parts := []styles.RowPart{
		{Text: indicator, Foreground: &indicatorFg},
		{Text: " "},
	}
	parts = append(parts, highlightParts(label, l.matchedIndexes(row), song.ID == l.playingID)...)
	parts = append(parts,
		styles.RowPart{Text: strings.Repeat(" ", pad+1)},
		styles.RowPart{Text: fmt.Sprintf("%*s", durationWidth, song.FormattedDuration()), Foreground: &dimFg},
	)
	return styles.RenderListRow(parts, selected, width)
}

// highlightParts splits label into runs so matched bytes render in the
// accent color.
func highlightParts(label string, matched []int, bold bool) []styles.RowPart {
	if len(matched) == 0 {
		return []styles.RowPart{{Text: label, Bold: bold}}
	}

	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}

	accent := styles.Amber
	var parts []styles.RowPart
	var run strings.Builder
	runHit := false
	flush := func() {
		if run.Len() == 0 {
			return
		}
		p := styles.RowPart{Text: run.String(), Bold: bold}
		if runHit {
			p.Foreground = &accent
		}
		parts = append(parts, p)
		run.Reset()
	}
	for i, r := range label {
		if hit[i] != runHit {
			flush()
			runHit = hit[i]
		}
		run.WriteRune(r)
	}
	flush()
	return parts
}

func (l *SongList) renderFilterBar() string {
	bar := l.filterInput.View()
	if l.filterQuery != "" {
		bar += styles.DimStyle.Render(fmt.Sprintf(" [%d/%d]", l.ItemCount(), len(l.songs)))
	}
	return bar
}
