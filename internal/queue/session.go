package queue

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
)

// RestartThreshold is the playhead position past which "previous" restarts
// the current track instead of moving back.
const RestartThreshold = 3 * time.Second

// StepKind says how the controller should act on a queue decision.
type StepKind int

const (
	StepIndex     StepKind = iota // move to Step.Index
	StepRestart                   // restart the current track
	StepExhausted                 // end of a non-repeating queue
)

// Step is the outcome of Advance or Retreat.
type Step struct {
	Kind  StepKind
	Index int
}

// Session holds the queue, the current index and the shuffle/repeat policy.
// It is in-memory only and safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	songs   []domain.Song
	current int
	shuffle bool
	repeat  domain.RepeatMode
	intn    func(n int) int
}

// Option configures a Session.
type Option func(*Session)

// WithRand replaces the random index source used for shuffle.
func WithRand(intn func(n int) int) Option {
	return func(s *Session) { s.intn = intn }
}

// NewSession creates an empty session with nothing selected.
func NewSession(opts ...Option) *Session {
	s := &Session{current: -1, intn: rand.IntN}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSongs replaces the queue. The current selection follows its song id
// and is cleared if the song is gone.
func (s *Session) SetSongs(songs []domain.Song) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentID := s.currentIDLocked()
	s.songs = append([]domain.Song(nil), songs...)
	s.current = s.indexOfLocked(currentID)
}

// Prepend inserts a song at the front of the queue. A song already queued
// moves to the front.
func (s *Session) Prepend(song domain.Song) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasCurrent := false
	if i := s.indexOfLocked(song.ID); i >= 0 {
		wasCurrent = s.current == i
		s.songs = append(s.songs[:i], s.songs[i+1:]...)
		if s.current > i {
			s.current--
		}
	}
	s.songs = append([]domain.Song{song}, s.songs...)
	switch {
	case wasCurrent:
		s.current = 0
	case s.current >= 0:
		s.current++
	}
}

// Remove drops the song with id from the queue. It reports whether the
// removed song was the current one.
func (s *Session) Remove(id string) (wasCurrent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(id)
	if i < 0 {
		return false
	}
	s.songs = append(s.songs[:i], s.songs[i+1:]...)
	switch {
	case s.current == i:
		s.current = -1
		return true
	case s.current > i:
		s.current--
	}
	return false
}

// Select commits index i as the current song.
func (s *Session) Select(i int) (domain.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.songs) {
		return domain.Song{}, fmt.Errorf("%w: index %d out of range [0,%d)", domain.ErrValidationFailed, i, len(s.songs))
	}
	s.current = i
	return s.songs[i], nil
}

// Clear deselects the current song.
func (s *Session) Clear() {
	s.mu.Lock()
	s.current = -1
	s.mu.Unlock()
}

// Current returns the selected index and song; index is -1 when nothing is selected.
func (s *Session) Current() (int, domain.Song, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current < 0 {
		return -1, domain.Song{}, false
	}
	return s.current, s.songs[s.current], true
}

// Songs returns a copy of the queue.
func (s *Session) Songs() []domain.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Song(nil), s.songs...)
}

// Len returns the queue length.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.songs)
}

// IndexOf returns the queue position of id, or -1.
func (s *Session) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOfLocked(id)
}

// Advance decides what follows the current song. It does not change the
// current index; the caller commits with Select.
//
// Shuffle picks uniformly from the whole queue, the current index included.
// Otherwise the next index wraps unless repeat is off and the current song
// is the last one.
func (s *Session) Advance() Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.songs)
	if n == 0 {
		return Step{Kind: StepExhausted, Index: -1}
	}
	if s.shuffle {
		return Step{Kind: StepIndex, Index: s.intn(n)}
	}
	if s.current < 0 {
		return Step{Kind: StepIndex, Index: 0}
	}
	if s.repeat == domain.RepeatOff && s.current == n-1 {
		return Step{Kind: StepExhausted, Index: -1}
	}
	return Step{Kind: StepIndex, Index: (s.current + 1) % n}
}

// Retreat decides what "previous" means at playhead position pos. Past
// RestartThreshold it restarts the current song. Otherwise it mirrors
// Advance backwards and always wraps.
func (s *Session) Retreat(pos time.Duration) Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.songs)
	if s.current >= 0 && pos > RestartThreshold {
		return Step{Kind: StepRestart, Index: s.current}
	}
	if n == 0 {
		return Step{Kind: StepExhausted, Index: -1}
	}
	if s.shuffle {
		return Step{Kind: StepIndex, Index: s.intn(n)}
	}
	if s.current < 0 {
		return Step{Kind: StepIndex, Index: n - 1}
	}
	return Step{Kind: StepIndex, Index: (s.current - 1 + n) % n}
}

// Shuffle reports whether shuffle is on.
func (s *Session) Shuffle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuffle
}

// ToggleShuffle flips shuffle and returns the new value.
func (s *Session) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffle = !s.shuffle
	return s.shuffle
}

// SetShuffle sets shuffle explicitly.
func (s *Session) SetShuffle(on bool) {
	s.mu.Lock()
	s.shuffle = on
	s.mu.Unlock()
}

// Repeat returns the repeat mode.
func (s *Session) Repeat() domain.RepeatMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repeat
}

// CycleRepeat moves to the next repeat mode and returns it.
func (s *Session) CycleRepeat() domain.RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = s.repeat.Next()
	return s.repeat
}

// SetRepeat sets the repeat mode explicitly.
func (s *Session) SetRepeat(m domain.RepeatMode) {
	s.mu.Lock()
	s.repeat = m
	s.mu.Unlock()
}

func (s *Session) currentIDLocked() string {
	if s.current < 0 || s.current >= len(s.songs) {
		return ""
	}
	return s.songs[s.current].ID
}

func (s *Session) indexOfLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, song := range s.songs {
		if song.ID == id {
			return i
		}
	}
	return -1
}
