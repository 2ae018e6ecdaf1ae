package player

import (
	"context"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/queue"
)

// Track is a prepared source that has not necessarily started playing.
type Track interface {
	Close() error
}

// Output is the single shared audio device. Only the Controller drives it.
//
// Prepare must not disturb what is currently playing; Start swaps the
// prepared track in and takes ownership of it. Events reports device-side
// transitions for the started track only.
type Output interface {
	Prepare(ctx context.Context, src domain.Source) (Track, error)
	Start(t Track) error
	Pause() error
	Resume() error
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Stop() error
	Events() <-chan domain.OutputEvent
	Close() error
}

// MediaSession publishes now-playing state to system media controls.
type MediaSession interface {
	SetNowPlaying(np domain.NowPlaying)
	SetState(state domain.State)
}

// Queue is the session state the controller consults.
type Queue interface {
	Select(i int) (domain.Song, error)
	Current() (int, domain.Song, bool)
	Clear()
	Len() int
	Advance() queue.Step
	Retreat(pos time.Duration) queue.Step
	Shuffle() bool
	ToggleShuffle() bool
	Repeat() domain.RepeatMode
	CycleRepeat() domain.RepeatMode
}

// streamer addresses the network stream of a song
type streamer interface {
	StreamURL(id string) string
}

// payloadReader is the part of the durable store used for source resolution
type payloadReader interface {
	Get(id string) (domain.Record, bool, error)
}

type nopSession struct{}

func (nopSession) SetNowPlaying(domain.NowPlaying) {}
func (nopSession) SetState(domain.State)           {}
