package domain

import (
	"time"
)

// State is the playback controller state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RepeatMode controls what happens at the end of a track or of the queue.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatQueue
	RepeatTrack
)

// Next cycles off -> queue -> track -> off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatQueue
	case RepeatQueue:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

func (m RepeatMode) String() string {
	switch m {
	case RepeatQueue:
		return "queue"
	case RepeatTrack:
		return "track"
	default:
		return "off"
	}
}

// SourceKind says where a resolved audio source comes from.
type SourceKind int

const (
	SourceLocal SourceKind = iota
	SourceStream
)

func (k SourceKind) String() string {
	if k == SourceLocal {
		return "local"
	}
	return "stream"
}

// Source is a resolved, playable audio source for one song.
// Data is set for SourceLocal, URL for SourceStream.
type Source struct {
	SongID string
	Kind   SourceKind
	URL    string
	Data   []byte
}

// OutputEventKind enumerates signals raised by an audio output device.
type OutputEventKind int

const (
	OutputPlay OutputEventKind = iota
	OutputPause
	OutputEnded
	OutputError
)

func (k OutputEventKind) String() string {
	switch k {
	case OutputPlay:
		return "play"
	case OutputPause:
		return "pause"
	case OutputEnded:
		return "ended"
	case OutputError:
		return "error"
	default:
		return "unknown"
	}
}

// OutputEvent is raised by the audio output independently of controller commands.
type OutputEvent struct {
	Kind OutputEventKind
	Err  error
}

// NowPlaying is the metadata published to system media controls.
type NowPlaying struct {
	SongID       string
	Title        string
	Artist       string
	ThumbnailURL string
	Duration     time.Duration
}

// NowPlayingFor builds the media-control metadata for a song.
func NowPlayingFor(s Song) NowPlaying {
	return NowPlaying{
		SongID:       s.ID,
		Title:        s.Title,
		Artist:       s.Artist,
		ThumbnailURL: s.ThumbnailURL,
		Duration:     s.Duration,
	}
}

// NoticeKind classifies transient user-visible messages.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeError
)

// Notice is a transient message for the user.
type Notice struct {
	Kind NoticeKind
	Text string
}

// PlaybackStatus is a snapshot of the controller for views.
type PlaybackStatus struct {
	State    State
	Index    int
	Song     *Song
	Source   SourceKind
	Position time.Duration
	Duration time.Duration
	Shuffle  bool
	Repeat   RepeatMode
	Notice   *Notice
}

// Progress returns the playhead as a fraction in [0,1].
func (s PlaybackStatus) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	f := float64(s.Position) / float64(s.Duration)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}
