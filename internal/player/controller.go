package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/queue"
)

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("player closed")

const defaultTick = 500 * time.Millisecond

// loadResult is the outcome of one source resolution
type loadResult struct {
	gen   uint64
	index int
	song  domain.Song
	kind  domain.SourceKind
	track Track
	err   error
}

// Controller owns the audio output and drives it from a single event loop.
// Commands, output events and load results are all handled on that loop.
type Controller struct {
	queue   Queue
	store   payloadReader
	streams streamer
	output  Output
	media   MediaSession
	logger  *slog.Logger
	tick    time.Duration

	cmds  chan func()
	loads chan loadResult
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	// Loop-owned state
	state      domain.State
	gen        uint64
	cancelLoad context.CancelFunc
	song       *domain.Song
	index      int
	kind       domain.SourceKind
	notice     *domain.Notice
	spent      bool // track ended and could not be rewound

	mu     sync.RWMutex
	status domain.PlaybackStatus
	subs   map[chan domain.PlaybackStatus]struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithMediaSession publishes now-playing metadata to system media controls.
func WithMediaSession(m MediaSession) Option {
	return func(c *Controller) {
		if m != nil {
			c.media = m
		}
	}
}

// WithTick sets the position update interval.
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// NewController starts the controller loop.
func NewController(q Queue, store payloadReader, streams streamer, output Output, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		queue:   q,
		store:   store,
		streams: streams,
		output:  output,
		media:   nopSession{},
		logger:  logger,
		tick:    defaultTick,
		cmds:    make(chan func()),
		loads:   make(chan loadResult),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		index:   -1,
		subs:    make(map[chan domain.PlaybackStatus]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status = c.snapshot()
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	events := c.output.Events()
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case res := <-c.loads:
			c.handleLoad(res)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		case <-ticker.C:
			if c.state == domain.StatePlaying {
				c.publish()
			}
		case <-c.quit:
			c.cancelPending()
			if err := c.output.Stop(); err != nil {
				c.logger.Warn("failed to stop output", "error", err)
			}
			return
		}
	}
}

// exec runs fn on the loop and returns its error.
func (c *Controller) exec(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- func() { reply <- fn() }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// Select starts loading queue index i. An invalid index is reported and
// leaves the current playback untouched.
func (c *Controller) Select(i int) error {
	return c.exec(func() error { return c.selectIndex(i) })
}

// Toggle pauses, resumes, or starts the queue from the top when idle.
func (c *Controller) Toggle() error {
	return c.exec(func() error {
		switch c.state {
		case domain.StatePlaying:
			return c.pause()
		case domain.StatePaused:
			return c.resume()
		case domain.StateIdle:
			i, _, ok := c.queue.Current()
			if !ok {
				i = 0
			}
			return c.selectIndex(i)
		}
		return nil
	})
}

// Pause pauses a playing track.
func (c *Controller) Pause() error {
	return c.exec(c.pause)
}

// Resume resumes a paused track.
func (c *Controller) Resume() error {
	return c.exec(c.resume)
}

// Next skips forward using the queue's advance policy. At the end of a
// non-repeating queue it is a reported no-op.
func (c *Controller) Next() error {
	return c.exec(func() error {
		step := c.queue.Advance()
		if step.Kind == queue.StepExhausted {
			c.setNotice(domain.NoticeInfo, "End of queue")
			c.publish()
			return nil
		}
		return c.selectIndex(step.Index)
	})
}

// Previous restarts the current track when past the restart threshold,
// otherwise moves back in the queue.
func (c *Controller) Previous() error {
	return c.exec(func() error {
		var pos time.Duration
		if c.state == domain.StatePlaying || c.state == domain.StatePaused {
			pos = c.output.Position()
		}
		step := c.queue.Retreat(pos)
		switch step.Kind {
		case queue.StepRestart:
			c.restart(false)
			return nil
		case queue.StepExhausted:
			return nil
		}
		return c.selectIndex(step.Index)
	})
}

// SeekFraction moves the playhead to frac of the known duration.
func (c *Controller) SeekFraction(frac float64) error {
	return c.exec(func() error {
		if frac < 0 || frac > 1 {
			return fmt.Errorf("%w: seek fraction %v outside [0,1]", domain.ErrValidationFailed, frac)
		}
		if c.state != domain.StatePlaying && c.state != domain.StatePaused {
			return fmt.Errorf("%w: nothing to seek", domain.ErrValidationFailed)
		}
		dur := c.duration()
		if dur <= 0 {
			return fmt.Errorf("%w: duration unknown", domain.ErrValidationFailed)
		}
		return c.seek(time.Duration(frac * float64(dur)))
	})
}

// SeekTo moves the playhead to an absolute position.
func (c *Controller) SeekTo(pos time.Duration) error {
	return c.exec(func() error {
		if c.state != domain.StatePlaying && c.state != domain.StatePaused {
			return fmt.Errorf("%w: nothing to seek", domain.ErrValidationFailed)
		}
		if pos < 0 {
			pos = 0
		}
		if dur := c.duration(); dur > 0 && pos > dur {
			pos = dur
		}
		return c.seek(pos)
	})
}

// ToggleShuffle flips shuffle and publishes the change.
func (c *Controller) ToggleShuffle() bool {
	var on bool
	c.exec(func() error {
		on = c.queue.ToggleShuffle()
		c.publish()
		return nil
	})
	return on
}

// CycleRepeat moves to the next repeat mode and publishes the change.
func (c *Controller) CycleRepeat() domain.RepeatMode {
	var m domain.RepeatMode
	c.exec(func() error {
		m = c.queue.CycleRepeat()
		c.publish()
		return nil
	})
	return m
}

// Stop halts playback and returns to Idle.
func (c *Controller) Stop() error {
	return c.exec(func() error {
		c.stop()
		return nil
	})
}

// Evict stops playback if id is playing or loading. Used when a song is deleted.
func (c *Controller) Evict(id string) error {
	return c.exec(func() error {
		if c.song != nil && c.song.ID == id {
			c.stop()
		}
		return nil
	})
}

// Notify publishes a transient notice to subscribers.
func (c *Controller) Notify(kind domain.NoticeKind, text string) {
	c.exec(func() error {
		c.setNotice(kind, text)
		c.publish()
		return nil
	})
}

// Status returns the latest snapshot.
func (c *Controller) Status() domain.PlaybackStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Subscribe returns a channel of status snapshots and a function that
// unsubscribes. Slow subscribers miss snapshots rather than block the loop.
func (c *Controller) Subscribe() (<-chan domain.PlaybackStatus, func()) {
	ch := make(chan domain.PlaybackStatus, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

// Close stops the loop and releases the output.
func (c *Controller) Close() error {
	c.once.Do(func() { close(c.quit) })
	<-c.done
	return c.output.Close()
}

// === Loop-side operations ===

func (c *Controller) selectIndex(i int) error {
	song, err := c.queue.Select(i)
	if err != nil {
		c.logger.Warn("ignoring invalid selection", "index", i, "error", err)
		c.setNotice(domain.NoticeError, "Cannot play that selection")
		c.publish()
		return err
	}
	c.load(i, song)
	return nil
}

// load invalidates any in-flight resolution and starts a new one.
func (c *Controller) load(index int, song domain.Song) {
	c.cancelPending()
	c.gen++
	gen := c.gen

	if err := c.output.Stop(); err != nil {
		c.logger.Warn("failed to stop output", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelLoad = cancel
	c.spent = false
	c.state = domain.StateLoading
	c.song = &song
	c.index = index
	c.media.SetState(c.state)
	c.publish()

	c.logger.Debug("loading song", "songID", song.ID, "index", index, "gen", gen)

	go func() {
		src := c.resolve(ctx, song)
		track, err := c.output.Prepare(ctx, src)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		res := loadResult{gen: gen, index: index, song: song, kind: src.Kind, track: track, err: err}
		select {
		case c.loads <- res:
		case <-c.done:
			if track != nil {
				track.Close()
			}
		}
	}()
}

// resolve prefers the cached payload and falls back to the network stream.
func (c *Controller) resolve(ctx context.Context, song domain.Song) domain.Source {
	rec, ok, err := c.store.Get(song.ID)
	switch {
	case err != nil:
		c.logger.Debug("store unavailable, streaming", "songID", song.ID, "error", err)
	case ok && rec.HasPayload():
		return domain.Source{SongID: song.ID, Kind: domain.SourceLocal, Data: rec.Payload}
	}
	return domain.Source{SongID: song.ID, Kind: domain.SourceStream, URL: c.streams.StreamURL(song.ID)}
}

func (c *Controller) handleLoad(res loadResult) {
	if res.gen != c.gen {
		c.logger.Debug("discarding stale load", "songID", res.song.ID, "gen", res.gen, "current", c.gen)
		if res.track != nil {
			res.track.Close()
		}
		return
	}
	c.cancelPending()

	if res.err != nil {
		c.failLoad(res.song, res.err)
		return
	}
	if err := c.output.Start(res.track); err != nil {
		res.track.Close()
		c.failLoad(res.song, err)
		return
	}

	c.state = domain.StatePlaying
	c.kind = res.kind
	c.media.SetNowPlaying(domain.NowPlayingFor(res.song))
	c.media.SetState(c.state)
	c.logger.Info("playing", "songID", res.song.ID, "source", res.kind.String())
	c.publish()
}

func (c *Controller) failLoad(song domain.Song, err error) {
	c.logger.Error("playback failed", "songID", song.ID, "error", err)
	c.reset()
	c.setNotice(domain.NoticeError, "Playback failed: "+song.Title)
	c.publish()
}

// fail handles an output error on an active track.
func (c *Controller) fail(err error) error {
	err = fmt.Errorf("%w: %v", domain.ErrPlaybackFailed, err)
	title := ""
	if c.song != nil {
		title = c.song.Title
	}
	c.logger.Error("output error", "error", err)
	if stopErr := c.output.Stop(); stopErr != nil {
		c.logger.Warn("failed to stop output", "error", stopErr)
	}
	c.reset()
	c.setNotice(domain.NoticeError, "Playback failed: "+title)
	c.publish()
	return err
}

func (c *Controller) pause() error {
	if c.state != domain.StatePlaying {
		return nil
	}
	if err := c.output.Pause(); err != nil {
		return c.fail(err)
	}
	c.state = domain.StatePaused
	c.media.SetState(c.state)
	c.publish()
	return nil
}

func (c *Controller) resume() error {
	if c.state != domain.StatePaused {
		return nil
	}
	if c.spent && c.song != nil {
		c.load(c.index, *c.song)
		return nil
	}
	if err := c.output.Resume(); err != nil {
		return c.fail(err)
	}
	c.state = domain.StatePlaying
	c.media.SetState(c.state)
	c.publish()
	return nil
}

func (c *Controller) stop() {
	c.cancelPending()
	c.gen++
	if err := c.output.Stop(); err != nil {
		c.logger.Warn("failed to stop output", "error", err)
	}
	c.reset()
	c.publish()
}

// reset returns to Idle with nothing selected.
func (c *Controller) reset() {
	c.state = domain.StateIdle
	c.song = nil
	c.index = -1
	c.spent = false
	c.queue.Clear()
	c.media.SetState(c.state)
}

// seek moves the playhead. Sources that cannot seek keep playing and the
// failure is reported.
func (c *Controller) seek(pos time.Duration) error {
	if err := c.output.Seek(pos); err != nil {
		c.logger.Warn("seek failed", "position", pos, "error", err)
		c.setNotice(domain.NoticeError, "Seeking is not available for this track")
		c.publish()
		return fmt.Errorf("%w: %v", domain.ErrPlaybackFailed, err)
	}
	c.spent = false
	c.publish()
	return nil
}

// restart plays the current track from the beginning. When the output
// cannot rewind, the source is resolved again.
func (c *Controller) restart(resume bool) {
	if c.song == nil {
		return
	}
	if err := c.output.Seek(0); err != nil {
		c.logger.Debug("rewind failed, reloading", "songID", c.song.ID, "error", err)
		c.load(c.index, *c.song)
		return
	}
	c.spent = false
	if resume {
		if err := c.output.Resume(); err != nil {
			c.fail(err)
			return
		}
		c.state = domain.StatePlaying
		c.media.SetState(c.state)
	}
	c.publish()
}

func (c *Controller) cancelPending() {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
}

func (c *Controller) duration() time.Duration {
	if d := c.output.Duration(); d > 0 {
		return d
	}
	if c.song != nil {
		return c.song.Duration
	}
	return 0
}

func (c *Controller) setNotice(kind domain.NoticeKind, text string) {
	c.notice = &domain.Notice{Kind: kind, Text: text}
}

func (c *Controller) snapshot() domain.PlaybackStatus {
	st := domain.PlaybackStatus{
		State:   c.state,
		Index:   c.index,
		Shuffle: c.queue.Shuffle(),
		Repeat:  c.queue.Repeat(),
		Notice:  c.notice,
	}
	if c.song != nil {
		song := *c.song
		st.Song = &song
		st.Duration = song.Duration
	}
	if c.state == domain.StatePlaying || c.state == domain.StatePaused {
		st.Source = c.kind
		st.Position = c.output.Position()
		if d := c.output.Duration(); d > 0 {
			st.Duration = d
		}
	}
	return st
}

// publish stores a snapshot and fans it out. A notice is delivered once.
func (c *Controller) publish() {
	st := c.snapshot()
	c.notice = nil

	c.mu.Lock()
	c.status = st
	for ch := range c.subs {
		select {
		case ch <- st:
		default:
		}
	}
	c.mu.Unlock()
}
