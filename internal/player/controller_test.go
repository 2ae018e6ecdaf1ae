package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/queue"
	"github.com/mmcdole/tonearm/internal/store"
)

type fakeTrack struct {
	src    domain.Source
	mu     sync.Mutex
	closed bool
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeOutput struct {
	mu         sync.Mutex
	prepared   []*fakeTrack
	started    []*fakeTrack
	gates      map[string]chan struct{} // per song id, Prepare waits when set
	prepareErr error
	startErr   error
	paused     bool
	position   time.Duration
	duration   time.Duration
	seeks      []time.Duration
	events     chan domain.OutputEvent
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{
		gates:  make(map[string]chan struct{}),
		events: make(chan domain.OutputEvent, 8),
	}
}

func (o *fakeOutput) Prepare(ctx context.Context, src domain.Source) (Track, error) {
	o.mu.Lock()
	gate := o.gates[src.SongID]
	o.mu.Unlock()
	if gate != nil {
		<-gate
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.prepareErr != nil {
		return nil, o.prepareErr
	}
	t := &fakeTrack{src: src}
	o.prepared = append(o.prepared, t)
	return t, nil
}

func (o *fakeOutput) Start(t Track) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startErr != nil {
		return o.startErr
	}
	o.started = append(o.started, t.(*fakeTrack))
	o.paused = false
	o.position = 0
	return nil
}

func (o *fakeOutput) Pause() error {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Resume() error {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Seek(pos time.Duration) error {
	o.mu.Lock()
	o.seeks = append(o.seeks, pos)
	o.position = pos
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position
}

func (o *fakeOutput) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duration
}

func (o *fakeOutput) Stop() error                       { return nil }
func (o *fakeOutput) Events() <-chan domain.OutputEvent { return o.events }
func (o *fakeOutput) Close() error                      { return nil }

func (o *fakeOutput) setPosition(d time.Duration) {
	o.mu.Lock()
	o.position = d
	o.mu.Unlock()
}

func (o *fakeOutput) lastStarted() *fakeTrack {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.started) == 0 {
		return nil
	}
	return o.started[len(o.started)-1]
}

func (o *fakeOutput) startedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.started)
}

func (o *fakeOutput) lastSeek() (time.Duration, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.seeks) == 0 {
		return 0, false
	}
	return o.seeks[len(o.seeks)-1], true
}

type fakeStreams struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeStreams) StreamURL(id string) string {
	s.mu.Lock()
	s.calls = append(s.calls, id)
	s.mu.Unlock()
	return "http://catalog/api/songs/" + id + "/audio"
}

func (s *fakeStreams) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeMedia struct {
	mu      sync.Mutex
	playing []domain.NowPlaying
}

func (m *fakeMedia) SetNowPlaying(np domain.NowPlaying) {
	m.mu.Lock()
	m.playing = append(m.playing, np)
	m.mu.Unlock()
}

func (m *fakeMedia) SetState(domain.State) {}

func (m *fakeMedia) last() domain.NowPlaying {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.playing) == 0 {
		return domain.NowPlaying{}
	}
	return m.playing[len(m.playing)-1]
}

type fixture struct {
	ctrl    *Controller
	out     *fakeOutput
	streams *fakeStreams
	media   *fakeMedia
	store   *store.SongStore
	queue   *queue.Session
	updates <-chan domain.PlaybackStatus
}

var testSongs = []domain.Song{
	{ID: "A", Title: "Alpha", Artist: "One", Duration: 200 * time.Second, ThumbnailURL: "http://img/a"},
	{ID: "B", Title: "Bravo", Artist: "Two", Duration: 180 * time.Second},
	{ID: "C", Title: "Charlie", Artist: "Three", Duration: 240 * time.Second},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSongStore("", "")
	if err != nil {
		t.Fatalf("NewSongStore() error: %v", err)
	}
	q := queue.NewSession()
	q.SetSongs(testSongs)

	f := &fixture{
		out:     newFakeOutput(),
		streams: &fakeStreams{},
		media:   &fakeMedia{},
		store:   st,
		queue:   q,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.ctrl = NewController(q, st, f.streams, f.out, logger, WithMediaSession(f.media), WithTick(time.Hour))
	f.updates, _ = f.ctrl.Subscribe()
	t.Cleanup(func() { f.ctrl.Close() })
	return f
}

// waitFor blocks until a published status satisfies cond.
func (f *fixture) waitFor(t *testing.T, desc string, cond func(domain.PlaybackStatus) bool) domain.PlaybackStatus {
	t.Helper()
	if st := f.ctrl.Status(); cond(st) {
		return st
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-f.updates:
			if cond(st) {
				return st
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; last status %+v", desc, f.ctrl.Status())
		}
	}
}

func playing(id string) func(domain.PlaybackStatus) bool {
	return func(st domain.PlaybackStatus) bool {
		return st.State == domain.StatePlaying && st.Song != nil && st.Song.ID == id
	}
}

func inState(s domain.State) func(domain.PlaybackStatus) bool {
	return func(st domain.PlaybackStatus) bool { return st.State == s }
}

func TestSelectPlaysWithNowPlayingMetadata(t *testing.T) {
	for i, want := range testSongs {
		t.Run(want.ID, func(t *testing.T) {
			f := newFixture(t)
			if err := f.ctrl.Select(i); err != nil {
				t.Fatalf("Select(%d) error: %v", i, err)
			}
			st := f.waitFor(t, "playing", playing(want.ID))
			if st.Index != i {
				t.Errorf("Index = %d, want %d", st.Index, i)
			}
			np := f.media.last()
			if np.SongID != want.ID || np.Title != want.Title || np.Artist != want.Artist || np.ThumbnailURL != want.ThumbnailURL {
				t.Errorf("now playing = %+v, want %s", np, want.ID)
			}
			if st.Source != domain.SourceStream {
				t.Errorf("Source = %v, want stream for uncached song", st.Source)
			}
		})
	}
}

func TestCachedSongPlaysFromStore(t *testing.T) {
	f := newFixture(t)
	f.store.Put(domain.Record{Song: testSongs[1], Payload: []byte("cached-audio")})

	f.ctrl.Select(1)
	st := f.waitFor(t, "playing B", playing("B"))

	if st.Source != domain.SourceLocal {
		t.Errorf("Source = %v, want local", st.Source)
	}
	if n := f.streams.count(); n != 0 {
		t.Errorf("stream URL requested %d times, want 0", n)
	}
	tr := f.out.lastStarted()
	if tr == nil || string(tr.src.Data) != "cached-audio" {
		t.Errorf("started track = %+v, want cached payload", tr)
	}
}

func TestStorageUnavailableFallsBackToStream(t *testing.T) {
	q := queue.NewSession()
	q.SetSongs(testSongs)
	out := newFakeOutput()
	streams := &fakeStreams{}
	ctrl := NewController(q, store.NewDisabled(nil), streams, out, nil, WithTick(time.Hour))
	defer ctrl.Close()
	updates, _ := ctrl.Subscribe()

	ctrl.Select(0)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.State == domain.StatePlaying {
				if st.Source != domain.SourceStream || streams.count() != 1 {
					t.Errorf("Source = %v, stream calls = %d", st.Source, streams.count())
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for playback")
		}
	}
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.out.gates["A"] = gate

	f.ctrl.Select(0)
	f.waitFor(t, "loading A", func(st domain.PlaybackStatus) bool {
		return st.State == domain.StateLoading && st.Song != nil && st.Song.ID == "A"
	})

	f.ctrl.Select(1)
	f.waitFor(t, "playing B", playing("B"))

	// Let the outdated resolution finish and wait for the loop to drop it
	close(gate)
	var stale *fakeTrack
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.out.mu.Lock()
		if len(f.out.prepared) == 2 {
			stale = f.out.prepared[1]
		}
		f.out.mu.Unlock()
		if stale != nil && stale.isClosed() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if n := f.out.startedCount(); n != 1 {
		t.Fatalf("output started %d tracks, want 1", n)
	}
	if got := f.out.lastStarted().src.SongID; got != "B" {
		t.Errorf("started %s, want B", got)
	}
	if stale == nil {
		t.Fatal("outdated resolution never finished")
	}
	if stale.src.SongID != "A" || !stale.isClosed() {
		t.Errorf("stale track %s closed = %v, want A closed", stale.src.SongID, stale.isClosed())
	}
	if st := f.ctrl.Status(); st.Song == nil || st.Song.ID != "B" {
		t.Errorf("status song = %+v, want B", st.Song)
	}
}

func TestPrepareFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.out.prepareErr = errors.New("unsupported format")

	f.ctrl.Select(0)
	st := f.waitFor(t, "idle with notice", func(st domain.PlaybackStatus) bool {
		return st.State == domain.StateIdle && st.Notice != nil
	})
	if st.Notice.Kind != domain.NoticeError {
		t.Errorf("notice kind = %v, want error", st.Notice.Kind)
	}
	if st.Song != nil {
		t.Errorf("Song = %+v, want nil", st.Song)
	}
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.out.startErr = errors.New("device busy")

	f.ctrl.Select(0)
	f.waitFor(t, "idle with notice", func(st domain.PlaybackStatus) bool {
		return st.State == domain.StateIdle && st.Notice != nil
	})
	if tr := f.out.prepared[0]; !tr.isClosed() {
		t.Error("rejected track was not closed")
	}
}

func TestInvalidSelectIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(0)
	f.waitFor(t, "playing A", playing("A"))

	err := f.ctrl.Select(7)
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Errorf("Select(7) error = %v, want ErrValidationFailed", err)
	}
	if st := f.ctrl.Status(); st.State != domain.StatePlaying || st.Song.ID != "A" {
		t.Errorf("status = %v %v, want still playing A", st.State, st.Song)
	}
}

func TestPauseResumeAndDeviceEvents(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(0)
	f.waitFor(t, "playing", inState(domain.StatePlaying))

	f.ctrl.Toggle()
	f.waitFor(t, "paused", inState(domain.StatePaused))
	f.ctrl.Toggle()
	f.waitFor(t, "playing", inState(domain.StatePlaying))

	// Device-driven transitions
	f.out.events <- domain.OutputEvent{Kind: domain.OutputPause}
	f.waitFor(t, "device pause", inState(domain.StatePaused))
	f.out.events <- domain.OutputEvent{Kind: domain.OutputPlay}
	f.waitFor(t, "device play", inState(domain.StatePlaying))

	f.out.events <- domain.OutputEvent{Kind: domain.OutputError, Err: errors.New("decoder error")}
	st := f.waitFor(t, "idle after error", inState(domain.StateIdle))
	if st.Notice == nil || st.Notice.Kind != domain.NoticeError {
		t.Errorf("notice = %+v, want error", st.Notice)
	}
}

func TestToggleFromIdleStartsQueue(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Toggle()
	f.waitFor(t, "playing A", playing("A"))
}

func TestEndedRepeatTrackRestarts(t *testing.T) {
	f := newFixture(t)
	f.queue.SetRepeat(domain.RepeatTrack)
	f.ctrl.Select(1)
	f.waitFor(t, "playing B", playing("B"))
	f.out.setPosition(180 * time.Second)

	f.out.events <- domain.OutputEvent{Kind: domain.OutputEnded}
	f.waitFor(t, "restarted", func(st domain.PlaybackStatus) bool {
		pos, ok := f.out.lastSeek()
		return ok && pos == 0 && st.State == domain.StatePlaying
	})
	if n := f.out.startedCount(); n != 1 {
		t.Errorf("started %d tracks, want 1 (same source restarted)", n)
	}
	if st := f.ctrl.Status(); st.Song.ID != "B" {
		t.Errorf("song = %s, want B", st.Song.ID)
	}
}

func TestEndedAdvancesToNext(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(0)
	f.waitFor(t, "playing A", playing("A"))

	f.out.events <- domain.OutputEvent{Kind: domain.OutputEnded}
	st := f.waitFor(t, "playing B", playing("B"))
	if st.Index != 1 {
		t.Errorf("Index = %d, want 1", st.Index)
	}
}

func TestEndedAtExhaustedQueueSettlesPaused(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(2)
	f.waitFor(t, "playing C", playing("C"))

	f.out.events <- domain.OutputEvent{Kind: domain.OutputEnded}
	st := f.waitFor(t, "paused", inState(domain.StatePaused))
	if st.Song == nil || st.Song.ID != "C" {
		t.Errorf("Song = %+v, want C", st.Song)
	}
	if pos, ok := f.out.lastSeek(); !ok || pos != 0 {
		t.Errorf("last seek = %v, %v; want 0", pos, ok)
	}
}

func TestEndedWithRepeatQueueWraps(t *testing.T) {
	f := newFixture(t)
	f.queue.SetRepeat(domain.RepeatQueue)
	f.ctrl.Select(2)
	f.waitFor(t, "playing C", playing("C"))

	f.out.events <- domain.OutputEvent{Kind: domain.OutputEnded}
	f.waitFor(t, "playing A", playing("A"))
}

func TestNextAtEndIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(2)
	f.waitFor(t, "playing C", playing("C"))

	if err := f.ctrl.Next(); err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	st := f.waitFor(t, "end of queue notice", func(st domain.PlaybackStatus) bool { return st.Notice != nil })
	if st.State != domain.StatePlaying || st.Song.ID != "C" {
		t.Errorf("status = %v %s, want still playing C", st.State, st.Song.ID)
	}
}

func TestPreviousRestartsPastThreshold(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(1)
	f.waitFor(t, "playing B", playing("B"))
	f.out.setPosition(45 * time.Second)

	f.ctrl.Previous()
	if pos, ok := f.out.lastSeek(); !ok || pos != 0 {
		t.Errorf("last seek = %v, %v; want restart at 0", pos, ok)
	}
	if st := f.ctrl.Status(); st.Index != 1 || st.Song.ID != "B" {
		t.Errorf("status index = %d, want 1", st.Index)
	}
	if n := f.out.startedCount(); n != 1 {
		t.Errorf("started %d tracks, want 1", n)
	}
}

func TestPreviousMovesBack(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(1)
	f.waitFor(t, "playing B", playing("B"))
	f.out.setPosition(time.Second)

	f.ctrl.Previous()
	f.waitFor(t, "playing A", playing("A"))
}

func TestSeekFraction(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.SeekFraction(0.5); !errors.Is(err, domain.ErrValidationFailed) {
		t.Errorf("SeekFraction while idle error = %v, want ErrValidationFailed", err)
	}

	f.ctrl.Select(0)
	f.waitFor(t, "playing A", playing("A"))

	tests := []struct {
		frac    float64
		want    time.Duration
		wantErr bool
	}{
		{0.5, 100 * time.Second, false}, // falls back to song duration
		{0, 0, false},
		{1, 200 * time.Second, false},
		{-0.1, 0, true},
		{1.5, 0, true},
	}
	for _, tt := range tests {
		err := f.ctrl.SeekFraction(tt.frac)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrValidationFailed) {
				t.Errorf("SeekFraction(%v) error = %v, want ErrValidationFailed", tt.frac, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("SeekFraction(%v) error: %v", tt.frac, err)
			continue
		}
		if pos, _ := f.out.lastSeek(); pos != tt.want {
			t.Errorf("SeekFraction(%v) seeked to %v, want %v", tt.frac, pos, tt.want)
		}
	}

	// Output-reported duration wins over catalog metadata
	f.out.mu.Lock()
	f.out.duration = 100 * time.Second
	f.out.mu.Unlock()
	f.ctrl.SeekFraction(0.25)
	if pos, _ := f.out.lastSeek(); pos != 25*time.Second {
		t.Errorf("seeked to %v, want 25s", pos)
	}
}

func TestEvictCurrentSong(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Select(0)
	f.waitFor(t, "playing A", playing("A"))

	f.ctrl.Evict("B")
	if st := f.ctrl.Status(); st.State != domain.StatePlaying {
		t.Errorf("evicting another song changed state to %v", st.State)
	}

	f.ctrl.Evict("A")
	st := f.waitFor(t, "idle", inState(domain.StateIdle))
	if st.Song != nil || st.Index != -1 {
		t.Errorf("status = %+v, want nothing selected", st)
	}
}

func TestEventsIgnoredWhileLoading(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.out.gates["A"] = gate

	f.ctrl.Select(0)
	f.waitFor(t, "loading", inState(domain.StateLoading))

	f.out.events <- domain.OutputEvent{Kind: domain.OutputEnded}
	f.out.events <- domain.OutputEvent{Kind: domain.OutputPause}
	for len(f.out.events) > 0 {
		time.Sleep(time.Millisecond)
	}
	// Any command is a barrier: the loop has finished handling both events
	f.ctrl.Notify(domain.NoticeInfo, "barrier")
	if st := f.ctrl.Status(); st.State != domain.StateLoading {
		t.Fatalf("state = %v after stale events, want loading", st.State)
	}
	close(gate)

	f.waitFor(t, "playing A", playing("A"))
}

func TestClosedControllerRejectsCommands(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Close()
	if err := f.ctrl.Select(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Select after Close error = %v, want ErrClosed", err)
	}
}
