package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/player"
)

const (
	SpeakerSampleRate = beep.SampleRate(44100)
	SpeakerBufferSize = 100 * time.Millisecond
	resampleQuality   = 4
)

// Speaker decodes mp3 in-process and plays it on the default audio device.
type Speaker struct {
	httpClient *http.Client
	logger     *slog.Logger
	events     chan domain.OutputEvent

	mu          sync.Mutex
	speakerInit bool
	current     atomic.Pointer[speakerTrack]
}

// speakerTrack is a decoded source. Cached payloads are seekable; network
// streams decode straight from the response body and are not.
type speakerTrack struct {
	songID   string
	decoder  beep.StreamSeekCloser
	format   beep.Format
	cancel   context.CancelFunc // aborts the stream request, nil for payloads
	ctrl     *beep.Ctrl
	finished atomic.Bool
}

func (t *speakerTrack) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	return t.decoder.Close()
}

// payloadReader adapts an in-memory payload to the ReadCloser mp3.Decode
// takes while keeping it seekable.
type payloadReader struct {
	*bytes.Reader
}

func (payloadReader) Close() error { return nil }

// NewSpeaker creates the in-process output. The device is opened on first Start.
func NewSpeaker(logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		logger: logger,
		events: make(chan domain.OutputEvent, 8),
	}
}

// Prepare decodes the source without touching the device. A stream request
// is bound to ctx only until Prepare returns.
func (s *Speaker) Prepare(ctx context.Context, src domain.Source) (player.Track, error) {
	if src.Kind == domain.SourceLocal {
		decoder, format, err := mp3.Decode(payloadReader{bytes.NewReader(src.Data)})
		if err != nil {
			return nil, fmt.Errorf("%w: decode cached payload: %v", domain.ErrPlaybackFailed, err)
		}
		return &speakerTrack{songID: src.SongID, decoder: decoder, format: format}, nil
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	detach := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.URL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: stream status %d", domain.ErrPlaybackFailed, resp.StatusCode)
	}

	decoder, format, err := mp3.Decode(resp.Body)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: decode stream: %v", domain.ErrPlaybackFailed, err)
	}

	if !detach() {
		// ctx was cancelled while decoding
		decoder.Close()
		cancel()
		return nil, ctx.Err()
	}
	return &speakerTrack{songID: src.SongID, decoder: decoder, format: format, cancel: cancel}, nil
}

func (s *Speaker) initSpeaker() error {
	if s.speakerInit {
		return nil
	}
	if err := speaker.Init(SpeakerSampleRate, SpeakerSampleRate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("%w: failed to initialize speaker: %v", domain.ErrPlaybackFailed, err)
	}
	s.speakerInit = true
	s.logger.Debug("speaker initialized", "sampleRate", int(SpeakerSampleRate), "buffer", SpeakerBufferSize)
	return nil
}

// Start swaps t in as the playing track.
func (s *Speaker) Start(t player.Track) error {
	track, ok := t.(*speakerTrack)
	if !ok {
		return fmt.Errorf("%w: foreign track %T", domain.ErrPlaybackFailed, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initSpeaker(); err != nil {
		return err
	}

	speaker.Clear()
	if prev := s.current.Swap(track); prev != nil && prev != track {
		prev.Close()
	}
	s.play(track, false)
	return nil
}

// play queues the track on the mixer. The trailing callback runs under the
// speaker lock, so it must not take s.mu.
func (s *Speaker) play(t *speakerTrack, paused bool) {
	var src beep.Streamer = t.decoder
	if t.format.SampleRate != SpeakerSampleRate {
		src = beep.Resample(resampleQuality, t.format.SampleRate, SpeakerSampleRate, src)
	}
	t.finished.Store(false)
	t.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(src, beep.Callback(func() { s.ended(t) })),
		Paused:   paused,
	}
	speaker.Play(t.ctrl)
}

func (s *Speaker) ended(t *speakerTrack) {
	t.finished.Store(true)
	if s.current.Load() != t {
		return
	}
	select {
	case s.events <- domain.OutputEvent{Kind: domain.OutputEnded}:
	default:
		s.logger.Warn("dropping ended event", "songID", t.songID)
	}
}

func (s *Speaker) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.current.Load()
	if t == nil || t.ctrl == nil {
		return
	}
	if !paused && t.finished.Load() {
		s.play(t, false)
		return
	}
	speaker.Lock()
	t.ctrl.Paused = paused
	speaker.Unlock()
}

func (s *Speaker) Pause() error {
	s.setPaused(true)
	return nil
}

func (s *Speaker) Resume() error {
	s.setPaused(false)
	return nil
}

// Seek moves the decoder. A finished track is queued again, keeping its
// paused flag.
func (s *Speaker) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.current.Load()
	if t == nil {
		return nil
	}

	n := t.format.SampleRate.N(pos)
	speaker.Lock()
	if l := t.decoder.Len(); l > 0 && n >= l {
		n = l - 1
	}
	err := t.decoder.Seek(n)
	paused := t.ctrl != nil && t.ctrl.Paused
	speaker.Unlock()

	if err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if t.finished.Load() {
		s.play(t, paused)
	}
	return nil
}

func (s *Speaker) Position() time.Duration {
	t := s.current.Load()
	if t == nil {
		return 0
	}
	speaker.Lock()
	p := t.decoder.Position()
	speaker.Unlock()
	return t.format.SampleRate.D(p)
}

// Duration is known for seekable payloads only.
func (s *Speaker) Duration() time.Duration {
	t := s.current.Load()
	if t == nil {
		return 0
	}
	speaker.Lock()
	l := t.decoder.Len()
	speaker.Unlock()
	if l <= 0 {
		return 0
	}
	return t.format.SampleRate.D(l)
}

func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.speakerInit {
		speaker.Clear()
	}
	if t := s.current.Swap(nil); t != nil {
		return t.Close()
	}
	return nil
}

func (s *Speaker) Events() <-chan domain.OutputEvent {
	return s.events
}

func (s *Speaker) Close() error {
	err := s.Stop()
	s.mu.Lock()
	if s.speakerInit {
		speaker.Close()
		s.speakerInit = false
	}
	s.mu.Unlock()
	return err
}
