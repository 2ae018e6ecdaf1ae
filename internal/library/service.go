package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

const defaultWorkers = 2

// catalogSink receives the in-memory catalog. queue.Session implements it.
type catalogSink interface {
	SetSongs(songs []domain.Song)
	Prepend(song domain.Song)
	Remove(id string) (wasCurrent bool)
}

// Service keeps the durable store populated with playable audio for every
// song the remote catalog lists.
type Service struct {
	client domain.CatalogClient
	store  domain.SongStore
	sink   catalogSink
	logger *slog.Logger

	// Background caching tasks
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   conc.WaitGroup
	flights singleflight.Group
	slots   chan struct{}

	mu       sync.Mutex
	observer domain.CacheObserver
	removed  map[string]struct{}
	closed   bool
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds the number of concurrent payload downloads.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// WithObserver registers a receiver for caching outcomes.
func WithObserver(o domain.CacheObserver) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a new catalog synchronizer. sink may be nil.
func NewService(client domain.CatalogClient, store domain.SongStore, sink catalogSink, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = discardSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		client:  client,
		store:   store,
		sink:    sink,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		slots:   make(chan struct{}, defaultWorkers),
		removed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetObserver replaces the caching observer.
func (s *Service) SetObserver(o domain.CacheObserver) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// RefreshCatalog fetches the remote catalog and publishes it to the sink.
// When the catalog cannot be fetched the durable store is used instead;
// an empty result is a valid outcome, so no error is returned.
func (s *Service) RefreshCatalog(ctx context.Context) domain.CatalogResult {
	songs, err := s.client.ListSongs(ctx)
	if err != nil {
		s.logger.Warn("catalog unavailable, using local store", "error", err)
		local := s.localSongs()
		s.sink.SetSongs(local)
		return domain.CatalogResult{Songs: local, FromCache: true, Cause: err}
	}

	songs = dedupe(songs)
	s.sink.SetSongs(songs)
	s.logger.Info("catalog refreshed", "count", len(songs))

	s.spawn(func() { s.reconcile(songs) })

	return domain.CatalogResult{Songs: songs}
}

// localSongs lists stored songs newest first. Storage errors yield an empty list.
func (s *Service) localSongs() []domain.Song {
	songs, err := s.store.Songs()
	if err != nil {
		s.logger.Warn("local store unavailable", "error", err)
		return []domain.Song{}
	}
	if songs == nil {
		songs = []domain.Song{}
	}
	sort.SliceStable(songs, func(i, j int) bool {
		return songs[i].CreatedAt.After(songs[j].CreatedAt)
	})
	return songs
}

// reconcile refreshes stored metadata and schedules caching for every
// song that has no payload yet.
func (s *Service) reconcile(songs []domain.Song) {
	for _, song := range songs {
		if s.ctx.Err() != nil {
			return
		}
		has, err := s.store.HasPayload(song.ID)
		if err != nil {
			s.logger.Warn("skipping cache pass", "error", err)
			return
		}
		if !has {
			s.EnsureCached(song)
			continue
		}
		s.refreshMetadata(song)
	}
}

// refreshMetadata rewrites a cached record whose metadata changed
// server-side. The stored payload is re-supplied so it is kept.
func (s *Service) refreshMetadata(song domain.Song) {
	rec, ok, err := s.store.Get(song.ID)
	if err != nil || !ok || sameMetadata(rec.Song, song) {
		return
	}
	if err := s.store.Put(domain.Record{Song: song, Payload: rec.Payload}); err != nil {
		s.logger.Warn("failed to refresh metadata", "songID", song.ID, "error", err)
	}
}

// AddDownloadedSong puts a freshly downloaded song at the front of the
// catalog and schedules caching for it.
func (s *Service) AddDownloadedSong(song domain.Song) {
	s.mu.Lock()
	delete(s.removed, song.ID)
	s.mu.Unlock()

	s.sink.Prepend(song)
	s.EnsureCached(song)
}

// Preview extracts metadata for a source URL without persisting anything.
func (s *Service) Preview(ctx context.Context, sourceURL string) (domain.Preview, error) {
	p, err := s.client.Extract(ctx, sourceURL)
	if err != nil {
		s.logger.Warn("extract failed", "url", sourceURL, "error", err)
		return domain.Preview{}, err
	}
	return p, nil
}

// Download triggers server-side acquisition of a previewed song and adds
// the result to the catalog.
func (s *Service) Download(ctx context.Context, p domain.Preview) (domain.Song, error) {
	song, err := s.client.Download(ctx, p)
	if err != nil {
		s.logger.Error("download failed", "url", p.SourceURL, "error", err)
		return domain.Song{}, err
	}
	s.AddDownloadedSong(song)
	return song, nil
}

// RemoveSong deletes a song remotely, then locally. If the remote delete
// fails the local record and the catalog entry are left untouched and the
// error is returned. A song the server no longer knows counts as removed.
func (s *Service) RemoveSong(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty song id", domain.ErrValidationFailed)
	}

	if err := s.client.DeleteSong(ctx, id); err != nil && !errors.Is(err, domain.ErrSongNotFound) {
		s.logger.Error("remote delete failed, keeping local copy", "songID", id, "error", err)
		return fmt.Errorf("remove song %s: %w", id, err)
	}

	s.mu.Lock()
	s.removed[id] = struct{}{}
	s.mu.Unlock()

	if err := s.store.Delete(id); err != nil {
		s.logger.Warn("failed to delete local copy", "songID", id, "error", err)
	}
	s.sink.Remove(id)
	s.logger.Info("song removed", "songID", id)
	return nil
}

// Wait blocks until every background task has finished.
func (s *Service) Wait() {
	if r := s.tasks.WaitAndRecover(); r != nil {
		s.logger.Error("background task panicked", "panic", r.String())
	}
}

// Close cancels in-flight caching and waits for the tasks to exit.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.Wait()
}

func (s *Service) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks.Go(fn)
	return true
}

func (s *Service) isRemoved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.removed[id]
	return ok
}

// dedupe keeps the first position of every id and the data of its last occurrence.
func dedupe(songs []domain.Song) []domain.Song {
	pos := make(map[string]int, len(songs))
	out := make([]domain.Song, 0, len(songs))
	for _, song := range songs {
		if song.ID == "" {
			continue
		}
		if i, ok := pos[song.ID]; ok {
			out[i] = song
			continue
		}
		pos[song.ID] = len(out)
		out = append(out, song)
	}
	return out
}

func sameMetadata(a, b domain.Song) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Artist == b.Artist &&
		a.Duration == b.Duration &&
		a.ThumbnailURL == b.ThumbnailURL &&
		a.SourceURL == b.SourceURL &&
		a.CreatedAt.Equal(b.CreatedAt)
}

type discardSink struct{}

func (discardSink) SetSongs([]domain.Song) {}
func (discardSink) Prepend(domain.Song)    {}
func (discardSink) Remove(string) bool     { return false }
