package library

import (
	"context"
	"fmt"

	"github.com/mmcdole/tonearm/internal/domain"
)

// EnsureCached schedules a detached caching task for song. Failures are
// logged and reported to the observer, never returned.
func (s *Service) EnsureCached(song domain.Song) {
	s.spawn(func() {
		err := s.CacheSong(s.ctx, song)
		if err != nil {
			s.logger.Warn("failed to cache song", "songID", song.ID, "error", err)
		}
		s.notify(domain.CacheEvent{SongID: song.ID, Cached: err == nil && !s.isRemoved(song.ID), Err: err})
	})
}

// CacheSong fetches and stores the payload for song unless it is already
// cached. Concurrent calls for one id share a single download.
func (s *Service) CacheSong(ctx context.Context, song domain.Song) error {
	if song.ID == "" {
		return fmt.Errorf("%w: empty song id", domain.ErrValidationFailed)
	}
	_, err, _ := s.flights.Do(song.ID, func() (any, error) {
		return nil, s.cacheSong(ctx, song)
	})
	return err
}

func (s *Service) cacheSong(ctx context.Context, song domain.Song) error {
	if s.isRemoved(song.ID) {
		return nil
	}

	rec, ok, err := s.store.Get(song.ID)
	if err != nil {
		return err
	}
	if ok && rec.HasPayload() {
		return nil
	}
	if !ok {
		// Metadata-only record until the payload arrives
		if err := s.store.Put(domain.Record{Song: song}); err != nil {
			return err
		}
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	data, err := s.client.FetchPayload(ctx, song.ID)
	if err != nil {
		return fmt.Errorf("fetch payload: %w", err)
	}

	// A delete that landed while the download was running wins
	if s.isRemoved(song.ID) {
		s.logger.Debug("dropping payload for removed song", "songID", song.ID)
		return nil
	}

	if err := s.store.Put(domain.Record{Song: song, Payload: data}); err != nil {
		return err
	}
	s.logger.Info("cached song", "songID", song.ID, "bytes", len(data))
	return nil
}

func (s *Service) notify(ev domain.CacheEvent) {
	s.mu.Lock()
	o := s.observer
	s.mu.Unlock()
	if o != nil {
		o.OnCached(ev)
	}
}
