package library

import (
	"sort"

	"github.com/mmcdole/tonearm/internal/domain"
)

// Queries provides synchronous, store-only reads.
type Queries struct {
	store domain.SongStore
}

// NewQueries creates a new Queries instance.
func NewQueries(store domain.SongStore) *Queries {
	return &Queries{store: store}
}

// IsCached reports whether the song can be played offline.
func (q *Queries) IsCached(id string) bool {
	has, err := q.store.HasPayload(id)
	return err == nil && has
}

// CachedIDs returns the ids of every song with a stored payload.
func (q *Queries) CachedIDs(songs []domain.Song) map[string]bool {
	out := make(map[string]bool, len(songs))
	for _, song := range songs {
		if q.IsCached(song.ID) {
			out[song.ID] = true
		}
	}
	return out
}

// StoredSongs returns every stored song newest first.
func (q *Queries) StoredSongs() ([]domain.Song, error) {
	songs, err := q.store.Songs()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(songs, func(i, j int) bool {
		return songs[i].CreatedAt.After(songs[j].CreatedAt)
	})
	return songs, nil
}
