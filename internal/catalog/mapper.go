package catalog

import (
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
)

// Layouts accepted for created_at; the server may omit the zone.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// MapSong converts a wire song to the domain model
func MapSong(d SongDTO) domain.Song {
	return domain.Song{
		ID:           d.ID,
		Title:        d.Title,
		Artist:       d.Artist,
		Duration:     secondsToDuration(d.Duration),
		ThumbnailURL: d.ThumbnailURL,
		SourceURL:    d.YoutubeURL,
		CreatedAt:    parseCreatedAt(d.CreatedAt),
	}
}

// MapSongs converts a slice of wire songs preserving order
func MapSongs(dtos []SongDTO) []domain.Song {
	songs := make([]domain.Song, 0, len(dtos))
	for _, d := range dtos {
		songs = append(songs, MapSong(d))
	}
	return songs
}

func mapPreview(r extractResponse, fallbackURL string) domain.Preview {
	url := r.URL
	if url == "" {
		url = fallbackURL
	}
	return domain.Preview{
		SourceURL:    url,
		Title:        r.Title,
		Artist:       r.Artist,
		Duration:     secondsToDuration(r.Duration),
		ThumbnailURL: r.Thumbnail,
	}
}

// secondsToDuration clamps negative or unknown durations to zero
func secondsToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

func parseCreatedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
