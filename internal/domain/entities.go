package domain

import (
	"fmt"
	"time"
)

// Song is one entry of the remote catalog.
type Song struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Artist       string        `json:"artist"`
	Duration     time.Duration `json:"duration"`
	ThumbnailURL string        `json:"thumbnailUrl,omitempty"`
	SourceURL    string        `json:"sourceUrl,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// DisplayTitle returns "Title - Artist", or just the title when the artist is unknown.
func (s Song) DisplayTitle() string {
	if s.Artist == "" {
		return s.Title
	}
	return s.Title + " - " + s.Artist
}

// FormattedDuration returns the duration as "m:ss"; unknown durations render as "0:00".
func (s Song) FormattedDuration() string {
	return FormatClock(s.Duration)
}

// FormatClock renders d as "m:ss" (or "h:mm:ss" past an hour).
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Record is a durable store entry. Payload is nil until caching succeeds.
type Record struct {
	Song
	Payload []byte
}

// HasPayload reports whether the record carries cached audio.
func (r Record) HasPayload() bool {
	return len(r.Payload) > 0
}

// Preview is the metadata extracted for a source URL before anything is downloaded.
type Preview struct {
	SourceURL    string
	Title        string
	Artist       string
	Duration     time.Duration
	ThumbnailURL string
}
