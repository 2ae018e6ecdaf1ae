package domain

import "context"

// CatalogClient provides network operations against the remote catalog service.
type CatalogClient interface {
	// ListSongs returns the catalog in server order.
	ListSongs(ctx context.Context) ([]Song, error)
	// FetchPayload returns the decoded audio bytes for offline caching.
	FetchPayload(ctx context.Context, id string) ([]byte, error)
	// StreamURL returns the directly playable network resource for id.
	StreamURL(id string) string
	// Extract previews the metadata for a source URL without persisting anything.
	Extract(ctx context.Context, sourceURL string) (Preview, error)
	// Download asks the server to acquire the audio and returns the new song.
	Download(ctx context.Context, p Preview) (Song, error)
	// DeleteSong removes the song server-side.
	DeleteSong(ctx context.Context, id string) error
}
