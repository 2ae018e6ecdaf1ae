package catalog

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	// Downloads run yt-dlp and ffmpeg server-side before answering
	downloadTimeout = 5 * time.Minute
	userAgent       = "Tonearm/1.0"
)

// Client implements domain.CatalogClient against the tonearmd HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new catalog API client
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// doRequest performs a request and returns the body of a successful response.
// Transport failures and server errors map to domain.ErrNetworkUnavailable.
func (c *Client) doRequest(ctx context.Context, client *http.Client, method, path string, payload any) ([]byte, error) {
	reqURL := c.baseURL + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("catalog request", "method", method, "url", reqURL)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("catalog request failed", "url", reqURL, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrNetworkUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrSongNotFound
	case resp.StatusCode >= 500:
		c.logger.Error("catalog server error", "status", resp.StatusCode, "body", truncate(respBody))
		return nil, fmt.Errorf("%w: status %d", domain.ErrNetworkUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.logger.Error("catalog request error", "status", resp.StatusCode, "body", truncate(respBody))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return respBody, nil
}

// decode parses body into dest and surfaces success=false as ErrRequestRejected
func decode[T interface{ result() envelope }](body []byte, dest T) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env := dest.result(); !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("%w: %s", domain.ErrRequestRejected, msg)
	}
	return nil
}

func (e *envelope) result() envelope { return *e }

// ListSongs returns the catalog, newest first as ordered by the server
func (c *Client) ListSongs(ctx context.Context) ([]domain.Song, error) {
	body, err := c.doRequest(ctx, c.httpClient, http.MethodGet, "/api/songs", nil)
	if err != nil {
		return nil, err
	}

	var resp songsResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched catalog", "count", len(resp.Songs))
	return MapSongs(resp.Songs), nil
}

// GetSong returns one song's metadata
func (c *Client) GetSong(ctx context.Context, id string) (domain.Song, error) {
	body, err := c.doRequest(ctx, c.httpClient, http.MethodGet, "/api/songs/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.Song{}, err
	}
	var resp songResponse
	if err := decode(body, &resp); err != nil {
		return domain.Song{}, err
	}
	return MapSong(resp.Song), nil
}

// FetchPayload downloads the base64 blob for id and decodes it to raw bytes
func (c *Client) FetchPayload(ctx context.Context, id string) ([]byte, error) {
	body, err := c.doRequest(ctx, c.httpClient, http.MethodGet, "/api/songs/"+url.PathEscape(id)+"/blob", nil)
	if err != nil {
		return nil, err
	}

	var resp blobResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", domain.ErrRequestRejected)
	}
	return data, nil
}

// StreamURL returns the directly playable audio endpoint for id
func (c *Client) StreamURL(id string) string {
	return c.baseURL + "/api/songs/" + url.PathEscape(id) + "/audio"
}

// Extract previews the metadata of a source URL
func (c *Client) Extract(ctx context.Context, sourceURL string) (domain.Preview, error) {
	sourceURL, err := ValidateSourceURL(sourceURL)
	if err != nil {
		return domain.Preview{}, err
	}

	body, err := c.doRequest(ctx, c.httpClient, http.MethodPost, "/api/extract", extractRequest{URL: sourceURL})
	if err != nil {
		return domain.Preview{}, err
	}

	var resp extractResponse
	if err := decode(body, &resp); err != nil {
		return domain.Preview{}, err
	}
	return mapPreview(resp, sourceURL), nil
}

// Download asks the server to acquire the previewed audio
func (c *Client) Download(ctx context.Context, p domain.Preview) (domain.Song, error) {
	if _, err := ValidateSourceURL(p.SourceURL); err != nil {
		return domain.Song{}, err
	}

	req := downloadRequest{
		URL:       p.SourceURL,
		Title:     p.Title,
		Artist:    p.Artist,
		Duration:  p.Duration.Seconds(),
		Thumbnail: p.ThumbnailURL,
	}

	client := &http.Client{Timeout: downloadTimeout, Transport: c.httpClient.Transport}
	body, err := c.doRequest(ctx, client, http.MethodPost, "/api/download", req)
	if err != nil {
		return domain.Song{}, err
	}

	var resp songResponse
	if err := decode(body, &resp); err != nil {
		return domain.Song{}, err
	}
	song := MapSong(resp.Song)
	c.logger.Info("download complete", "songID", song.ID, "title", song.Title)
	return song, nil
}

// DeleteSong removes a song from the catalog
func (c *Client) DeleteSong(ctx context.Context, id string) error {
	body, err := c.doRequest(ctx, c.httpClient, http.MethodDelete, "/api/songs/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	var resp envelope
	return decode(body, &resp)
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
