package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// Info is the metadata yt-dlp reports for a source URL
type Info struct {
	Title     string
	Artist    string
	Duration  float64 // seconds
	Thumbnail string
}

// Extractor reads metadata and acquires audio for source URLs
type Extractor interface {
	Extract(ctx context.Context, url string) (Info, error)
	// Download writes an mp3 for url into dir named after id and returns its path
	Download(ctx context.Context, url, dir, id string) (string, error)
}

// YTDLP is an Extractor backed by the yt-dlp binary
type YTDLP struct{}

// NewYTDLP creates a yt-dlp extractor
func NewYTDLP() *YTDLP {
	return &YTDLP{}
}

// Extract runs yt-dlp without downloading and parses the printed fields
func (y *YTDLP) Extract(ctx context.Context, url string) (Info, error) {
	res, err := ytdlp.New().
		Print("%(title)s\t%(uploader)s\t%(duration)s\t%(thumbnail)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", url)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return Info{}, fmt.Errorf("%w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return Info{}, err
	}

	info, ok := parseInfo(res.Stdout)
	if !ok {
		return Info{}, errors.New("could not extract video information")
	}
	return info, nil
}

// parseInfo reads the first complete tab-separated line printed by Extract
func parseInfo(stdout string) (Info, bool) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 4 {
			continue
		}
		info := Info{
			Title:     naField(parts[0], "Unknown"),
			Artist:    naField(parts[1], "Unknown Artist"),
			Thumbnail: naField(parts[3], ""),
		}
		if d, err := strconv.ParseFloat(parts[2], 64); err == nil && d > 0 {
			info.Duration = d
		}
		return info, true
	}
	return Info{}, false
}

// naField maps yt-dlp's "NA" placeholder and empty values to def
func naField(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "NA" {
		return def
	}
	return v
}

// Download extracts the best audio stream as mp3
func (y *YTDLP) Download(ctx context.Context, url, dir, id string) (string, error) {
	base := filepath.Join(dir, id)

	res, err := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("192K").
		Output(base + ".%(ext)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Quiet().
		Run(ctx, url)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return "", err
	}

	return locateAudio(base)
}

// locateAudio finds the downloaded file, renaming a non-mp3 container to .mp3
func locateAudio(base string) (string, error) {
	mp3 := base + ".mp3"
	if _, err := os.Stat(mp3); err == nil {
		return mp3, nil
	}
	for _, ext := range []string{".webm", ".m4a", ".opus", ".ogg"} {
		if _, err := os.Stat(base + ext); err == nil {
			if err := os.Rename(base+ext, mp3); err != nil {
				return "", fmt.Errorf("rename audio: %w", err)
			}
			return mp3, nil
		}
	}
	return "", errors.New("failed to convert audio")
}
