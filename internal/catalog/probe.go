package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
)

const probeTimeout = 10 * time.Second

// ServerInfo identifies a catalog server
type ServerInfo struct {
	Name  string
	Songs int
}

// manifest is the subset of /manifest.json used to recognise a catalog server
type manifest struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

// Probe checks that serverURL answers like a tonearmd catalog server:
// /manifest.json must name the app and /api/songs must list songs.
func Probe(ctx context.Context, serverURL string) (ServerInfo, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return ServerInfo{}, fmt.Errorf("%w: empty server URL", domain.ErrValidationFailed)
	}

	client := &http.Client{
		Timeout: probeTimeout,
	}

	var m manifest
	if err := probeJSON(ctx, client, serverURL+"/manifest.json", &m); err != nil {
		return ServerInfo{}, fmt.Errorf("not a catalog server: %w", err)
	}
	if m.Name == "" && m.ShortName == "" {
		return ServerInfo{}, fmt.Errorf("not a catalog server: manifest has no name")
	}

	var songs songsResponse
	if err := probeJSON(ctx, client, serverURL+"/api/songs", &songs); err != nil {
		return ServerInfo{}, fmt.Errorf("catalog unavailable: %w", err)
	}
	if !songs.Success {
		return ServerInfo{}, fmt.Errorf("%w: %s", domain.ErrRequestRejected, songs.Error)
	}

	name := m.Name
	if name == "" {
		name = m.ShortName
	}
	return ServerInfo{Name: name, Songs: len(songs.Songs)}, nil
}

func probeJSON(ctx context.Context, client *http.Client, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
