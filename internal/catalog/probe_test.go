package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmcdole/tonearm/internal/domain"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		songs    string
		wantName string
		wantN    int
		wantErr  error
	}{
		{
			name:     "catalog server",
			manifest: `{"name":"Tonearm","short_name":"Tonearm"}`,
			songs:    `{"success":true,"songs":[{"id":"a"},{"id":"b"}]}`,
			wantName: "Tonearm",
			wantN:    2,
		},
		{
			name:     "short name only",
			manifest: `{"short_name":"Music"}`,
			songs:    `{"success":true,"songs":[]}`,
			wantName: "Music",
		},
		{
			name:     "rejected listing",
			manifest: `{"name":"Tonearm"}`,
			songs:    `{"success":false,"error":"db down"}`,
			wantErr:  domain.ErrRequestRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/manifest.json":
					w.Write([]byte(tt.manifest))
				case "/api/songs":
					w.Write([]byte(tt.songs))
				default:
					http.NotFound(w, r)
				}
			}))
			defer srv.Close()

			info, err := Probe(context.Background(), srv.URL+"/")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Probe() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if info.Name != tt.wantName || info.Songs != tt.wantN {
				t.Errorf("Probe() = %+v, want name %q and %d songs", info, tt.wantName, tt.wantN)
			}
		})
	}
}

func TestProbeRejectsOtherServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := Probe(context.Background(), srv.URL); err == nil {
		t.Fatal("Probe() succeeded against a server without a manifest")
	}
}

func TestProbeUnreachable(t *testing.T) {
	_, err := Probe(context.Background(), "http://127.0.0.1:1")
	if !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Errorf("Probe() error = %v, want ErrNetworkUnavailable", err)
	}
}

func TestProbeEmptyURL(t *testing.T) {
	_, err := Probe(context.Background(), "  ")
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Errorf("Probe() error = %v, want ErrValidationFailed", err)
	}
}
