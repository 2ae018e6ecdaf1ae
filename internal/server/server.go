package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mmcdole/tonearm/internal/catalog"
)

// Downloaded files older than this are removed before each download
const staleDownloadAge = time.Hour

// Store is the song persistence the server needs
type Store interface {
	Insert(ctx context.Context, song SongRow) error
	List(ctx context.Context) ([]SongRow, error)
	Get(ctx context.Context, id string) (SongRow, error)
	Audio(ctx context.Context, id string) (SongRow, error)
	Delete(ctx context.Context, id string) error
}

// Server serves the catalog API consumed by tonearm clients
type Server struct {
	store       Store
	extractor   Extractor
	downloadDir string
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a catalog server
func New(store Store, extractor Extractor, downloadDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:       store,
		extractor:   extractor,
		downloadDir: downloadDir,
		logger:      logger,
		now:         time.Now,
	}
}

// Router builds the echo router for the API
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	e.GET("/manifest.json", s.manifestHandler)

	api := e.Group("/api")
	api.POST("/extract", s.extractHandler)
	api.POST("/download", s.downloadHandler)

	songs := api.Group("/songs")
	{
		songs.GET("", s.listSongsHandler)
		songs.GET("/:id", s.songHandler)
		songs.GET("/:id/audio", s.audioHandler)
		songs.GET("/:id/blob", s.blobHandler)
		songs.DELETE("/:id", s.deleteSongHandler)
	}

	return e
}

// failure answers with the success=false envelope
func failure(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"error":   msg,
	})
}

// songDTO maps a row to the wire shape the client decodes
func songDTO(r SongRow) catalog.SongDTO {
	return catalog.SongDTO{
		ID:           r.ID,
		Title:        r.Title,
		Artist:       r.Artist,
		Duration:     r.Duration,
		YoutubeURL:   r.YoutubeURL,
		ThumbnailURL: r.ThumbnailURL,
		CreatedAt:    r.Created().Format(time.RFC3339),
	}
}

func (s *Server) manifestHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"name":             "Tonearm",
		"short_name":       "Tonearm",
		"description":      "Offline-first music player",
		"start_url":        "/",
		"display":          "standalone",
		"background_color": "#121212",
		"theme_color":      "#1DB954",
		"icons": []echo.Map{
			{"src": "/static/icon-192.png", "sizes": "192x192", "type": "image/png"},
			{"src": "/static/icon-512.png", "sizes": "512x512", "type": "image/png"},
		},
	})
}

func (s *Server) extractHandler(c echo.Context) error {
	var form struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&form); err != nil {
		return failure(c, http.StatusOK, "Please provide a YouTube URL")
	}

	url, err := catalog.ValidateSourceURL(form.URL)
	if err != nil {
		return failure(c, http.StatusOK, validationMessage(form.URL))
	}

	info, err := s.extractor.Extract(c.Request().Context(), url)
	if err != nil {
		s.logger.Warn("extract failed", "url", url, "error", err)
		return failure(c, http.StatusOK, "Failed to extract info: "+err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"title":     info.Title,
		"artist":    info.Artist,
		"duration":  info.Duration,
		"thumbnail": info.Thumbnail,
		"url":       url,
	})
}

// validationMessage mirrors the two rejection texts of the extract endpoint
func validationMessage(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Please provide a YouTube URL"
	}
	return "Invalid YouTube URL format"
}

func (s *Server) downloadHandler(c echo.Context) error {
	s.cleanDownloads()

	form := struct {
		URL       string  `json:"url"`
		Title     string  `json:"title"`
		Artist    string  `json:"artist"`
		Duration  float64 `json:"duration"`
		Thumbnail string  `json:"thumbnail"`
	}{}
	if err := c.Bind(&form); err != nil {
		return failure(c, http.StatusOK, "Invalid YouTube URL")
	}

	url, err := catalog.ValidateSourceURL(form.URL)
	if err != nil {
		return failure(c, http.StatusOK, "Invalid YouTube URL")
	}
	if form.Title == "" {
		form.Title = "Unknown"
	}
	if form.Artist == "" {
		form.Artist = "Unknown Artist"
	}

	ctx := c.Request().Context()
	id := uuid.New().String()

	if err := os.MkdirAll(s.downloadDir, 0755); err != nil {
		return failure(c, http.StatusOK, "Download failed: "+err.Error())
	}

	path, err := s.extractor.Download(ctx, url, s.downloadDir, id)
	if err != nil {
		s.logger.Warn("download failed", "url", url, "error", err)
		return failure(c, http.StatusOK, "Download failed: "+err.Error())
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return failure(c, http.StatusOK, "Failed to convert audio")
	}

	row := SongRow{
		ID:           id,
		Title:        form.Title,
		Artist:       form.Artist,
		Duration:     max(form.Duration, 0),
		YoutubeURL:   url,
		ThumbnailURL: form.Thumbnail,
		FileData:     data,
		CreatedAt:    s.now().UnixMilli(),
	}
	if err := s.store.Insert(ctx, row); err != nil {
		s.logger.Error("failed to store song", "songID", id, "error", err)
		return failure(c, http.StatusOK, "Download failed: "+err.Error())
	}

	s.logger.Info("song downloaded", "songID", id, "title", row.Title, "bytes", len(data))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"song":    songDTO(row),
	})
}

// cleanDownloads removes leftover files older than staleDownloadAge
func (s *Server) cleanDownloads() {
	entries, err := os.ReadDir(s.downloadDir)
	if err != nil {
		return
	}
	cutoff := s.now().Add(-staleDownloadAge)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.downloadDir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Debug("failed to remove stale download", "path", path, "error", err)
		}
	}
}

func (s *Server) listSongsHandler(c echo.Context) error {
	rows, err := s.store.List(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list songs", "error", err)
		return failure(c, http.StatusInternalServerError, "Failed to list songs")
	}

	songs := make([]catalog.SongDTO, 0, len(rows))
	for _, r := range rows {
		songs = append(songs, songDTO(r))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"songs":   songs,
	})
}

func (s *Server) songHandler(c echo.Context) error {
	row, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.lookupFailure(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"song":    songDTO(row),
	})
}

// lookupFailure maps a store error for a single-song route
func (s *Server) lookupFailure(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return failure(c, http.StatusNotFound, "Song not found")
	}
	s.logger.Error("song lookup failed", "songID", c.Param("id"), "error", err)
	return failure(c, http.StatusInternalServerError, "Failed to load song")
}

// audioHandler streams the mp3 with range support. Responses are never cacheable.
func (s *Server) audioHandler(c echo.Context) error {
	row, err := s.store.Audio(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.lookupFailure(c, err)
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "audio/mpeg")
	h.Set(echo.HeaderContentDisposition, `inline; filename="`+safeFilename(row.Title)+`.mp3"`)
	h.Set("Cache-Control", "no-store")

	http.ServeContent(c.Response(), c.Request(), row.ID+".mp3", row.Created(), bytes.NewReader(row.FileData))
	return nil
}

// safeFilename strips characters that would break a quoted header value
func safeFilename(title string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, title)
}

func (s *Server) blobHandler(c echo.Context) error {
	row, err := s.store.Audio(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.lookupFailure(c, err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"audio":   base64.StdEncoding.EncodeToString(row.FileData),
		"song":    songDTO(row),
	})
}

func (s *Server) deleteSongHandler(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.Delete(c.Request().Context(), id); err != nil {
		return s.lookupFailure(c, err)
	}
	s.logger.Info("song deleted", "songID", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
