package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no song row matches an id
var ErrNotFound = errors.New("song not found")

// SongRow is one row of the songs table. FileData is only loaded by Audio.
type SongRow struct {
	ID           string  `db:"id"`
	Title        string  `db:"title"`
	Artist       string  `db:"artist"`
	Duration     float64 `db:"duration"`
	YoutubeURL   string  `db:"youtube_url"`
	ThumbnailURL string  `db:"thumbnail_url"`
	FileData     []byte  `db:"file_data"`
	CreatedAt    int64   `db:"created_at"` // unix milliseconds
}

// Created returns the creation time of the row
func (r SongRow) Created() time.Time {
	return time.UnixMilli(r.CreatedAt).UTC()
}

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	artist        TEXT NOT NULL DEFAULT 'Unknown Artist',
	duration      REAL NOT NULL DEFAULT 0,
	youtube_url   TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	file_data     BLOB,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS songs_created_at ON songs (created_at);
`

const metaColumns = `id, title, artist, duration, youtube_url, thumbnail_url, created_at`

// Repository persists catalog songs in SQLite
type Repository struct {
	db *sqlx.DB
}

// OpenRepository opens or creates the catalog database at path.
// ":memory:" keeps everything in memory.
func OpenRepository(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create songs table: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// Insert adds a song row
func (r *Repository) Insert(ctx context.Context, song SongRow) error {
	query := `
	  insert into songs (id, title, artist, duration, youtube_url, thumbnail_url, file_data, created_at)
	  values (:id, :title, :artist, :duration, :youtube_url, :thumbnail_url, :file_data, :created_at);`

	if _, err := r.db.NamedExecContext(ctx, query, song); err != nil {
		return fmt.Errorf("insert song %s: %w", song.ID, err)
	}
	return nil
}

// List returns every song without audio, newest first
func (r *Repository) List(ctx context.Context) ([]SongRow, error) {
	query := `select ` + metaColumns + ` from songs order by created_at desc, rowid desc;`

	songs := []SongRow{}
	if err := r.db.SelectContext(ctx, &songs, query); err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	return songs, nil
}

// Get returns one song without audio
func (r *Repository) Get(ctx context.Context, id string) (SongRow, error) {
	query := `select ` + metaColumns + ` from songs where id = ?;`

	var song SongRow
	if err := r.db.GetContext(ctx, &song, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SongRow{}, ErrNotFound
		}
		return SongRow{}, fmt.Errorf("get song %s: %w", id, err)
	}
	return song, nil
}

// Audio returns one song including its audio. A row without audio is ErrNotFound.
func (r *Repository) Audio(ctx context.Context, id string) (SongRow, error) {
	query := `select ` + metaColumns + `, file_data from songs where id = ?;`

	var song SongRow
	if err := r.db.GetContext(ctx, &song, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SongRow{}, ErrNotFound
		}
		return SongRow{}, fmt.Errorf("get audio %s: %w", id, err)
	}
	if len(song.FileData) == 0 {
		return SongRow{}, ErrNotFound
	}
	return song, nil
}

// Delete removes a song. Deleting an unknown id is ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from songs where id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete song %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete song %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
