package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketSongs    = []byte("songs")
	bucketPayloads = []byte("payloads")
)

// SongStore implements domain.SongStore using BoltDB.
// Metadata and payloads live in separate buckets so listing the library
// never pages audio in.
type SongStore struct {
	db *bolt.DB

	// Memory-only mode (no persistence)
	mu       sync.RWMutex
	songs    map[string][]byte
	payloads map[string][]byte
}

// NewSongStore opens the store for one catalog server. An empty baseDir
// gives a memory-only store.
func NewSongStore(baseDir, serverURL string) (*SongStore, error) {
	if baseDir == "" {
		return &SongStore{
			songs:    make(map[string][]byte),
			payloads: make(map[string][]byte),
		}, nil
	}

	dir := baseDir
	if serverURL != "" {
		dir = filepath.Join(baseDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	dbPath := filepath.Join(dir, "tonearm.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db: %v", domain.ErrStorageUnavailable, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSongs, bucketPayloads} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	return &SongStore{db: db}, nil
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

func (s *SongStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put writes metadata and payload in a single transaction.
func (s *SongStore) Put(rec domain.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty song id", domain.ErrValidationFailed)
	}
	meta, err := json.Marshal(rec.Song)
	if err != nil {
		return err
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.songs[rec.ID] = meta
		if rec.HasPayload() {
			s.payloads[rec.ID] = clone(rec.Payload)
		} else {
			delete(s.payloads, rec.ID)
		}
		return nil
	}

	return unavailable(s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(rec.ID)
		if err := tx.Bucket(bucketSongs).Put(key, meta); err != nil {
			return err
		}
		payloads := tx.Bucket(bucketPayloads)
		if rec.HasPayload() {
			return payloads.Put(key, rec.Payload)
		}
		return payloads.Delete(key)
	}))
}

// Get returns the record for id. Absence is ok=false, never an error.
func (s *SongStore) Get(id string) (domain.Record, bool, error) {
	var meta, payload []byte

	if s.db == nil {
		s.mu.RLock()
		meta = s.songs[id]
		payload = clone(s.payloads[id])
		s.mu.RUnlock()
	} else {
		err := s.db.View(func(tx *bolt.Tx) error {
			key := []byte(id)
			// Values are only valid inside the transaction
			meta = clone(tx.Bucket(bucketSongs).Get(key))
			payload = clone(tx.Bucket(bucketPayloads).Get(key))
			return nil
		})
		if err != nil {
			return domain.Record{}, false, unavailable(err)
		}
	}

	if meta == nil {
		return domain.Record{}, false, nil
	}
	var song domain.Song
	if err := json.Unmarshal(meta, &song); err != nil {
		return domain.Record{}, false, unavailable(err)
	}
	return domain.Record{Song: song, Payload: payload}, true, nil
}

// GetAll returns every record. Order is unspecified.
func (s *SongStore) GetAll() ([]domain.Record, error) {
	var records []domain.Record
	err := s.each(true, func(song domain.Song, payload []byte) {
		records = append(records, domain.Record{Song: song, Payload: payload})
	})
	return records, err
}

// Songs returns metadata only.
func (s *SongStore) Songs() ([]domain.Song, error) {
	var songs []domain.Song
	err := s.each(false, func(song domain.Song, _ []byte) {
		songs = append(songs, song)
	})
	return songs, err
}

func (s *SongStore) HasPayload(id string) (bool, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.payloads[id]) > 0, nil
	}

	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = len(tx.Bucket(bucketPayloads).Get([]byte(id))) > 0
		return nil
	})
	return found, unavailable(err)
}

// Delete removes metadata and payload. Missing ids are a no-op.
func (s *SongStore) Delete(id string) error {
	if s.db == nil {
		s.mu.Lock()
		delete(s.songs, id)
		delete(s.payloads, id)
		s.mu.Unlock()
		return nil
	}

	return unavailable(s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(id)
		if err := tx.Bucket(bucketSongs).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketPayloads).Delete(key)
	}))
}

// each visits every record; payloads are only loaded when withPayload is set.
func (s *SongStore) each(withPayload bool, fn func(domain.Song, []byte)) error {
	visit := func(id, meta []byte, payload func() []byte) error {
		var song domain.Song
		if err := json.Unmarshal(meta, &song); err != nil {
			return fmt.Errorf("decode song %s: %w", id, err)
		}
		var data []byte
		if withPayload {
			data = payload()
		}
		fn(song, data)
		return nil
	}

	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for id, meta := range s.songs {
			if err := visit([]byte(id), meta, func() []byte { return clone(s.payloads[id]) }); err != nil {
				return unavailable(err)
			}
		}
		return nil
	}

	return unavailable(s.db.View(func(tx *bolt.Tx) error {
		payloads := tx.Bucket(bucketPayloads)
		return tx.Bucket(bucketSongs).ForEach(func(k, v []byte) error {
			return visit(k, v, func() []byte { return clone(payloads.Get(k)) })
		})
	}))
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
