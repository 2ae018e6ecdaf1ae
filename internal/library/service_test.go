package library

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/mmcdole/tonearm/internal/queue"
	"github.com/mmcdole/tonearm/internal/store"
)

type fakeCatalog struct {
	mu        sync.Mutex
	songs     []domain.Song
	listErr   error
	payloads  map[string][]byte
	fetchErr  error
	deleteErr error
	fetches   map[string]int
	deleted   []string
	gate      chan struct{} // FetchPayload blocks until closed when set
	started   chan string   // receives the id when a fetch begins
}

func newFakeCatalog(songs ...domain.Song) *fakeCatalog {
	f := &fakeCatalog{
		songs:    songs,
		payloads: make(map[string][]byte),
		fetches:  make(map[string]int),
	}
	for _, s := range songs {
		f.payloads[s.ID] = []byte("audio-" + s.ID)
	}
	return f
}

func (f *fakeCatalog) ListSongs(ctx context.Context) ([]domain.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Song(nil), f.songs...), nil
}

func (f *fakeCatalog) FetchPayload(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	f.fetches[id]++
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.payloads[id]
	if !ok {
		return nil, domain.ErrSongNotFound
	}
	return data, nil
}

func (f *fakeCatalog) StreamURL(id string) string { return "http://catalog/api/songs/" + id + "/audio" }

func (f *fakeCatalog) Extract(ctx context.Context, url string) (domain.Preview, error) {
	return domain.Preview{SourceURL: url, Title: "Preview"}, nil
}

func (f *fakeCatalog) Download(ctx context.Context, p domain.Preview) (domain.Song, error) {
	song := domain.Song{ID: "new", Title: p.Title, CreatedAt: time.Now()}
	f.mu.Lock()
	f.payloads[song.ID] = []byte("audio-new")
	f.mu.Unlock()
	return song, nil
}

func (f *fakeCatalog) DeleteSong(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCatalog) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

type recordingObserver struct {
	mu     sync.Mutex
	events []domain.CacheEvent
}

func (o *recordingObserver) OnCached(ev domain.CacheEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) all() []domain.CacheEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.CacheEvent(nil), o.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func song(id string, created int) domain.Song {
	return domain.Song{
		ID:        id,
		Title:     "Song " + id,
		Artist:    "Artist",
		Duration:  200 * time.Second,
		CreatedAt: time.Date(2024, 1, created, 0, 0, 0, 0, time.UTC),
	}
}

func newFixture(t *testing.T, client *fakeCatalog, opts ...Option) (*Service, *store.SongStore, *queue.Session) {
	t.Helper()
	st, err := store.NewSongStore("", "")
	if err != nil {
		t.Fatalf("NewSongStore() error: %v", err)
	}
	sess := queue.NewSession()
	svc := NewService(client, st, sess, discardLogger(), opts...)
	t.Cleanup(svc.Close)
	return svc, st, sess
}

func TestRefreshCatalogCachesEverySong(t *testing.T) {
	client := newFakeCatalog(song("a", 3), song("b", 2), song("c", 1))
	obs := &recordingObserver{}
	svc, st, sess := newFixture(t, client, WithObserver(obs))

	res := svc.RefreshCatalog(context.Background())
	if res.FromCache || res.Cause != nil {
		t.Errorf("result = %+v, want live catalog", res)
	}
	if len(res.Songs) != 3 || sess.Len() != 3 {
		t.Fatalf("got %d songs, queue %d, want 3", len(res.Songs), sess.Len())
	}

	svc.Wait()

	for _, id := range []string{"a", "b", "c"} {
		rec, ok, err := st.Get(id)
		if err != nil || !ok {
			t.Fatalf("Get(%s) = %v, %v", id, ok, err)
		}
		if string(rec.Payload) != "audio-"+id {
			t.Errorf("payload for %s = %q", id, rec.Payload)
		}
	}
	if n := len(obs.all()); n != 3 {
		t.Errorf("observer saw %d events, want 3", n)
	}

	// Second refresh does not download again
	svc.RefreshCatalog(context.Background())
	svc.Wait()
	if n := client.fetchCount("a"); n != 1 {
		t.Errorf("fetch count for a = %d, want 1", n)
	}
}

func TestRefreshCatalogOfflineEmptyStore(t *testing.T) {
	client := newFakeCatalog()
	client.listErr = domain.ErrNetworkUnavailable
	svc, _, sess := newFixture(t, client)

	res := svc.RefreshCatalog(context.Background())
	if !res.FromCache {
		t.Error("FromCache = false, want true")
	}
	if res.Songs == nil || len(res.Songs) != 0 {
		t.Errorf("Songs = %v, want empty non-nil list", res.Songs)
	}
	if !errors.Is(res.Cause, domain.ErrNetworkUnavailable) {
		t.Errorf("Cause = %v, want ErrNetworkUnavailable", res.Cause)
	}
	if sess.Len() != 0 {
		t.Errorf("queue length = %d, want 0", sess.Len())
	}
}

func TestRefreshCatalogOfflineUsesStoreNewestFirst(t *testing.T) {
	client := newFakeCatalog()
	client.listErr = domain.ErrNetworkUnavailable
	svc, st, sess := newFixture(t, client)

	st.Put(domain.Record{Song: song("old", 1), Payload: []byte("x")})
	st.Put(domain.Record{Song: song("new", 9)})
	st.Put(domain.Record{Song: song("mid", 5), Payload: []byte("y")})

	res := svc.RefreshCatalog(context.Background())
	var ids []string
	for _, s := range res.Songs {
		ids = append(ids, s.ID)
	}
	if len(ids) != 3 || ids[0] != "new" || ids[1] != "mid" || ids[2] != "old" {
		t.Errorf("order = %v, want [new mid old]", ids)
	}
	if sess.Len() != 3 {
		t.Errorf("queue length = %d, want 3", sess.Len())
	}
}

func TestRefreshCatalogStorageUnavailable(t *testing.T) {
	client := newFakeCatalog(song("a", 1))
	obs := &recordingObserver{}
	svc := NewService(client, store.NewDisabled(errors.New("disk full")), nil, discardLogger(), WithObserver(obs))
	defer svc.Close()

	res := svc.RefreshCatalog(context.Background())
	if len(res.Songs) != 1 || res.FromCache {
		t.Errorf("result = %+v, want live catalog", res)
	}
	svc.Wait()

	// The reconcile pass stops at the first storage error
	if n := client.fetchCount("a"); n != 0 {
		t.Errorf("fetch count = %d, want 0", n)
	}

	client.listErr = domain.ErrNetworkUnavailable
	res = svc.RefreshCatalog(context.Background())
	if len(res.Songs) != 0 || !res.FromCache {
		t.Errorf("offline result with dead store = %+v, want empty", res)
	}
}

func TestCacheSongStorageErrorIsReported(t *testing.T) {
	client := newFakeCatalog(song("a", 1))
	obs := &recordingObserver{}
	svc := NewService(client, store.NewDisabled(nil), nil, discardLogger(), WithObserver(obs))
	defer svc.Close()

	svc.EnsureCached(song("a", 1))
	svc.Wait()

	events := obs.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Cached || !errors.Is(events[0].Err, domain.ErrStorageUnavailable) {
		t.Errorf("event = %+v, want storage failure", events[0])
	}
}

func TestDedupeLastWriteWins(t *testing.T) {
	first := song("a", 1)
	second := song("b", 2)
	dup := song("a", 3)
	dup.Title = "Updated"

	got := dedupe([]domain.Song{first, second, dup, {ID: ""}})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "a" || got[0].Title != "Updated" {
		t.Errorf("got[0] = %+v, want updated a at position 0", got[0])
	}
	if got[1].ID != "b" {
		t.Errorf("got[1] = %s, want b", got[1].ID)
	}
}

func TestRefreshKeepsPayloadWhenMetadataChanges(t *testing.T) {
	client := newFakeCatalog(song("a", 1))
	svc, st, _ := newFixture(t, client)

	st.Put(domain.Record{Song: song("a", 1), Payload: []byte("kept")})
	renamed := song("a", 1)
	renamed.Title = "Renamed"
	client.songs = []domain.Song{renamed}

	svc.RefreshCatalog(context.Background())
	svc.Wait()

	rec, _, _ := st.Get("a")
	if rec.Title != "Renamed" {
		t.Errorf("Title = %q, want Renamed", rec.Title)
	}
	if string(rec.Payload) != "kept" {
		t.Errorf("Payload = %q, want kept", rec.Payload)
	}
	if n := client.fetchCount("a"); n != 0 {
		t.Errorf("fetch count = %d, want 0", n)
	}
}

func TestCacheSongDeduplicatesConcurrentCalls(t *testing.T) {
	client := newFakeCatalog(song("a", 1))
	client.gate = make(chan struct{})
	client.started = make(chan string, 4)
	svc, st, _ := newFixture(t, client)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.CacheSong(context.Background(), song("a", 1)); err != nil {
				t.Errorf("CacheSong() error: %v", err)
			}
		}()
	}

	<-client.started
	// Let the other callers join the in-flight download
	time.Sleep(20 * time.Millisecond)
	close(client.gate)
	wg.Wait()

	if n := client.fetchCount("a"); n != 1 {
		t.Errorf("fetch count = %d, want 1", n)
	}
	if has, _ := st.HasPayload("a"); !has {
		t.Error("payload not stored")
	}
}

func TestCacheSongCreatesMetadataRecordFirst(t *testing.T) {
	client := newFakeCatalog(song("a", 1))
	client.gate = make(chan struct{})
	client.started = make(chan string, 1)
	svc, st, _ := newFixture(t, client)

	svc.EnsureCached(song("a", 1))
	<-client.started

	rec, ok, _ := st.Get("a")
	if !ok || rec.HasPayload() {
		t.Errorf("Get(a) = %+v, %v; want metadata-only record", rec, ok)
	}

	close(client.gate)
	svc.Wait()
	if has, _ := st.HasPayload("a"); !has {
		t.Error("payload not stored after fetch")
	}
}

func TestRemoveSongRemoteFailureKeepsLocalCopy(t *testing.T) {
	client := newFakeCatalog(song("a", 1), song("b", 2))
	client.deleteErr = domain.ErrNetworkUnavailable
	svc, st, sess := newFixture(t, client)
	sess.SetSongs(client.songs)
	st.Put(domain.Record{Song: song("a", 1), Payload: []byte("audio")})

	err := svc.RemoveSong(context.Background(), "a")
	if !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Errorf("RemoveSong() error = %v, want ErrNetworkUnavailable", err)
	}
	rec, ok, _ := st.Get("a")
	if !ok || string(rec.Payload) != "audio" {
		t.Errorf("local record = %+v, %v; want intact", rec, ok)
	}
	if sess.IndexOf("a") != 0 {
		t.Error("song removed from queue despite remote failure")
	}
}

func TestRemoveSong(t *testing.T) {
	tests := []struct {
		name      string
		deleteErr error
	}{
		{"remote delete succeeds", nil},
		{"remote already gone", domain.ErrSongNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeCatalog(song("a", 1), song("b", 2))
			client.deleteErr = tt.deleteErr
			svc, st, sess := newFixture(t, client)
			sess.SetSongs(client.songs)
			st.Put(domain.Record{Song: song("a", 1), Payload: []byte("audio")})

			if err := svc.RemoveSong(context.Background(), "a"); err != nil {
				t.Fatalf("RemoveSong() error: %v", err)
			}
			if _, ok, _ := st.Get("a"); ok {
				t.Error("local record still present")
			}
			if sess.IndexOf("a") != -1 || sess.Len() != 1 {
				t.Errorf("queue = %v, want [b]", sess.Songs())
			}
		})
	}
}

func TestRemoveDuringCachingDropsLateWrite(t *testing.T) {
	client := newFakeCatalog(song("a", 1))
	client.gate = make(chan struct{})
	client.started = make(chan string, 1)
	svc, st, _ := newFixture(t, client)

	svc.EnsureCached(song("a", 1))
	<-client.started

	if err := svc.RemoveSong(context.Background(), "a"); err != nil {
		t.Fatalf("RemoveSong() error: %v", err)
	}
	close(client.gate)
	svc.Wait()

	if _, ok, _ := st.Get("a"); ok {
		t.Error("late caching write resurrected a removed song")
	}
}

func TestDownloadAddsSongToFront(t *testing.T) {
	client := newFakeCatalog(song("a", 1))
	svc, st, sess := newFixture(t, client)
	sess.SetSongs(client.songs)

	p, err := svc.Preview(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}
	song, err := svc.Download(context.Background(), p)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	svc.Wait()

	if got := sess.Songs()[0].ID; got != song.ID {
		t.Errorf("front of queue = %s, want %s", got, song.ID)
	}
	if has, _ := st.HasPayload(song.ID); !has {
		t.Error("downloaded song was not cached")
	}
}

func TestQueries(t *testing.T) {
	st, _ := store.NewSongStore("", "")
	st.Put(domain.Record{Song: song("a", 1), Payload: []byte("x")})
	st.Put(domain.Record{Song: song("b", 2)})
	q := NewQueries(st)

	if !q.IsCached("a") || q.IsCached("b") || q.IsCached("zzz") {
		t.Error("IsCached returned wrong values")
	}
	ids := q.CachedIDs([]domain.Song{song("a", 1), song("b", 2)})
	if !ids["a"] || ids["b"] {
		t.Errorf("CachedIDs() = %v", ids)
	}
	stored, err := q.StoredSongs()
	if err != nil || len(stored) != 2 || stored[0].ID != "b" {
		t.Errorf("StoredSongs() = %v, %v", stored, err)
	}
}
