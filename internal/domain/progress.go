package domain

// CatalogResult summarizes a catalog refresh.
type CatalogResult struct {
	Songs     []Song
	FromCache bool  // true if the remote catalog was unreachable and the durable store was used
	Cause     error // why the remote catalog was not used, nil otherwise
}

// CacheEvent reports the outcome of one background caching task.
type CacheEvent struct {
	SongID string
	Cached bool
	Err    error
}

// CacheObserver receives background caching outcomes.
type CacheObserver interface {
	OnCached(ev CacheEvent)
}
