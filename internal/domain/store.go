package domain

// SongStore is the local durable store keyed by song identifier.
// Every method is its own atomic transaction and safe for concurrent use.
// All failures wrap ErrStorageUnavailable.
type SongStore interface {
	// Put upserts the full record. A record without payload clears any stored payload.
	Put(rec Record) error
	// Get returns the record, or ok=false when absent.
	Get(id string) (rec Record, ok bool, err error)
	// GetAll returns every record in unspecified order.
	GetAll() ([]Record, error)
	// Songs returns metadata for every record without loading payloads.
	Songs() ([]Song, error)
	// HasPayload reports whether a cached payload exists for id.
	HasPayload(id string) (bool, error)
	// Delete removes the record; deleting a missing id is a no-op.
	Delete(id string) error

	Close() error
}
