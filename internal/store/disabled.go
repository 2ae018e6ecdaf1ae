package store

import (
	"fmt"

	"github.com/mmcdole/tonearm/internal/domain"
)

// Disabled is a store that refuses every operation. It stands in when the
// database cannot be opened so the rest of the client runs network-only.
type Disabled struct {
	cause error
}

// NewDisabled returns a store whose operations all fail with domain.ErrStorageUnavailable.
func NewDisabled(cause error) *Disabled {
	return &Disabled{cause: cause}
}

func (d *Disabled) err() error {
	if d.cause == nil {
		return domain.ErrStorageUnavailable
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, d.cause)
}

func (d *Disabled) Put(domain.Record) error { return d.err() }

func (d *Disabled) Get(string) (domain.Record, bool, error) {
	return domain.Record{}, false, d.err()
}

func (d *Disabled) GetAll() ([]domain.Record, error) { return nil, d.err() }

func (d *Disabled) Songs() ([]domain.Song, error) { return nil, d.err() }

func (d *Disabled) HasPayload(string) (bool, error) { return false, d.err() }

func (d *Disabled) Delete(string) error { return d.err() }

func (d *Disabled) Close() error { return nil }
