// Package directory resolves a scanned barcode to the authoritative card
// attributes held by the remote patron directory.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the directory answered but has no record for the
// barcode. Any other error from Lookup is a communication failure.
var ErrNotFound = errors.New("patron record not found")

// Record is the subset of the remote patron record the validator needs.
type Record struct {
	Name       string // "First Last"
	Expiration time.Time
	Blocks     string
}

// Client is the directory contract. Lookup blocks the admission pipeline,
// so implementations must enforce a short timeout.
type Client interface {
	Lookup(ctx context.Context, barcode string) (Record, error)
}
