// Package card holds the pure eligibility model: library cards, patrons
// and the deployment profile that decides whether a card may validate
// parking. Nothing here does I/O.
package card

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/crypto/sha3"
)

// Hash returns the hex-encoded SHA3-512 digest of a raw barcode. The
// digest is the only form of a barcode that is ever persisted or logged,
// and it is the join key between remote lookups and the local ledger, so
// it must be stable across process restarts.
func Hash(barcode string) string {
	sum := sha3.Sum512([]byte(barcode))
	return hex.EncodeToString(sum[:])
}

// Card is a scanned library card. HashedBarcode is derived exactly once,
// at construction; the raw barcode is never re-hashed afterwards.
type Card struct {
	Barcode       string
	HashedBarcode string
	Expiration    time.Time
	Blocks        string
}

// New builds a Card and derives its barcode digest.
func New(barcode string, expiration time.Time, blocks string) Card {
	return Card{
		Barcode:       barcode,
		HashedBarcode: Hash(barcode),
		Expiration:    expiration,
		Blocks:        blocks,
	}
}

// Expired reports whether the card's expiration date has passed.
func (c Card) Expired(now time.Time) bool {
	return c.Expiration.Before(now)
}

// Patron is the transient merge of a remote directory record with the
// locally cached usage counters. It is rebuilt on every scan and never
// persisted as a whole; only its counters live in the ledger.
type Patron struct {
	Name string
	Card Card

	Validations    int
	LastValidation *time.Time

	MaxValidations     int
	ValidationInterval time.Duration
}

// Profile is the fixed per-deployment shape of an acceptable barcode plus
// the set of account blocks that deny validation. Compile it once at
// startup with NewProfile.
type Profile struct {
	BarcodePrefix string
	BarcodeLength int
	FailBlocks    []string

	re *regexp.Regexp
}

// NewProfile compiles a deployment profile. length is the total barcode
// length including the prefix.
func NewProfile(prefix string, length int, failBlocks []string) (*Profile, error) {
	if length <= 0 {
		return nil, fmt.Errorf("barcode length must be positive, got %d", length)
	}
	if len(prefix) >= length {
		return nil, fmt.Errorf("barcode prefix %q does not fit in length %d", prefix, length)
	}
	re, err := regexp.Compile(fmt.Sprintf(`^%s[0-9]{%d}$`, regexp.QuoteMeta(prefix), length-len(prefix)))
	if err != nil {
		return nil, fmt.Errorf("compile barcode pattern: %w", err)
	}
	return &Profile{
		BarcodePrefix: prefix,
		BarcodeLength: length,
		FailBlocks:    failBlocks,
		re:            re,
	}, nil
}

// ValidBarcode reports whether a raw token is minimally valid: right
// digits, right length, right prefix. This is the only check applied
// before the remote lookup.
func (p *Profile) ValidBarcode(barcode string) bool {
	return p.re.MatchString(barcode)
}

// Blocked reports whether the card carries one of the profile's fail
// blocks. An empty block code never blocks.
func (p *Profile) Blocked(c Card) bool {
	for _, b := range p.FailBlocks {
		if c.Blocks == b {
			return true
		}
	}
	return false
}

// CardValid is the composite card check: barcode shape, expiration and
// account blocks.
func (p *Profile) CardValid(c Card, now time.Time) bool {
	return p.ValidBarcode(c.Barcode) && !c.Expired(now) && !p.Blocked(c)
}

// Admissible reports whether the patron may validate parking right now:
// the card is valid, the per-window cap has not been reached, and the
// previous validation (if any) is older than the validation interval.
func (p *Profile) Admissible(pat Patron, now time.Time) bool {
	if !p.CardValid(pat.Card, now) {
		return false
	}
	if pat.Validations >= pat.MaxValidations {
		return false
	}
	if pat.LastValidation != nil && now.Sub(*pat.LastValidation) < pat.ValidationInterval {
		return false
	}
	return true
}
