package audit

import (
	"bytes"
	"context"
	"fmt"
)

// BreakKind classifies how a chain link failed verification.
type BreakKind string

const (
	BreakHashMismatch BreakKind = "HASH_MISMATCH"
	BreakHMACMismatch BreakKind = "HMAC_MISMATCH"
	BreakLinkMismatch BreakKind = "PREVIOUS_HASH_MISMATCH"
)

// Break describes the first entry at which the chain no longer verifies.
type Break struct {
	Sequence int64
	Kind     BreakKind
}

// Verifier recomputes the hash chain from a Store and reports the first
// entry whose stored hash, HMAC, or link to its predecessor does not
// match what an honest writer would have produced.
type Verifier struct {
	store  Store
	secret []byte
}

// NewVerifier builds a Verifier against store using secret for HMAC checks.
func NewVerifier(store Store, secret []byte) *Verifier {
	return &Verifier{store: store, secret: secret}
}

// Walk scans the chain in append order and returns the first broken link,
// or (nil, nil) if every entry verifies.
func (v *Verifier) Walk(ctx context.Context) (*Break, error) {
	expectedPrev := genesisHash
	var sequence int64
	var brk *Break

	err := v.store.Walk(ctx, func(e Entry) error {
		if brk != nil {
			return nil
		}
		sequence = e.Sequence

		if !bytes.Equal(e.PreviousHash, expectedPrev) {
			brk = &Break{Sequence: sequence, Kind: BreakLinkMismatch}
			return nil
		}

		canon, err := canonicalBytes(e)
		if err != nil {
			return fmt.Errorf("audit: canonicalize entry %d: %w", sequence, err)
		}
		wantHash := entryHash(e.PreviousHash, canon)
		if !bytes.Equal(wantHash, e.EntryHash) {
			brk = &Break{Sequence: sequence, Kind: BreakHashMismatch}
			return nil
		}

		if !verifyHMAC(v.secret, e.EntryHash, e.HMAC) {
			brk = &Break{Sequence: sequence, Kind: BreakHMACMismatch}
			return nil
		}

		expectedPrev = e.EntryHash
		return nil
	})
	if err != nil {
		return nil, err
	}
	return brk, nil
}
