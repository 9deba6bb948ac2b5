package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/QWED-AI/qwed-verification/internal/logging"
)

// Writer appends hash-chained, HMAC-signed entries one at a time. The
// mutex serializes access to the chain tail the same way the tail-locked
// in-memory auditor this is grounded on serializes access to its event
// slice: only one goroutine ever extends the chain at a time, so the
// previous-hash a new entry links against can never go stale between
// being read and being written.
type Writer struct {
	mu       sync.Mutex
	store    Store
	secret   []byte
	redactor *PIIRedactor
	logger   *logging.Logger
	lastHash []byte
}

// NewWriter builds a Writer seeded from store's current tail, so that
// restarting the process resumes the chain instead of forking it.
func NewWriter(ctx context.Context, store Store, secret []byte, logger *logging.Logger) (*Writer, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("audit: hmac secret is required")
	}

	w := &Writer{
		store:    store,
		secret:   secret,
		redactor: NewPIIRedactor(),
		logger:   logger,
		lastHash: genesisHash,
	}

	tail, err := store.Tail(ctx)
	if err != nil {
		if errors.Is(err, ErrNoEntries) {
			return w, nil
		}
		return nil, fmt.Errorf("audit: load chain tail: %w", err)
	}
	w.lastHash = tail.EntryHash
	return w, nil
}

// Append redacts, hashes, signs, and persists one entry, advancing the
// chain tail only after the store confirms the write.
func (w *Writer) Append(ctx context.Context, entry Entry) (Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry.Details = w.redactor.RedactMap(entry.Details)
	entry.PreviousHash = w.lastHash

	canon, err := canonicalBytes(entry)
	if err != nil {
		return Entry{}, err
	}
	entry.EntryHash = entryHash(entry.PreviousHash, canon)
	entry.HMAC = signHMAC(w.secret, entry.EntryHash)

	if err := w.store.Append(ctx, entry); err != nil {
		if w.logger != nil {
			w.logger.Error(ctx, "audit append failed", err, map[string]interface{}{
				"action": entry.Action,
			})
		}
		return Entry{}, fmt.Errorf("audit: persist entry: %w", err)
	}

	w.lastHash = entry.EntryHash
	return entry, nil
}
