package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	json "github.com/goccy/go-json"
)

// canonicalBytes renders the hashed portion of an entry to a deterministic
// byte form. Struct field order is fixed by declaration and encoding/json
// (and goccy/go-json, a drop-in faster encoder with identical semantics)
// sorts map keys, so two equal payloads always serialize identically.
func canonicalBytes(e Entry) ([]byte, error) {
	b, err := json.Marshal(e.payload())
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize entry: %w", err)
	}
	return b, nil
}

// entryHash computes H(previousHash || canonicalBytes(entry)).
func entryHash(previousHash, canon []byte) []byte {
	h := sha256.New()
	h.Write(previousHash)
	h.Write(canon)
	return h.Sum(nil)
}

// signHMAC computes HMAC-SHA256(secret, entryHash).
func signHMAC(secret, hash []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(hash)
	return mac.Sum(nil)
}

// verifyHMAC reports whether mac is the valid HMAC-SHA256 of hash under
// secret, using a constant-time comparison.
func verifyHMAC(secret, hash, mac []byte) bool {
	return hmac.Equal(signHMAC(secret, hash), mac)
}

// genesisHash is the previous-hash value of the first entry in a chain.
var genesisHash = make([]byte, sha256.Size)
