// Package digest provides the canonical hashing support shared by the
// ledger's blocks and transactions.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ZeroHash represents the previous-hash sentinel carried by a genesis block.
const ZeroHash = "0"

// Hash returns the hex encoded SHA-256 digest of the canonical JSON form of
// the specified value. The value is marshalled twice, with a trip through
// generic maps in between, so that structs and previously decoded documents
// with the same field set always produce identical digests. Map keys are
// serialized in sorted order.
func Hash(value any) string {
	data, err := Canonical(value)
	if err != nil {

		// A value that can't be serialized can't participate in the
		// chain. Return the zero sentinel so validation fails loudly
		// instead of panicking inside a hot mining loop.
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Canonical returns the canonical JSON serialization for the specified
// value: compact, with object keys in sorted order at every level.
func Canonical(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Re-marshalling through any normalizes structs into maps, which the
	// encoder writes with sorted keys. Numbers collapse into float64 on
	// both the create and load paths, so a round trip through disk can't
	// change a digest.
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}
