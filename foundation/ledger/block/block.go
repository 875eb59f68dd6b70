// Package block implements one entry in the append-only ledger and the
// basic proof-of-work search over its nonce.
package block

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medledger/ledger/foundation/ledger/digest"
	"github.com/medledger/ledger/foundation/ledger/transaction"
)

// yieldInterval is how many hash attempts are made before the unbounded
// mining loop briefly releases the CPU. Constrained field devices mine on
// the same cores that service telemetry.
const yieldInterval = 100

// MinedData is the payload shape carried by a block produced from the
// pending pool.
type MinedData struct {
	Transactions []transaction.Transaction `json:"transactions"`
	Count        int                       `json:"count"`
}

// Block represents a group of transactions batched together and linked to
// its predecessor by hash. After a block is accepted into a chain it is
// treated as immutable; any later mutation is detected by validation.
type Block struct {
	Index        int     `json:"index"`
	Timestamp    float64 `json:"timestamp"`
	Data         any     `json:"data"`
	PreviousHash string  `json:"previous_hash"`
	DeviceID     string  `json:"device_id"`
	Nonce        int     `json:"nonce"`
	Hash         string  `json:"hash"`
}

// New constructs a block with a zero nonce and its hash computed
// immediately over that nonce.
func New(index int, timestamp float64, data any, previousHash string, deviceID string) Block {
	b := Block{
		Index:        index,
		Timestamp:    timestamp,
		Data:         data,
		PreviousHash: previousHash,
		DeviceID:     deviceID,
		Nonce:        0,
	}
	b.Hash = b.ComputeHash()

	return b
}

// From coerces the specified value into a Block. Serialized documents are
// trusted verbatim: the stored nonce and hash are preserved, not recomputed.
func From(v any) (Block, error) {
	switch bv := v.(type) {
	case Block:
		return bv, nil

	case *Block:
		return *bv, nil

	case map[string]any:
		data, err := json.Marshal(bv)
		if err != nil {
			return Block{}, fmt.Errorf("marshal block document: %w", err)
		}
		return From(json.RawMessage(data))

	case json.RawMessage:
		var b Block
		if err := json.Unmarshal(bv, &b); err != nil {
			return Block{}, fmt.Errorf("unmarshal block document: %w", err)
		}
		return b, nil

	case []byte:
		return From(json.RawMessage(bv))
	}

	return Block{}, fmt.Errorf("block must be a Block value or serialized document, got %T", v)
}

// ComputeHash returns the hex SHA-256 digest over the canonical
// serialization of the block's fields. The stored hash is not part of the
// input. This is a pure function of the current field values.
func (b Block) ComputeHash() string {
	return digest.Hash(map[string]any{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"data":          b.Data,
		"previous_hash": b.PreviousHash,
		"device_id":     b.DeviceID,
		"nonce":         b.Nonce,
	})
}

// Mine increments the nonce from its current value until the hash carries
// the required number of leading zero characters. The search is unbounded.
// The block is mutated in place and the final hash returned. Every
// yieldInterval attempts the loop sleeps briefly so a constrained device
// is not starved.
func (b *Block) Mine(difficulty int) string {
	for !HasDifficulty(b.Hash, difficulty) {
		b.Nonce++
		b.Hash = b.ComputeHash()

		if b.Nonce%yieldInterval == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	return b.Hash
}

// IsValid reports whether the stored hash matches the recomputed hash of
// the block's own fields. Predecessor linkage and difficulty are the
// chain's responsibility.
func (b Block) IsValid() bool {
	return b.Hash == b.ComputeHash()
}

// HasDifficulty reports whether the hash meets the proof-of-work
// requirement of difficulty leading zero hex characters.
func HasDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}

	return hash[:difficulty] == strings.Repeat("0", difficulty)
}
