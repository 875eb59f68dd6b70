// Package transaction implements the immutable record of a single
// supply-chain event, such as a medicine batch scan.
package transaction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/medledger/ledger/foundation/ledger/digest"
)

// Transaction represents one pharmaceutical supply-chain event. Once
// constructed a transaction is never modified. The identifier is derived
// from the content, timestamp, and device so two transactions with the same
// fields hash identically. No de-duplication is performed.
type Transaction struct {
	TransactionID string  `json:"transaction_id"`
	Content       any     `json:"content"`
	Timestamp     float64 `json:"timestamp"`
	DeviceID      string  `json:"device_id"`
}

// New constructs a transaction stamped with the current time.
func New(content any, deviceID string) Transaction {
	return NewAt(content, Now(), deviceID)
}

// NewAt constructs a transaction with the specified timestamp and computes
// its derived identifier.
func NewAt(content any, timestamp float64, deviceID string) Transaction {
	tx := Transaction{
		Content:   content,
		Timestamp: timestamp,
		DeviceID:  deviceID,
	}
	tx.TransactionID = tx.ComputeID()

	return tx
}

// From coerces the specified value into a Transaction. A Transaction value
// passes through untouched. A map or raw JSON document is decoded with its
// stored transaction_id preserved verbatim, which keeps previously persisted
// or externally authored records loadable even when their serialization
// order or clock differed. Anything else is a type error.
func From(v any) (Transaction, error) {
	switch tv := v.(type) {
	case Transaction:
		return tv, nil

	case *Transaction:
		return *tv, nil

	case map[string]any:
		data, err := json.Marshal(tv)
		if err != nil {
			return Transaction{}, fmt.Errorf("marshal transaction document: %w", err)
		}
		return From(json.RawMessage(data))

	case json.RawMessage:
		var tx Transaction
		if err := json.Unmarshal(tv, &tx); err != nil {
			return Transaction{}, fmt.Errorf("unmarshal transaction document: %w", err)
		}
		return tx, nil

	case []byte:
		return From(json.RawMessage(tv))
	}

	return Transaction{}, fmt.Errorf("transaction must be a Transaction value or serialized document, got %T", v)
}

// ComputeID returns the hex SHA-256 digest over the canonical serialization
// of the content, timestamp, and device id. The stored identifier is not
// part of the input.
func (tx Transaction) ComputeID() string {
	return digest.Hash(map[string]any{
		"content":   tx.Content,
		"timestamp": tx.Timestamp,
		"device_id": tx.DeviceID,
	})
}

// Now returns the current time as float seconds since the epoch, the
// timestamp precision carried on the wire.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
