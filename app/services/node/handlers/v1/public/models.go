package public

import (
	"github.com/medledger/ledger/business/sys/validate"
	"github.com/medledger/ledger/foundation/ledger/chain"
)

// newEvent is the payload a transaction producer submits: the opaque
// supply-chain record plus the originating device.
type newEvent struct {
	Content  map[string]any `json:"content" validate:"required"`
	DeviceID string         `json:"device_id" validate:"required"`
}

// Validate checks the event against its declared tags.
func (ne newEvent) Validate() error {
	return validate.Check(ne)
}

// minedDescriptor is the response for a submitted event: where the record
// landed in the ledger.
type minedDescriptor struct {
	Index         int    `json:"index"`
	Hash          string `json:"hash"`
	TransactionID string `json:"transaction_id"`
}

// historyEntry decorates a chain history match with the device's display
// name from the registry.
type historyEntry struct {
	chain.HistoryEntry
	DeviceName string `json:"device_name,omitempty"`
}

// validity reports the outcome of a full chain validation walk.
type validity struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
