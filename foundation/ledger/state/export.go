package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/medledger/ledger/foundation/ledger/block"
)

// Export is the read-only snapshot shape. It is not reloadable through the
// normal load path.
type Export struct {
	ChainLength int           `json:"chain_length"`
	Difficulty  int           `json:"difficulty"`
	Blocks      []block.Block `json:"blocks"`
}

// Stats summarizes the chain for operators and monitoring.
type Stats struct {
	ChainLength          int     `json:"chain_length"`
	Difficulty           int     `json:"difficulty"`
	TransactionCount     int     `json:"transaction_count"`
	PendingTransactions  int     `json:"pending_transactions"`
	AvgBlockTime         float64 `json:"avg_block_time"`
	LatestBlockTimestamp float64 `json:"latest_block_timestamp"`
	LatestBlockHash      string  `json:"latest_block_hash"`
}

// ExportSnapshot builds the read-only snapshot of the chain.
func (s *State) ExportSnapshot() Export {
	doc := s.chain.Document()

	return Export{
		ChainLength: len(doc.Chain),
		Difficulty:  doc.Difficulty,
		Blocks:      doc.Chain,
	}
}

// ExportTo writes the read-only snapshot to the named file in the data
// directory.
func (s *State) ExportTo(filename string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := json.MarshalIndent(s.ExportSnapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	path := filepath.Join(s.dataDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}

	s.evHandler("state: export: %s", path)
	return nil
}

// ChainStats computes summary statistics over the current chain. The
// average block time covers the most recent ten blocks and is zero until
// enough history exists.
func (s *State) ChainStats() Stats {
	doc := s.chain.Document()

	stats := Stats{
		ChainLength:         len(doc.Chain),
		Difficulty:          doc.Difficulty,
		PendingTransactions: len(doc.PendingTransactions),
	}

	for _, b := range doc.Chain {
		if data, ok := b.Data.(map[string]any); ok {
			if txs, ok := data["transactions"].([]any); ok {
				stats.TransactionCount += len(txs)
			}
		}
		if md, ok := b.Data.(block.MinedData); ok {
			stats.TransactionCount += len(md.Transactions)
		}
	}

	const window = 10
	if len(doc.Chain) > window {
		recent := doc.Chain[len(doc.Chain)-window:]

		var total float64
		for i := 1; i < len(recent); i++ {
			total += recent[i].Timestamp - recent[i-1].Timestamp
		}
		stats.AvgBlockTime = total / float64(len(recent)-1)
	}

	if len(doc.Chain) > 0 {
		latest := doc.Chain[len(doc.Chain)-1]
		stats.LatestBlockTimestamp = latest.Timestamp
		stats.LatestBlockHash = latest.Hash
	}

	return stats
}
