package chain

import (
	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/peer"
	"github.com/medledger/ledger/foundation/ledger/transaction"
)

// Document is the persisted representation of the whole chain. The field
// names and nesting are a wire contract shared with previously persisted
// files and with peers, so they must not change.
type Document struct {
	Chain               []block.Block             `json:"chain"`
	PendingTransactions []transaction.Transaction `json:"pending_transactions"`
	Difficulty          int                       `json:"difficulty"`
	Nodes               []string                  `json:"nodes"`
}

// Document snapshots the chain into its persisted representation.
func (c *Chain) Document() Document {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocks := make([]block.Block, len(c.blocks))
	copy(blocks, c.blocks)

	pending := make([]transaction.Transaction, len(c.pending))
	copy(pending, c.pending)

	return Document{
		Chain:               blocks,
		PendingTransactions: pending,
		Difficulty:          c.difficulty,
		Nodes:               c.peers.Hosts(""),
	}
}

// Restore replaces the chain's blocks, pending pool, difficulty, and peer
// set in place from a previously persisted document. Stored hashes and
// transaction ids are trusted verbatim.
func (c *Chain) Restore(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocks := make([]block.Block, len(doc.Chain))
	copy(blocks, doc.Chain)
	c.blocks = blocks

	pending := make([]transaction.Transaction, len(doc.PendingTransactions))
	copy(pending, doc.PendingTransactions)
	c.pending = pending

	c.difficulty = doc.Difficulty
	if c.difficulty < 1 {
		c.difficulty = DefaultDifficulty
	}

	peers := peer.NewSet()
	for _, host := range doc.Nodes {
		peers.Add(peer.New(host))
	}
	c.peers = peers

	c.evHandler("chain: restore: length[%d] pending[%d] difficulty[%d]", len(c.blocks), len(c.pending), c.difficulty)
}
