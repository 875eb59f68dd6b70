// Package chain is the core API for the append-only ledger and implements
// the hash-chaining, validation, and reconciliation rules.
package chain

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/digest"
	"github.com/medledger/ledger/foundation/ledger/peer"
	"github.com/medledger/ledger/foundation/ledger/transaction"
)

// EventHandler defines a function that is called when events occur in the
// processing of the ledger.
type EventHandler func(v string, args ...any)

// Fetcher is the caller-supplied accessor used during reconciliation to
// retrieve a registered peer's copy of the chain. A nil slice or an error
// means the peer had nothing usable to offer.
type Fetcher func(host string) ([]block.Block, error)

// Defaults applied when the configuration leaves a value unset.
const (
	DefaultDifficulty   = 3
	DefaultMiningReward = 1.0
)

// Genesis sentinel values. They are fixed so every node derives the same
// first block payload.
const (
	GenesisMessage  = "Genesis Block for Pharmaceutical Supply Chain"
	GenesisDeviceID = "genesis_node"
)

// =============================================================================

// Config represents the configuration required to construct a chain.
type Config struct {
	Difficulty   int
	MiningReward float64
	EvHandler    EventHandler
}

// Chain manages the ordered sequence of blocks and the pool of pending
// transactions awaiting inclusion. All exported methods are safe for
// concurrent use; the pending-pool drain, mine, and append sequence runs
// as a single critical section so transactions submitted mid-mine are
// never lost and a batch is never mined twice.
type Chain struct {
	mu           sync.Mutex
	blocks       []block.Block
	difficulty   int
	miningReward float64
	pending      []transaction.Transaction
	peers        *peer.Set
	evHandler    EventHandler
}

// New constructs a chain with an empty block sequence. Call Genesis to lay
// down the sentinel first block.
func New(cfg Config) *Chain {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	difficulty := cfg.Difficulty
	if difficulty < 1 {
		difficulty = DefaultDifficulty
	}

	miningReward := cfg.MiningReward
	if miningReward == 0 {
		miningReward = DefaultMiningReward
	}

	return &Chain{
		difficulty:   difficulty,
		miningReward: miningReward,
		pending:      []transaction.Transaction{},
		peers:        peer.NewSet(),
		evHandler:    ev,
	}
}

// Genesis lays down the fixed sentinel block on an empty chain and returns
// it. On a non-empty chain the existing first block is returned unchanged.
func (c *Chain) Genesis() block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) > 0 {
		return c.blocks[0]
	}

	gen := block.New(
		0,
		transaction.Now(),
		map[string]any{"message": GenesisMessage},
		digest.ZeroHash,
		GenesisDeviceID,
	)
	c.blocks = append(c.blocks, gen)

	c.evHandler("chain: genesis: block laid down: hash[%s]", gen.Hash)
	return gen
}

// LatestBlock returns the current tip of the chain.
func (c *Chain) LatestBlock() (block.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.latestBlock()
}

func (c *Chain) latestBlock() (block.Block, bool) {
	if len(c.blocks) == 0 {
		return block.Block{}, false
	}

	return c.blocks[len(c.blocks)-1], true
}

// Length returns the number of blocks in the chain.
func (c *Chain) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.blocks)
}

// Blocks returns a copy of the block sequence.
func (c *Chain) Blocks() []block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocks := make([]block.Block, len(c.blocks))
	copy(blocks, c.blocks)

	return blocks
}

// Difficulty returns the chain's current integer difficulty.
func (c *Chain) Difficulty() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.difficulty
}

// MiningReward returns the configured mining reward. The value is
// informational and plays no part in validation.
func (c *Chain) MiningReward() float64 {
	return c.miningReward
}

// =============================================================================

// AddTransaction coerces the specified value into a transaction and queues
// it in the pending pool. It returns a tentative hint of the index the next
// mined block will carry; the hint is not authoritative. A value that is
// neither a Transaction nor a serialized transaction document is rejected
// without mutating the pool.
func (c *Chain) AddTransaction(v any) (int, error) {
	tx, err := transaction.From(v)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, tx)

	c.evHandler("chain: add transaction: id[%s] pending[%d]", tx.TransactionID, len(c.pending))

	if latest, ok := c.latestBlock(); ok {
		return latest.Index + 1, nil
	}
	return 1, nil
}

// PendingCount returns the number of transactions awaiting inclusion.
func (c *Chain) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// Pending returns a copy of the pending pool.
func (c *Chain) Pending() []transaction.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]transaction.Transaction, len(c.pending))
	copy(pending, c.pending)

	return pending
}

// MinePendingTransactions sweeps the entire pending pool into a single
// block, mines it at the chain's current difficulty, appends it to the
// chain, and clears the pool. The whole sequence is one critical section:
// transactions submitted while mining is in progress wait and land in the
// next block. The mined block and the elapsed mining time are returned.
func (c *Chain) MinePendingTransactions(rewardAddress string) (block.Block, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previousHash := digest.ZeroHash
	if latest, ok := c.latestBlock(); ok {
		previousHash = latest.Hash
	}

	batch := make([]transaction.Transaction, len(c.pending))
	copy(batch, c.pending)

	b := block.New(
		len(c.blocks),
		transaction.Now(),
		block.MinedData{Transactions: batch, Count: len(batch)},
		previousHash,
		rewardAddress,
	)

	c.evHandler("chain: mine pending: started: index[%d] txs[%d] difficulty[%d]", b.Index, len(batch), c.difficulty)

	start := time.Now()
	b.Mine(c.difficulty)
	elapsed := time.Since(start)

	c.blocks = append(c.blocks, b)
	c.pending = []transaction.Transaction{}

	c.evHandler("chain: mine pending: completed: index[%d] hash[%s] nonce[%d] elapsed[%v]", b.Index, b.Hash, b.Nonce, elapsed)

	return b, elapsed
}

// AddBlock validates an externally produced block and appends it to the
// chain. The checks run in order: predecessor linkage against the current
// tip (skipped when the chain is empty), stored hash against the recomputed
// hash, and the proof-of-work requirement at the chain's current
// difficulty. Any failure leaves the chain untouched. This is the sole
// entry point for accepting blocks produced elsewhere.
func (c *Chain) AddBlock(v any) error {
	b, err := block.From(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if latest, ok := c.latestBlock(); ok {
		if b.PreviousHash != latest.Hash {
			return fmt.Errorf("block %d: previous hash %s does not match tip %s", b.Index, b.PreviousHash, latest.Hash)
		}
	}

	if recomputed := b.ComputeHash(); b.Hash != recomputed {
		return fmt.Errorf("block %d: stored hash %s does not match recomputed hash %s", b.Index, b.Hash, recomputed)
	}

	if !block.HasDifficulty(b.Hash, c.difficulty) {
		return fmt.Errorf("block %d: hash %s does not meet difficulty %d", b.Index, b.Hash, c.difficulty)
	}

	c.blocks = append(c.blocks, b)

	c.evHandler("chain: add block: accepted: index[%d] hash[%s]", b.Index, b.Hash)
	return nil
}

// =============================================================================

// Validate walks every adjacent pair of blocks checking the recomputed
// hash, the predecessor linkage, and the proof-of-work requirement. It
// short-circuits at the first violation, returning an error that names the
// invariant and the offending index. A nil error means the chain is valid.
//
// Historical blocks are checked against the chain's current difficulty,
// not the difficulty in effect when they were mined. Persisted chain
// documents carry no per-block difficulty, so this stays compatible with
// existing files at the cost of spuriously failing old blocks after a
// difficulty increase.
func (c *Chain) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return validateBlocks(c.blocks, c.difficulty)
}

func validateBlocks(blocks []block.Block, difficulty int) error {
	for i := 1; i < len(blocks); i++ {
		current := blocks[i]
		previous := blocks[i-1]

		if recomputed := current.ComputeHash(); current.Hash != recomputed {
			return fmt.Errorf("block %d: stored hash %s does not match recomputed hash %s", i, current.Hash, recomputed)
		}

		if current.PreviousHash != previous.Hash {
			return fmt.Errorf("block %d: previous hash %s does not match block %d hash %s", i, current.PreviousHash, i-1, previous.Hash)
		}

		if !block.HasDifficulty(current.Hash, difficulty) {
			return fmt.Errorf("block %d: hash %s does not meet difficulty %d", i, current.Hash, difficulty)
		}
	}

	return nil
}

// AdjustDifficulty retunes the chain's integer difficulty from the average
// inter-block time of the most recent ten blocks. It only acts once at
// least ten blocks exist. An average below 0.8x the target widens the
// difficulty by one; above 1.2x narrows it by one, floored at one. The new
// difficulty is returned. This knob is independent of the proof-of-work
// engine's fractional tuning.
func (c *Chain) AdjustDifficulty(targetTime float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	const window = 10

	if len(c.blocks) < window {
		return c.difficulty
	}

	recent := c.blocks[len(c.blocks)-window:]

	var total float64
	for i := 1; i < len(recent); i++ {
		total += recent[i].Timestamp - recent[i-1].Timestamp
	}
	avg := total / float64(len(recent)-1)

	switch {
	case avg < targetTime*0.8:
		c.difficulty++
	case avg > targetTime*1.2:
		if c.difficulty > 1 {
			c.difficulty--
		}
	}

	c.evHandler("chain: adjust difficulty: avg[%0.2f] target[%0.2f] difficulty[%d]", avg, targetTime, c.difficulty)
	return c.difficulty
}

// =============================================================================

// RegisterPeer adds a peer address to the set consulted during
// reconciliation, reporting whether it was newly added.
func (c *Chain) RegisterPeer(host string) bool {
	return c.peers.Add(peer.New(host))
}

// Peers returns the registered peer addresses in sorted order.
func (c *Chain) Peers() []string {
	return c.peers.Hosts("")
}

// ResolveConflicts queries every registered peer through the supplied
// fetcher and adopts the longest independently valid chain found, replacing
// the local chain wholesale. Peers whose fetch fails or whose chain is
// invalid or not strictly longer are skipped. It reports whether a
// replacement took place. There is no tie-break between equal-length
// alternatives and no common-prefix check; this is purely
// longest-valid-chain.
//
// The mutex is not held while fetching, so the fetcher is free to call back
// into the chain and mining can continue. The candidate length is checked
// again before the swap in case the local chain grew in the meantime.
func (c *Chain) ResolveConflicts(fetch Fetcher) bool {
	c.mu.Lock()
	maxLength := len(c.blocks)
	difficulty := c.difficulty
	hosts := c.peers.Hosts("")
	c.mu.Unlock()

	var newChain []block.Block

	for _, host := range hosts {
		candidate, err := fetch(host)
		if err != nil {
			c.evHandler("chain: resolve conflicts: peer[%s]: fetch failed: %s", host, err)
			continue
		}

		if len(candidate) <= maxLength {
			continue
		}

		if err := validateBlocks(candidate, difficulty); err != nil {
			c.evHandler("chain: resolve conflicts: peer[%s]: invalid chain: %s", host, err)
			continue
		}

		maxLength = len(candidate)
		newChain = candidate
	}

	if newChain == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(newChain) <= len(c.blocks) {
		return false
	}

	c.blocks = newChain

	c.evHandler("chain: resolve conflicts: chain replaced: length[%d]", len(newChain))
	return true
}

// =============================================================================

// HistoryEntry annotates a matched transaction with the block that
// contains it.
type HistoryEntry struct {
	Transaction transaction.Transaction `json:"transaction"`
	BlockIndex  int                     `json:"block_index"`
	BlockHash   string                  `json:"block_hash"`
	Timestamp   float64                 `json:"timestamp"`
}

// TransactionHistory scans every mined block's transactions and returns
// those whose content carries the specified key with the specified value,
// in chain order. No index is maintained; the cost is linear in the total
// number of transactions.
func (c *Chain) TransactionHistory(key string, value any) []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var history []HistoryEntry
	for _, b := range c.blocks {
		data, ok := minedData(b.Data)
		if !ok {
			continue
		}

		for _, tx := range data.Transactions {
			content, ok := tx.Content.(map[string]any)
			if !ok {
				continue
			}
			if matchValue(content[key], value) {
				history = append(history, HistoryEntry{
					Transaction: tx,
					BlockIndex:  b.Index,
					BlockHash:   b.Hash,
					Timestamp:   b.Timestamp,
				})
			}
		}
	}

	return history
}

// minedData extracts the mined payload from a block's data, whether the
// block was freshly mined in this process or decoded from a document.
func minedData(data any) (block.MinedData, bool) {
	switch d := data.(type) {
	case block.MinedData:
		return d, true

	case map[string]any:
		if _, exists := d["transactions"]; !exists {
			return block.MinedData{}, false
		}

		raw, err := json.Marshal(d)
		if err != nil {
			return block.MinedData{}, false
		}

		var md block.MinedData
		if err := json.Unmarshal(raw, &md); err != nil {
			return block.MinedData{}, false
		}
		return md, true
	}

	return block.MinedData{}, false
}

// matchValue compares a content field against the queried value through
// their canonical serializations, so a number decoded as float64 still
// matches an int query.
func matchValue(have, want any) bool {
	if have == nil {
		return false
	}

	hb, err := digest.Canonical(have)
	if err != nil {
		return false
	}
	wb, err := digest.Canonical(want)
	if err != nil {
		return false
	}

	return string(hb) == string(wb)
}
