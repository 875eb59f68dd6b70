// Package pow implements the proof-of-work mining engine with adaptive
// difficulty retuning and resource-aware throttling for constrained
// devices.
package pow

import (
	"math"
	"sync"
	"time"

	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/chain"
)

// Engine defaults.
const (
	DefaultTargetTime       = 10.0
	DefaultAdjustmentFactor = 0.2
)

// yieldInterval is how many bounded-search attempts are made before the
// loop briefly releases the CPU.
const yieldInterval = 10000

// difficultyWindow caps the rolling history of difficulties used for
// mined blocks.
const difficultyWindow = 10

// =============================================================================

// Config represents the tunables for a mining engine.
type Config struct {
	InitialDifficulty float64
	TargetTime        float64
	AdjustmentFactor  float64
	EvHandler         chain.EventHandler
}

// Stats carries the engine's running mining statistics.
type Stats struct {
	BlocksMined      int       `json:"blocks_mined"`
	TotalTime        float64   `json:"total_time"`
	AverageTime      float64   `json:"average_time"`
	LastDifficulties []float64 `json:"last_difficulties"`
}

// Result is the outcome of one bounded mining attempt. A failed attempt is
// an ordinary outcome, not an error; the caller decides whether to retry
// with a fresh timestamp or nonce range.
type Result struct {
	Solved  bool
	Nonce   int
	Hash    string
	Elapsed time.Duration
}

// Engine searches for nonces satisfying a difficulty target. Its
// difficulty is a continuous quantity that adaptive tuning moves in steps
// of the adjustment factor; it is floored to an integer only when compared
// against hash prefixes. The engine's difficulty is deliberately not
// synchronized with a chain's integer difficulty.
type Engine struct {
	mu                sync.Mutex
	difficulty        float64
	targetTime        float64
	defaultTargetTime float64
	adjustmentFactor  float64
	stats             Stats
	evHandler         chain.EventHandler
}

// New constructs a mining engine applying defaults for unset tunables.
func New(cfg Config) *Engine {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	difficulty := cfg.InitialDifficulty
	if difficulty < 1 {
		difficulty = chain.DefaultDifficulty
	}

	targetTime := cfg.TargetTime
	if targetTime <= 0 {
		targetTime = DefaultTargetTime
	}

	adjustmentFactor := cfg.AdjustmentFactor
	if adjustmentFactor <= 0 {
		adjustmentFactor = DefaultAdjustmentFactor
	}

	return &Engine{
		difficulty:        difficulty,
		targetTime:        targetTime,
		defaultTargetTime: targetTime,
		adjustmentFactor:  adjustmentFactor,
		stats:             Stats{LastDifficulties: []float64{}},
		evHandler:         ev,
	}
}

// Mine performs a bounded nonce search over the specified block, starting
// from nonce zero. On success the block carries the winning nonce and hash,
// and the engine's running statistics are updated. Exhausting maxNonce is
// reported through the result, never raised.
func (e *Engine) Mine(b *block.Block, maxNonce int) Result {
	difficulty := e.intDifficulty()
	start := time.Now()

	for nonce := 0; nonce < maxNonce; nonce++ {
		b.Nonce = nonce
		hash := b.ComputeHash()

		if block.HasDifficulty(hash, difficulty) {
			b.Hash = hash
			elapsed := time.Since(start)

			e.recordSuccess(elapsed)

			e.evHandler("pow: mine: solved: nonce[%d] hash[%s] elapsed[%v]", nonce, hash, elapsed)
			return Result{Solved: true, Nonce: nonce, Hash: hash, Elapsed: elapsed}
		}

		if nonce > 0 && nonce%yieldInterval == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	elapsed := time.Since(start)

	e.evHandler("pow: mine: exhausted: maxNonce[%d] elapsed[%v]", maxNonce, elapsed)
	return Result{Solved: false, Nonce: maxNonce, Elapsed: elapsed}
}

// AdjustDifficulty retunes the engine's difficulty from the time taken to
// mine the last block. Until three blocks have been mined there is not
// enough history and the call is a no-op. Mining faster than 0.8x the
// target raises the difficulty by the adjustment factor; slower than 1.2x
// lowers it. The result is floored at one and rounded to the nearest 0.5.
func (e *Engine) AdjustDifficulty(timeTaken float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stats.BlocksMined < 3 {
		return e.difficulty
	}

	ratio := timeTaken / e.targetTime

	switch {
	case ratio < 0.8:
		e.difficulty += e.adjustmentFactor
	case ratio > 1.2:
		e.difficulty -= e.adjustmentFactor
	}

	if e.difficulty < 1 {
		e.difficulty = 1
	}
	e.difficulty = math.Round(e.difficulty*2) / 2

	e.evHandler("pow: adjust difficulty: difficulty[%0.1f] took[%0.2fs] target[%0.2fs]", e.difficulty, timeTaken, e.targetTime)
	return e.difficulty
}

// Stats returns a copy of the engine's running statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.stats
	stats.LastDifficulties = append([]float64{}, e.stats.LastDifficulties...)

	return stats
}

// Difficulty returns the engine's current fractional difficulty.
func (e *Engine) Difficulty() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.difficulty
}

// SetDifficulty replaces the engine's difficulty, floored at one.
func (e *Engine) SetDifficulty(difficulty float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if difficulty < 1 {
		difficulty = 1
	}
	e.difficulty = difficulty
}

// TargetTime returns the desired seconds per block.
func (e *Engine) TargetTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.targetTime
}

// SetTargetTime replaces the desired seconds per block.
func (e *Engine) SetTargetTime(targetTime float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.targetTime = targetTime
}

// DefaultTargetTime returns the target time the engine was constructed
// with, used when a power-mode change resets the tuning.
func (e *Engine) DefaultTargetTime() float64 {
	return e.defaultTargetTime
}

// =============================================================================

// intDifficulty returns the difficulty as a leading-zero count, flooring
// the fractional tuning value.
func (e *Engine) intDifficulty() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return int(math.Floor(e.difficulty))
}

// recordSuccess folds a solved block into the running statistics and the
// rolling difficulty window.
func (e *Engine) recordSuccess(elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.BlocksMined++
	e.stats.TotalTime += elapsed.Seconds()
	e.stats.AverageTime = e.stats.TotalTime / float64(e.stats.BlocksMined)

	e.stats.LastDifficulties = append(e.stats.LastDifficulties, e.difficulty)
	if len(e.stats.LastDifficulties) > difficultyWindow {
		e.stats.LastDifficulties = e.stats.LastDifficulties[1:]
	}
}
