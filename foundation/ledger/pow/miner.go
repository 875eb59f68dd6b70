package pow

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/chain"
)

// Miner loop defaults.
const (
	defaultPollInterval = time.Second
	defaultRestInterval = 500 * time.Millisecond
)

// MinerConfig represents the configuration for the background miner.
type MinerConfig struct {
	Chain       *chain.Chain
	Engine      *Engine
	Beneficiary string

	// AfterMine, when set, runs once per mined block, typically to
	// persist the chain or broadcast the block. A failure is logged and
	// retried on the next block after a backoff pause; it never stops
	// the loop.
	AfterMine func(block.Block) error

	PollInterval time.Duration
	RestInterval time.Duration
	EvHandler    chain.EventHandler
}

// Miner runs a cooperative background loop that sweeps the pending pool
// into mined blocks through the chain's own mining entry point. When no
// transactions are pending it polls rather than busy-waits. The loop is
// stopped with Shutdown, which is honored within one polling interval.
type Miner struct {
	chain        *chain.Chain
	engine       *Engine
	beneficiary  string
	afterMine    func(block.Block) error
	pollInterval time.Duration
	restInterval time.Duration
	evHandler    chain.EventHandler

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	shut    chan struct{}
}

// NewMiner constructs a background miner applying defaults for unset
// intervals.
func NewMiner(cfg MinerConfig) *Miner {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	restInterval := cfg.RestInterval
	if restInterval <= 0 {
		restInterval = defaultRestInterval
	}

	return &Miner{
		chain:        cfg.Chain,
		engine:       cfg.Engine,
		beneficiary:  cfg.Beneficiary,
		afterMine:    cfg.AfterMine,
		pollInterval: pollInterval,
		restInterval: restInterval,
		evHandler:    ev,
	}
}

// Start launches the mining goroutine, reporting whether it was started.
// A second call while the loop is running is refused.
func (m *Miner) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.evHandler("pow: miner: already running")
		return false
	}

	m.running = true
	m.shut = make(chan struct{})
	m.wg.Add(1)

	go m.run(m.shut)

	m.evHandler("pow: miner: started: difficulty[%0.1f]", m.engine.Difficulty())
	return true
}

// Shutdown signals the mining goroutine to stop and waits for it to
// terminate, reporting whether a running loop was stopped. The stop
// latency is bounded by the polling interval plus any in-flight block.
func (m *Miner) Shutdown() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.evHandler("pow: miner: not running")
		return false
	}
	m.running = false
	close(m.shut)
	m.mu.Unlock()

	m.wg.Wait()

	m.evHandler("pow: miner: stopped")
	return true
}

// Running reports whether the mining loop is active.
func (m *Miner) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

// =============================================================================

func (m *Miner) run(shut chan struct{}) {
	defer m.wg.Done()

	m.evHandler("pow: miner: G started")
	defer m.evHandler("pow: miner: G completed")

	bo := backoff.NewExponentialBackOff()

	for {
		select {
		case <-shut:
			return
		default:
		}

		if m.chain.PendingCount() == 0 {
			if !m.pause(shut, m.pollInterval) {
				return
			}
			continue
		}

		b, elapsed := m.chain.MinePendingTransactions(m.beneficiary)
		m.engine.AdjustDifficulty(elapsed.Seconds())

		if m.afterMine != nil {
			if err := m.afterMine(b); err != nil {
				m.evHandler("pow: miner: after mine: ERROR: %s", err)
				if !m.pause(shut, bo.NextBackOff()) {
					return
				}
				continue
			}
			bo.Reset()
		}

		if !m.pause(shut, m.restInterval) {
			return
		}
	}
}

// pause sleeps for the specified duration unless a shutdown is signaled
// first, reporting whether the loop should keep running.
func (m *Miner) pause(shut chan struct{}, d time.Duration) bool {
	select {
	case <-shut:
		return false
	case <-time.After(d):
		return true
	}
}
