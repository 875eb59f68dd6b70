package pow

import (
	"sync"
	"time"

	"github.com/medledger/ledger/foundation/ledger/chain"
)

// PowerMode classifies how aggressively the device should mine given its
// thermal and CPU headroom.
type PowerMode string

// The set of power modes.
const (
	PowerLow    PowerMode = "low"
	PowerNormal PowerMode = "normal"
	PowerHigh   PowerMode = "high"
)

// Monitor defaults.
const (
	DefaultMaxTemperature = 70.0
	DefaultMaxCPUPercent  = 80.0
	defaultSampleInterval = 5 * time.Second
)

// Reading is one best-effort sample of device resources. A field with its
// OK flag unset means the sensor was unavailable; an all-unknown reading is
// legal and must not perturb mining parameters.
type Reading struct {
	Temperature   float64
	TemperatureOK bool
	CPUPercent    float64
	CPUOK         bool
}

// Sampler supplies device temperature and CPU utilization readings.
type Sampler interface {
	Sample() Reading
}

// =============================================================================

// MonitorConfig represents the configuration for a resource monitor.
type MonitorConfig struct {
	Engine         *Engine
	Sampler        Sampler
	MaxTemperature float64
	MaxCPUPercent  float64
	Interval       time.Duration
	EvHandler      chain.EventHandler
}

// Monitor samples device resources on an independent timer and throttles
// the mining engine through power-mode transitions. It exists so a
// constrained field device never mines itself into thermal shutdown.
type Monitor struct {
	engine         *Engine
	sampler        Sampler
	maxTemperature float64
	maxCPUPercent  float64
	interval       time.Duration
	evHandler      chain.EventHandler

	mu      sync.Mutex
	mode    PowerMode
	running bool
	wg      sync.WaitGroup
	shut    chan struct{}
}

// NewMonitor constructs a resource monitor applying defaults for unset
// thresholds.
func NewMonitor(cfg MonitorConfig) *Monitor {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	maxTemperature := cfg.MaxTemperature
	if maxTemperature <= 0 {
		maxTemperature = DefaultMaxTemperature
	}

	maxCPUPercent := cfg.MaxCPUPercent
	if maxCPUPercent <= 0 {
		maxCPUPercent = DefaultMaxCPUPercent
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSampleInterval
	}

	return &Monitor{
		engine:         cfg.Engine,
		sampler:        cfg.Sampler,
		maxTemperature: maxTemperature,
		maxCPUPercent:  maxCPUPercent,
		interval:       interval,
		evHandler:      ev,
		mode:           PowerNormal,
	}
}

// Start launches the monitoring goroutine, reporting whether it was
// started.
func (m *Monitor) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.evHandler("pow: monitor: already running")
		return false
	}

	m.running = true
	m.shut = make(chan struct{})
	m.wg.Add(1)

	go m.run(m.shut)

	m.evHandler("pow: monitor: started")
	return true
}

// Shutdown signals the monitoring goroutine to stop and waits for it,
// reporting whether a running loop was stopped. The stop latency is
// bounded by the sample interval.
func (m *Monitor) Shutdown() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.evHandler("pow: monitor: not running")
		return false
	}
	m.running = false
	close(m.shut)
	m.mu.Unlock()

	m.wg.Wait()

	m.evHandler("pow: monitor: stopped")
	return true
}

// Mode returns the current power mode.
func (m *Monitor) Mode() PowerMode {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mode
}

// =============================================================================

func (m *Monitor) run(shut chan struct{}) {
	defer m.wg.Done()

	m.evHandler("pow: monitor: G started")
	defer m.evHandler("pow: monitor: G completed")

	for {
		select {
		case <-shut:
			return
		case <-time.After(m.interval):
			m.Apply(m.sampler.Sample())
		}
	}
}

// Apply classifies a resource reading into a power mode and, on a mode
// transition, retunes the engine. A reading with no usable sensor data
// leaves everything untouched.
func (m *Monitor) Apply(r Reading) {
	if !r.TemperatureOK && !r.CPUOK {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	oldMode := m.mode

	if r.TemperatureOK {
		switch {
		case r.Temperature > m.maxTemperature:
			m.mode = PowerLow
			m.evHandler("pow: monitor: high temperature[%0.1fC]: low power mode", r.Temperature)
		case r.Temperature > m.maxTemperature*0.9:
			m.mode = PowerNormal
			m.evHandler("pow: monitor: elevated temperature[%0.1fC]: normal power mode", r.Temperature)
		default:
			if !r.CPUOK || r.CPUPercent < m.maxCPUPercent*0.8 {
				m.mode = PowerHigh
			}
		}
	}

	if r.CPUOK {
		switch {
		case r.CPUPercent > m.maxCPUPercent:
			m.mode = PowerLow
			m.evHandler("pow: monitor: high cpu[%0.1f%%]: low power mode", r.CPUPercent)
		case r.CPUPercent > m.maxCPUPercent*0.9:
			m.mode = PowerNormal
			m.evHandler("pow: monitor: elevated cpu[%0.1f%%]: normal power mode", r.CPUPercent)
		}
	}

	if m.mode != oldMode {
		m.applyPowerMode()
	}
}

// applyPowerMode pushes the mode-specific tuning into the engine. The
// monitor mutex is held by the caller.
func (m *Monitor) applyPowerMode() {
	switch m.mode {
	case PowerLow:
		difficulty := m.engine.Difficulty() - 1
		if difficulty < 1 {
			difficulty = 1
		}
		m.engine.SetDifficulty(difficulty)
		m.engine.SetTargetTime(m.engine.TargetTime() * 1.5)

	case PowerNormal:
		m.engine.SetTargetTime(m.engine.DefaultTargetTime())

	case PowerHigh:
		m.engine.SetDifficulty(m.engine.Difficulty() + 0.5)

		targetTime := m.engine.TargetTime() * 0.8
		if targetTime < 5 {
			targetTime = 5
		}
		m.engine.SetTargetTime(targetTime)
	}

	m.evHandler("pow: monitor: %s power mode: difficulty[%0.1f] target[%0.1fs]", m.mode, m.engine.Difficulty(), m.engine.TargetTime())
}
