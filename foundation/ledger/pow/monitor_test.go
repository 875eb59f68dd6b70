package pow_test

import (
	"testing"

	"github.com/medledger/ledger/foundation/ledger/pow"
)

func Test_PowerModes(t *testing.T) {
	engine := pow.New(pow.Config{InitialDifficulty: 3, TargetTime: 10})
	monitor := pow.NewMonitor(pow.MonitorConfig{
		Engine:         engine,
		MaxTemperature: 70,
		MaxCPUPercent:  80,
	})

	if monitor.Mode() != pow.PowerNormal {
		t.Fatal("Should start in normal power mode.")
	}

	// A reading with no usable sensors leaves everything untouched.
	monitor.Apply(pow.Reading{})
	if monitor.Mode() != pow.PowerNormal || engine.Difficulty() != 3 || engine.TargetTime() != 10 {
		t.Fatal("Should ignore a reading with no sensor data.")
	}

	// Overheating throttles mining down.
	monitor.Apply(pow.Reading{Temperature: 75, TemperatureOK: true})
	if monitor.Mode() != pow.PowerLow {
		t.Fatal("Should drop to low power when overheating.")
	}
	if engine.Difficulty() != 2 {
		t.Fatalf("Should ease the difficulty in low power mode, got %0.1f.", engine.Difficulty())
	}
	if engine.TargetTime() != 15 {
		t.Fatalf("Should stretch the target time in low power mode, got %0.1f.", engine.TargetTime())
	}

	// Cool and idle ramps mining up.
	monitor.Apply(pow.Reading{Temperature: 40, TemperatureOK: true, CPUPercent: 20, CPUOK: true})
	if monitor.Mode() != pow.PowerHigh {
		t.Fatal("Should ramp to high power when cool and idle.")
	}
	if engine.Difficulty() != 2.5 {
		t.Fatalf("Should raise the difficulty in high power mode, got %0.1f.", engine.Difficulty())
	}
	if engine.TargetTime() != 12 {
		t.Fatalf("Should tighten the target time in high power mode, got %0.1f.", engine.TargetTime())
	}

	// Elevated CPU settles back to normal and restores the target time.
	monitor.Apply(pow.Reading{Temperature: 40, TemperatureOK: true, CPUPercent: 75, CPUOK: true})
	if monitor.Mode() != pow.PowerNormal {
		t.Fatal("Should settle to normal power under elevated cpu.")
	}
	if engine.TargetTime() != 10 {
		t.Fatalf("Should restore the default target time, got %0.1f.", engine.TargetTime())
	}
}

func Test_PowerModeFloor(t *testing.T) {
	engine := pow.New(pow.Config{InitialDifficulty: 1, TargetTime: 10})
	monitor := pow.NewMonitor(pow.MonitorConfig{
		Engine:         engine,
		MaxTemperature: 70,
		MaxCPUPercent:  80,
	})

	monitor.Apply(pow.Reading{Temperature: 75, TemperatureOK: true})
	if engine.Difficulty() != 1 {
		t.Fatalf("Should never ease the difficulty below one, got %0.1f.", engine.Difficulty())
	}
}
