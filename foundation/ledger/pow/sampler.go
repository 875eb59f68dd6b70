package pow

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/sensors"
)

// DeviceSampler reads temperature and CPU utilization from the host
// through gopsutil. Every read is best-effort: a sensor that is missing or
// refuses permission simply leaves its side of the reading unknown.
type DeviceSampler struct{}

// Sample returns the current device reading.
func (DeviceSampler) Sample() Reading {
	var r Reading

	if temps, err := sensors.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if t.Temperature > 0 {
				r.Temperature = t.Temperature
				r.TemperatureOK = true
				break
			}
		}
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		r.CPUPercent = percents[0]
		r.CPUOK = true
	}

	return r
}
