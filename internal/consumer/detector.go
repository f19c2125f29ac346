package consumer

import (
	"fmt"

	"github.com/amareshkumar/telemetry-platform/internal/domain/telemetry"
)

// Thresholds are the operational limits per measurement kind. Readings
// outside them are anomalies: still stored, then alerted on.
type Thresholds struct {
	TempHigh     float64
	TempLow      float64
	HumidityHigh float64
	VoltageLow   float64
	CurrentHigh  float64
}

// Detector runs threshold checks against known measurement kinds. Unknown
// kinds pass through without a check; unit/value plausibility is
// deliberately not enforced anywhere else in the pipeline.
type Detector struct {
	t Thresholds
}

func NewDetector(t Thresholds) *Detector {
	return &Detector{t: t}
}

// Check reports whether the reading is anomalous and why.
func (d *Detector) Check(e telemetry.Event) (string, bool) {
	switch e.Type {
	case "temperature":
		if e.Value > d.t.TempHigh {
			return fmt.Sprintf("temperature above %.1f", d.t.TempHigh), true
		}
		if e.Value < d.t.TempLow {
			return fmt.Sprintf("temperature below %.1f", d.t.TempLow), true
		}
	case "humidity":
		if e.Value > d.t.HumidityHigh {
			return fmt.Sprintf("humidity above %.1f", d.t.HumidityHigh), true
		}
	case "voltage":
		if e.Value < d.t.VoltageLow {
			return fmt.Sprintf("voltage below %.1f", d.t.VoltageLow), true
		}
	case "current":
		if e.Value > d.t.CurrentHigh {
			return fmt.Sprintf("current above %.1f", d.t.CurrentHigh), true
		}
	}
	return "", false
}
