package harness

import (
	"math"
)

// FlowGoodput is the measured goodput of one bulk flow
type FlowGoodput struct {
	Flow     *Flow
	RxBytes  uint64
	Duration float64

	// Bps is the goodput in bits per second
	Bps float64
}

// Mbps is the goodput in megabits per second
func (fg FlowGoodput) Mbps() float64 {
	return fg.Bps / 1e6
}

// GoodputReport holds every bulk flow's goodput and their sum
type GoodputReport struct {
	Flows []FlowGoodput

	// Aggregate is the sum of the per-flow goodputs, in bits per second
	Aggregate float64
}

// AggregateMbps is the aggregate in megabits per second
func (gr *GoodputReport) AggregateMbps() float64 {
	return gr.Aggregate / 1e6
}

// Goodput converts received bytes over a duration into bits per second.
// No bytes, or a duration that is not positive, is exactly zero.
func Goodput(rxBytes uint64, duration float64) float64 {
	if rxBytes == 0 || !(duration > 0.0) {
		return 0.0
	}
	return float64(rxBytes) * 8.0 / duration
}

// MeasureGoodput reads the sink of every bulk flow after the run.  With
// duration > 0 every flow is divided by it; otherwise each flow uses its own
// active window.  Flows that never got a sink count as zero.
func MeasureGoodput(flows []*Flow, duration float64) *GoodputReport {
	gr := new(GoodputReport)
	for _, flow := range flows {
		if flow.Kind != FlowBulk {
			continue
		}
		fg := FlowGoodput{Flow: flow, Duration: duration}
		if !(duration > 0.0) {
			fg.Duration = flow.ActiveDuration()
		}
		if flow.Sink != nil {
			fg.RxBytes = flow.Sink.TotalRx()
		}
		fg.Bps = Goodput(fg.RxBytes, fg.Duration)
		if math.IsInf(fg.Bps, 0) || math.IsNaN(fg.Bps) {
			panic("goodput of a positive duration is not finite")
		}
		gr.Flows = append(gr.Flows, fg)
		gr.Aggregate += fg.Bps
	}
	return gr
}
