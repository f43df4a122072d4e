package harness

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/judinizz/ns3-network-simulations/netsim"
)

// fmtNum prints a number the way the experiment logs always have: six
// significant digits, no trailing zeros
func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// AggregateLine is the one-line summary of a multi-flow bulk run.  tagName is
// "delay" or "errorRate" and tagValue the swept parameter.
func AggregateLine(cs netsim.CongestionStrategy, nFlows int, tagName, tagValue string, gr *GoodputReport) string {
	return fmt.Sprintf("Protocol=%s nFlows=%d %s=%s Goodput_agregado=%s Mbps",
		cs.String(), nFlows, tagName, tagValue, fmtNum(gr.AggregateMbps()))
}

// FlowLines lists the per-flow goodputs, one line each
func FlowLines(gr *GoodputReport) []string {
	lines := make([]string, 0, len(gr.Flows))
	for idx, fg := range gr.Flows {
		lines = append(lines, fmt.Sprintf("Flow %d Goodput = %s bps (%s Mbps)", idx, fmtNum(fg.Bps), fmtNum(fg.Mbps())))
	}
	return lines
}

// DualLine reports the two flows of a dual-destination run
func DualLine(cs netsim.CongestionStrategy, delay1, delay2 string, gr *GoodputReport) string {
	g := [2]float64{}
	for idx := 0; idx < len(gr.Flows) && idx < 2; idx++ {
		g[idx] = gr.Flows[idx].Mbps()
	}
	return fmt.Sprintf("Protocol=%s Delay1=%s Delay2=%s Goodput1=%sMbps Goodput2=%sMbps",
		cs.String(), delay1, delay2, fmtNum(g[0]), fmtNum(g[1]))
}

// EchoLines reports, per echo client, how many requests went out and how many replies came back
func EchoLines(flows []*Flow) []string {
	lines := []string{}
	for _, flow := range flows {
		if flow.Kind != FlowEcho || flow.Client == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("Client %d (%s) -> %s:%d sent=%d received=%d",
			flow.ID, flow.Src.Name, flow.DstAddr, flow.Port, flow.Client.Sent(), flow.Client.Received()))
	}
	return lines
}

// FormatSeconds prints a duration in seconds the way delays are given on the command line, e.g. "50ms"
func FormatSeconds(secs float64) string {
	switch {
	case secs == 0.0:
		return "0ms"
	case secs < 1e-6:
		return fmtNum(secs*1e9) + "ns"
	case secs < 1e-3:
		return fmtNum(secs*1e6) + "us"
	case secs < 1.0:
		return fmtNum(secs*1e3) + "ms"
	}
	return fmtNum(secs) + "s"
}

// WriteLines writes each line followed by a newline
func WriteLines(w io.Writer, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}
