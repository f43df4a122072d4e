package harness

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judinizz/ns3-network-simulations/netsim"
)

func TestGoodputOfNothingIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Goodput(0, 19.0))
	assert.Equal(t, 0.0, Goodput(1000, 0.0))
	assert.Equal(t, 8000.0, Goodput(1000, 1.0))

	flows := []*Flow{
		{ID: 0, Kind: FlowBulk, Start: 1.0, Stop: 20.0},
		{ID: 1, Kind: FlowEcho, Start: 2.0, Stop: 20.0},
	}
	gr := MeasureGoodput(flows, 0.0)
	require.Len(t, gr.Flows, 1)
	assert.Equal(t, 19.0, gr.Flows[0].Duration)
	assert.Equal(t, 0.0, gr.Flows[0].Bps)
	assert.Equal(t, 0.0, gr.Aggregate)
}

func TestReportLines(t *testing.T) {
	gr := &GoodputReport{Flows: []FlowGoodput{{Bps: 912345.6}, {Bps: 40000}}, Aggregate: 952345.6}

	assert.Equal(t, "Protocol=ns3::TcpCubic nFlows=2 delay=50ms Goodput_agregado=0.952346 Mbps",
		AggregateLine(netsim.Cubic, 2, ReportDelay, FormatSeconds(0.05), gr))
	assert.Equal(t, []string{
		"Flow 0 Goodput = 912346 bps (0.912346 Mbps)",
		"Flow 1 Goodput = 40000 bps (0.04 Mbps)",
	}, FlowLines(gr))
	assert.Equal(t, "Protocol=ns3::TcpNewReno Delay1=10ms Delay2=50ms Goodput1=0.912346Mbps Goodput2=0.04Mbps",
		DualLine(netsim.NewReno, "10ms", "50ms", gr))

	var buf bytes.Buffer
	require.NoError(t, WriteLines(&buf, FlowLines(gr)))
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "20ms", FormatSeconds(0.02))
	assert.Equal(t, "10us", FormatSeconds(0.00001))
	assert.Equal(t, "6.56us", FormatSeconds(6560e-9))
	assert.Equal(t, "500ns", FormatSeconds(5e-7))
	assert.Equal(t, "2s", FormatSeconds(2.0))
}

func TestReportErrsKeepsFirstError(t *testing.T) {
	assert.NoError(t, ReportErrs([]error{nil, nil}))
	err := ReportErrs([]error{nil, ErrInvalidSchedule, ErrRoutesNotReady})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.Contains(t, err.Error(), ErrRoutesNotReady.Error())
}
