package harness

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judinizz/ns3-network-simulations/netsim"
)

func TestParseDataRate(t *testing.T) {
	cases := map[string]float64{
		"1Mbps":   1e6,
		"54Mbps":  54e6,
		"100Kbps": 100e3,
		"2Gbps":   2e9,
		"500bps":  500,
		"1200":    1200,
		"10Mb/s":  10e6,
	}
	for text, expected := range cases {
		got, err := ParseDataRate(text)
		require.NoError(t, err, text)
		assert.InDelta(t, expected, got, 1e-6, text)
	}
	for _, bad := range []string{"", "fast", "0Mbps", "-1Mbps"} {
		_, err := ParseDataRate(bad)
		assert.ErrorIs(t, err, ErrBadScenario, bad)
	}
}

func TestParseDelay(t *testing.T) {
	cases := map[string]float64{
		"20ms":   0.02,
		"0.01ms": 0.00001,
		"6560ns": 6.56e-6,
		"2us":    2e-6,
		"0.5":    0.5,
	}
	for text, expected := range cases {
		got, err := ParseDelay(text)
		require.NoError(t, err, text)
		assert.InDelta(t, expected, got, 1e-12, text)
	}
	_, err := ParseDelay("soon")
	assert.ErrorIs(t, err, ErrBadScenario)
}

func TestValidateFoldsEveryProblem(t *testing.T) {
	sc := &Scenario{Kind: "stream", Shape: "dumbbell", Strategy: "TcpVegas", ErrorRate: 1.5}
	sc.Complete()
	err := sc.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadScenario)
	assert.Contains(t, err.Error(), "TcpVegas")
	assert.Contains(t, err.Error(), "error rate")

	sc = &Scenario{Kind: KindEcho, Shape: "dumbbell"}
	sc.Complete()
	assert.ErrorIs(t, sc.Validate(), ErrBadScenario)
}

func TestScenarioFileRoundTrip(t *testing.T) {
	sc, err := Preset("part1b")
	require.NoError(t, err)
	filename := t.TempDir() + "/scenario.json"
	require.NoError(t, sc.WriteToFile(filename))

	back, err := ReadScenario(filename, UseYAML(filename), nil)
	require.NoError(t, err)
	assert.Equal(t, sc, back)

	_, err = Preset("part9")
	assert.ErrorIs(t, err, ErrBadScenario)
}

func TestReadScenarioFromYAMLBytes(t *testing.T) {
	dict := []byte("name: sweep\nkind: bulk\nshape: dumbbell\nstrategy: TcpCubic\ndelay: 5ms\nnFlows: 3\nstop: 10\n")
	sc, err := ReadScenario("", true, dict)
	require.NoError(t, err)
	assert.Equal(t, "sweep", sc.Name)
	assert.Equal(t, 3, sc.NFlows)
	assert.Equal(t, 10.0, sc.Stop)
}

var aggregateLine = regexp.MustCompile(`^Protocol=ns3::Tcp\w+ nFlows=\d+ (delay|errorRate)=\S+ Goodput_agregado=[0-9.e+-]+ Mbps$`)

func TestSingleFlowRunReportsOneLine(t *testing.T) {
	sc := &Scenario{Name: "e2e", Kind: KindBulk, Shape: "dumbbell", Strategy: "TcpNewReno",
		DataRate: "1Mbps", Delay: "1ms", NFlows: 1, Stop: 20.0}
	res, err := Run(sc, nil)
	require.NoError(t, err)

	require.Len(t, res.Lines, 1)
	assert.Regexp(t, aggregateLine, res.Lines[0])
	assert.True(t, strings.HasPrefix(res.Lines[0], "Protocol=ns3::TcpNewReno nFlows=1 delay=1ms "))

	require.Len(t, res.Goodput.Flows, 1)
	assert.Equal(t, 19.0, res.Goodput.Flows[0].Duration)
	assert.Greater(t, res.Goodput.Aggregate, 0.7e6)
	assert.LessOrEqual(t, res.Goodput.Aggregate, 1e6)
	assert.Equal(t, 0, res.Drops)
}

func TestAggregateStaysBelowBottleneck(t *testing.T) {
	sc := &Scenario{Kind: KindBulk, Shape: "dumbbell", Strategy: "TcpCubic", DataRate: "1Mbps",
		Delay: "10ms", NFlows: 3, Stop: 10.0, Report: ReportErrorRate}
	res, err := Run(sc, nil)
	require.NoError(t, err)

	require.Len(t, res.Goodput.Flows, 3)
	assert.LessOrEqual(t, res.Goodput.Aggregate, 1e6)
	for _, fg := range res.Goodput.Flows {
		assert.Greater(t, fg.RxBytes, uint64(0))
	}
	assert.Contains(t, res.Lines[0], "errorRate=0 ")
}

func TestLossNeverHelpsGoodput(t *testing.T) {
	run := func(rate float64) float64 {
		sc := &Scenario{Kind: KindBulk, Shape: "linear", Strategy: "TcpNewReno", DataRate: "1Mbps",
			Delay: "20ms", ErrorRate: rate, Stop: 10.0, Report: ReportFlows}
		res, err := Run(sc, nil)
		require.NoError(t, err)
		require.Len(t, res.Lines, 1)
		assert.True(t, strings.HasPrefix(res.Lines[0], "Flow 0 Goodput = "))
		if rate > 0.0 {
			assert.Greater(t, res.Drops, 0)
		}
		return res.Goodput.Aggregate
	}
	clean := run(0.0)
	lossy := run(0.01)
	assert.GreaterOrEqual(t, clean, lossy)
}

func TestDualRunReportsBothDestinations(t *testing.T) {
	sc, err := Preset("part2")
	require.NoError(t, err)
	sc.Stop = 8.0
	res, err := Run(sc, nil)
	require.NoError(t, err)

	require.Len(t, res.Lines, 1)
	assert.Regexp(t, `^Protocol=ns3::TcpCubic Delay1=10ms Delay2=50ms Goodput1=\S+Mbps Goodput2=\S+Mbps$`, res.Lines[0])
	require.Len(t, res.Goodput.Flows, 2)
	assert.Equal(t, uint16(50001), res.Goodput.Flows[1].Flow.Port)
	assert.LessOrEqual(t, res.Goodput.Aggregate, 2e6)
}

func TestEchoPresetsDeliverEveryReply(t *testing.T) {
	for _, name := range []string{"first", "second", "third"} {
		t.Run(name, func(t *testing.T) {
			sc, err := Preset(name)
			require.NoError(t, err)
			sc.Packets = 30
			res, err := Run(sc, nil)
			require.NoError(t, err)

			require.NotEmpty(t, res.Lines)
			for _, flow := range res.Flows {
				// the clients of the wireless run stop before all 20 requests are out
				assert.LessOrEqual(t, flow.Packets, 20)
				assert.Greater(t, flow.Client.Sent(), 0)
				assert.LessOrEqual(t, flow.Client.Sent(), flow.Packets)
				assert.Equal(t, flow.Client.Sent(), flow.Client.Received())
			}
		})
	}
}

func TestEchoPacketCountsAreClamped(t *testing.T) {
	cases := []struct {
		asked    int
		expected int
	}{
		{9, 5},
		{-3, 1},
		{0, 1},
		{4, 4},
	}
	for _, tc := range cases {
		sc, err := Preset("first")
		require.NoError(t, err)
		sc.Packets = tc.asked
		res, err := Run(sc, nil)
		require.NoError(t, err, "packets=%d", tc.asked)
		require.Len(t, res.Flows, 1)
		assert.Equal(t, tc.expected, res.Flows[0].Packets, "packets=%d", tc.asked)
		assert.Equal(t, tc.expected, res.Flows[0].Client.Sent(), "packets=%d", tc.asked)
	}
}

func TestTcpSettingsReachTheSockets(t *testing.T) {
	cfg := netsim.DefaultTcpConfig()
	cfg.SegmentSize = 1448
	sc := &Scenario{Kind: KindBulk, Shape: "dumbbell", DataRate: "1Mbps", Delay: "5ms", Stop: 3.0, Tcp: &cfg}
	res, err := Run(sc, nil)
	require.NoError(t, err)
	assert.Greater(t, res.Goodput.Aggregate, 0.0)
	assert.Equal(t, uint32(1448), res.Topology.Sim().TcpDefaults().SegmentSize)

	cfg.SegmentSize = 0
	_, err = Run(&Scenario{Kind: KindBulk, Stop: 3.0, Tcp: &cfg}, nil)
	assert.Error(t, err)

	_, err = Run(&Scenario{Kind: KindBulk, Stop: 3.0, Seed: 1 << 40}, nil)
	assert.ErrorIs(t, err, netsim.ErrBadSeed)
}

func TestTracingWritesFilesForTheRun(t *testing.T) {
	sc, err := Preset("part1a")
	require.NoError(t, err)
	sc.Stop = 5.0
	sc.OutputDir = t.TempDir()
	sc.TopoFile = "topo.json"
	sc.PacketTrace = "packets.yaml"
	res, err := Run(sc, nil)
	require.NoError(t, err)

	require.NotEmpty(t, res.TraceFiles)
	bytes, err := os.ReadFile(res.TraceFiles[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(bytes), "0.0 "))
	assert.Contains(t, res.TraceFiles[0], "lab2-part1-node0-sock0-cwnd.data")

	td, err := ReadTopoDesc(OutputPath(sc.OutputDir, "topo.json"), false, nil)
	require.NoError(t, err)
	assert.Len(t, td.Links, 3)
	_, err = os.Stat(OutputPath(sc.OutputDir, "packets.yaml"))
	assert.NoError(t, err)
}

type countingRecorder struct {
	runs []*Result
}

func (cr *countingRecorder) RecordRun(res *Result) error {
	cr.runs = append(cr.runs, res)
	return nil
}

func TestRunsDoNotShareState(t *testing.T) {
	rec := &countingRecorder{}
	sc := func() *Scenario {
		return &Scenario{Kind: KindBulk, Shape: "dumbbell", Strategy: "TcpHighSpeed", Delay: "5ms",
			ErrorRate: 0.01, Stop: 5.0, Tracing: true, OutputDir: t.TempDir()}
	}
	first, err := Run(sc(), rec)
	require.NoError(t, err)
	second, err := Run(sc(), rec)
	require.NoError(t, err)

	require.Len(t, rec.runs, 2)
	assert.Equal(t, netsim.HighSpeed, first.Strategy)
	assert.Greater(t, first.Drops, 0)
	assert.Equal(t, first.Drops, second.Drops)
	assert.Equal(t, first.Goodput.Aggregate, second.Goodput.Aggregate)
	for _, key := range first.Traces.Keys() {
		assert.Equal(t, first.Traces.Records(key), second.Traces.Records(key), key.String())
	}
	assert.Equal(t, first.Traces.Keys(), second.Traces.Keys())
	assert.NotSame(t, first.Traces, second.Traces)
}
