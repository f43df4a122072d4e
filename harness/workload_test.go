package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judinizz/ns3-network-simulations/netsim"
)

func TestBulkFlowsGetConsecutivePorts(t *testing.T) {
	cfg := DefaultShapeConfig(Dumbbell)
	cfg.Leaves = 3
	topo, addr := buildShape(t, cfg)
	orch := NewOrchestrator(topo, addr)

	flows, err := orch.AddBulkFlows(topo.Source(), topo.Destinations(), DefaultBulkParams(20.0))
	require.NoError(t, err)
	require.Len(t, flows, 3)
	for idx, flow := range flows {
		assert.Equal(t, uint16(50000+idx), flow.Port)
		assert.Equal(t, 19.0, flow.ActiveDuration())
		assert.Equal(t, topo.Destinations()[idx], flow.Dst)
		assert.Equal(t, uint32(400), flow.SendSize)
	}
	assert.Len(t, orch.FlowsOfKind(FlowBulk), 3)
	assert.Empty(t, orch.FlowsOfKind(FlowEcho))
}

func TestStopBeforeStartIsRejected(t *testing.T) {
	topo, addr := buildShape(t, DefaultShapeConfig(Dumbbell))
	orch := NewOrchestrator(topo, addr)

	bp := DefaultBulkParams(1.0)
	_, err := orch.AddBulkFlows(topo.Source(), topo.Destinations(), bp)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = orch.AddEchoServer(topo.Destinations()[0], 9, 5.0, 4.0)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	ep := EchoParams{Port: 9, Packets: 1, Interval: 1.0, Size: 64, Start: 3.0, Stop: 3.0}
	_, err = orch.AddEchoClient(topo.Source(), mustPrimary(t, addr, topo.Destinations()[0]), ep)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.Empty(t, orch.Flows())
}

func TestScheduleNeedsRoutes(t *testing.T) {
	sim := netsim.NewSimulator()
	topo, err := BuildTopology(sim, DefaultShapeConfig(Dumbbell))
	require.NoError(t, err)

	orch := NewOrchestrator(topo, nil)
	_, err = orch.AddBulkFlows(topo.Source(), topo.Destinations(), DefaultBulkParams(20.0))
	assert.ErrorIs(t, err, ErrRoutesNotReady)
	assert.ErrorIs(t, orch.Schedule(), ErrRoutesNotReady)
}

func TestUnknownStrategyIsRejected(t *testing.T) {
	topo, addr := buildShape(t, DefaultShapeConfig(Dumbbell))
	orch := NewOrchestrator(topo, addr)

	_, err := orch.SelectStrategy("TcpVegas")
	assert.ErrorIs(t, err, netsim.ErrUnknownStrategy)
	assert.Equal(t, netsim.NewReno, orch.Strategy())

	cs, err := orch.SelectStrategy("ns3::TcpHighSpeed")
	require.NoError(t, err)
	assert.Equal(t, netsim.HighSpeed, cs)
}

func TestStrategyIsAppliedAndLocked(t *testing.T) {
	topo, addr := buildShape(t, DefaultShapeConfig(Dumbbell))
	orch := NewOrchestrator(topo, addr)
	_, err := orch.SelectStrategy("TcpScalable")
	require.NoError(t, err)
	_, err = orch.AddBulkFlows(topo.Source(), topo.Destinations(), DefaultBulkParams(3.0))
	require.NoError(t, err)
	require.NoError(t, orch.Schedule())

	_, err = orch.SelectStrategy("TcpCubic")
	assert.ErrorIs(t, err, ErrStrategyLocked)
	assert.Equal(t, netsim.Scalable, topo.Sim().DefaultStrategy())

	sim := topo.Sim()
	sim.StopAt(3.0)
	require.NoError(t, sim.Run())
	sender := orch.Flows()[0].Sender
	require.NotNil(t, sender.Socket())
	assert.Equal(t, netsim.Scalable, sender.Socket().Strategy())
}

func runEcho(t *testing.T, clients, packets int, lossRate float64) *Orchestrator {
	t.Helper()
	cfg := DefaultShapeConfig(FanOut)
	cfg.Leaves = clients
	topo, addr := buildShape(t, cfg)
	if lossRate > 0.0 {
		for _, link := range topo.Links {
			_, err := InjectErrors(topo, link, lossRate, netsim.PerPacket)
			require.NoError(t, err)
		}
	}

	orch := NewOrchestrator(topo, addr)
	server := topo.Destinations()[0]
	_, err := orch.AddEchoServer(server, 15, 1.0, 20.0)
	require.NoError(t, err)
	ep := EchoParams{Port: 15, Packets: packets, Ceiling: 5, Interval: 1.0, Size: 1024,
		Stop: 20.0, JitterLo: 2.0, JitterHi: 7.0}
	for _, client := range topo.NodesWithRole(RoleSource) {
		_, err := orch.AddEchoClient(client, addr.AddressOf(topo.Links[0], 1), ep)
		require.NoError(t, err)
	}
	require.NoError(t, orch.Schedule())

	sim := topo.Sim()
	sim.StopAt(20.0)
	require.NoError(t, sim.Run())
	return orch
}

func TestEchoRepliesMatchRequestsWithoutLoss(t *testing.T) {
	orch := runEcho(t, 3, 9, 0.0)
	flows := orch.FlowsOfKind(FlowEcho)
	require.Len(t, flows, 3)

	total := 0
	for _, flow := range flows {
		assert.Equal(t, 5, flow.Packets)
		assert.GreaterOrEqual(t, flow.Start, 2.0)
		assert.Less(t, flow.Start, 7.0)
		assert.Equal(t, orch.Servers()[0].Node, flow.Dst)
		assert.Equal(t, 5, flow.Client.Sent())
		assert.Equal(t, 5, flow.Client.Received())
		total += flow.Client.Sent()
	}
	assert.Equal(t, total, orch.Servers()[0].Server.Received())
	assert.Len(t, EchoLines(orch.Flows()), 3)
}

func TestEchoRepliesNeverExceedRequestsWithLoss(t *testing.T) {
	orch := runEcho(t, 5, 5, 0.3)
	for _, flow := range orch.FlowsOfKind(FlowEcho) {
		assert.Equal(t, 5, flow.Client.Sent())
		assert.LessOrEqual(t, flow.Client.Received(), flow.Client.Sent())
	}
}
