package netsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain connects n nodes in a line with point-to-point channels and
// addresses and routes them
func buildChain(t *testing.T, n int, rate, delay float64) (*Simulator, []*Node, []*Channel) {
	t.Helper()
	sim := NewSimulator()
	nodes := make([]*Node, n)
	for idx := range nodes {
		nodes[idx] = sim.CreateNode("")
	}
	var ah AddressHelper
	require.NoError(t, ah.SetBase("10.1.1.0", "255.255.255.0"))
	chans := []*Channel{}
	for idx := 1; idx < n; idx++ {
		ch, err := sim.Connect(nodes[idx-1], nodes[idx], PointToPoint, rate, delay)
		require.NoError(t, err)
		_, err = ah.Assign(ch)
		require.NoError(t, err)
		require.NoError(t, ah.NewNetwork())
		chans = append(chans, ch)
	}
	require.NoError(t, sim.PopulateRoutingTables())
	return sim, nodes, chans
}

func addrOf(t *testing.T, dev *Device) Ipv4Address {
	t.Helper()
	addr, ok := dev.Address()
	require.True(t, ok)
	return addr
}

func TestRoutingFollowsShortestPath(t *testing.T) {
	sim, nodes, chans := buildChain(t, 4, 1e6, 0.001)

	assert.Equal(t, []int{0, 1, 2, 3}, sim.Route(0, 3))
	assert.Equal(t, []int{3, 2, 1, 0}, sim.Route(3, 0))
	assert.Equal(t, "node0,node1,node2,node3", sim.ShowPath(0, 3))

	far := addrOf(t, chans[2].Devices()[1])
	assert.True(t, nodes[0].HasRoute(far))
	src, err := nodes[0].SourceAddressFor(far)
	require.NoError(t, err)
	assert.Equal(t, addrOf(t, chans[0].Devices()[0]), src)
}

func TestRoutingNeedsAddresses(t *testing.T) {
	sim := NewSimulator()
	a := sim.CreateNode("a")
	b := sim.CreateNode("b")
	_, err := sim.Connect(a, b, PointToPoint, 1e6, 0.001)
	require.NoError(t, err)

	assert.Error(t, sim.PopulateRoutingTables())
	assert.False(t, sim.RoutesReady())
}

func TestConnectRejectsBadChannels(t *testing.T) {
	sim := NewSimulator()
	a := sim.CreateNode("a")
	b := sim.CreateNode("b")

	_, err := sim.Connect(a, a, PointToPoint, 1e6, 0.001)
	assert.Error(t, err)
	_, err = sim.Connect(a, b, PointToPoint, 0, 0.001)
	assert.Error(t, err)
	_, err = sim.Connect(a, b, PointToPoint, 1e6, -1)
	assert.Error(t, err)
}

func TestUdpDatagramArrivesAfterSerializationAndPropagation(t *testing.T) {
	sim, nodes, chans := buildChain(t, 2, 5e6, 0.002)
	dst := addrOf(t, chans[0].Devices()[1])

	var arrival float64
	_, err := nodes[1].Udp().Bind(15, func(sock *UdpSocket, pckt *Packet) {
		arrival = sim.Now()
	})
	require.NoError(t, err)
	sender, err := nodes[0].Udp().Bind(0, nil)
	require.NoError(t, err)

	sim.ScheduleAt(1.0, func(sim *Simulator, context any, data any) {
		require.NoError(t, sender.SendTo(dst, 15, 1024))
	}, nil, nil)
	sim.StopAt(2.0)
	require.NoError(t, sim.Run())

	frameBits := float64(1024+udpHeaderSize+ipv4HeaderSize+pppHeaderSize) * 8.0
	assert.InDelta(t, 1.0+frameBits/5e6+0.002, arrival, 1e-9)
}

func TestDropTailQueueDiscardsOverflow(t *testing.T) {
	sim, nodes, chans := buildChain(t, 2, 1e6, 0.001)
	chans[0].Devices()[0].SetQueueSize(1)
	dst := addrOf(t, chans[0].Devices()[1])

	received := 0
	_, err := nodes[1].Udp().Bind(9, func(sock *UdpSocket, pckt *Packet) { received++ })
	require.NoError(t, err)
	sender, err := nodes[0].Udp().Bind(0, nil)
	require.NoError(t, err)

	sim.ScheduleAt(0.5, func(sim *Simulator, context any, data any) {
		for idx := 0; idx < 5; idx++ {
			require.NoError(t, sender.SendTo(dst, 9, 500))
		}
	}, nil, nil)
	sim.StopAt(2.0)
	require.NoError(t, sim.Run())

	// one on the wire, one waiting, three dropped
	assert.Equal(t, 2, received)
	assert.Equal(t, 3, chans[0].Devices()[0].Stats().QueueDrops)
}

func TestRateErrorModelValidatesRate(t *testing.T) {
	sim := NewSimulator()
	for _, bad := range []float64{-0.1, 1.0, 1.5} {
		_, err := NewRateErrorModel(bad, PerPacket, sim.NewRngStream("bad"))
		assert.ErrorIs(t, err, ErrBadProbability)
	}
	em, err := NewRateErrorModel(0.0, PerPacket, sim.NewRngStream("zero"))
	require.NoError(t, err)
	pckt := &Packet{Proto: ProtoUDP, Payload: 100}
	for idx := 0; idx < 1000; idx++ {
		assert.False(t, em.IsCorrupt(pckt))
	}
	assert.Equal(t, 1000, em.Offered())
	assert.Zero(t, em.Drops())
}

func TestRateErrorModelDropsRoughlyAtRate(t *testing.T) {
	sim := NewSimulator()
	em, err := NewRateErrorModel(0.3, PerPacket, sim.NewRngStream("thirty"))
	require.NoError(t, err)
	pckt := &Packet{Proto: ProtoUDP, Payload: 100}
	for idx := 0; idx < 10000; idx++ {
		em.IsCorrupt(pckt)
	}
	assert.InDelta(t, 3000, em.Drops(), 300)
}

func TestErrorModelOnReceiverDropsEverythingNearOne(t *testing.T) {
	sim, nodes, chans := buildChain(t, 2, 1e6, 0.001)
	em, err := NewRateErrorModel(0.999999, PerPacket, sim.NewRngStream("lossy"))
	require.NoError(t, err)
	chans[0].Devices()[1].SetReceiveErrorModel(em)
	dst := addrOf(t, chans[0].Devices()[1])

	received := 0
	_, err = nodes[1].Udp().Bind(9, func(sock *UdpSocket, pckt *Packet) { received++ })
	require.NoError(t, err)
	sender, err := nodes[0].Udp().Bind(0, nil)
	require.NoError(t, err)
	sim.ScheduleAt(0.1, func(sim *Simulator, context any, data any) {
		require.NoError(t, sender.SendTo(dst, 9, 100))
	}, nil, nil)
	sim.StopAt(1.0)
	require.NoError(t, sim.Run())

	assert.Zero(t, received)
	assert.Equal(t, 1, chans[0].Devices()[1].Stats().ErrorDrops)
}

func TestUdpBindRejectsDuplicatePort(t *testing.T) {
	sim := NewSimulator()
	node := sim.CreateNode("")
	_, err := node.Udp().Bind(15, nil)
	require.NoError(t, err)
	_, err = node.Udp().Bind(15, nil)
	assert.ErrorIs(t, err, ErrPortInUse)
}

func TestPacketTraceRecordsDeviceEvents(t *testing.T) {
	sim := NewSimulator()
	sim.SetPacketTrace(CreateTraceManager("trace", true))
	a := sim.CreateNode("a")
	b := sim.CreateNode("b")
	ch, err := sim.Connect(a, b, PointToPoint, 1e6, 0.001)
	require.NoError(t, err)
	var ah AddressHelper
	require.NoError(t, ah.SetBase("10.1.1.0", "255.255.255.0"))
	addrs, err := ah.Assign(ch)
	require.NoError(t, err)
	require.NoError(t, sim.PopulateRoutingTables())

	sender, err := a.Udp().Bind(0, nil)
	require.NoError(t, err)
	sim.ScheduleAt(0.1, func(sim *Simulator, context any, data any) {
		require.NoError(t, sender.SendTo(addrs[1], 9, 10))
	}, nil, nil)
	sim.StopAt(1.0)
	require.NoError(t, sim.Run())

	tm := sim.PacketTrace()
	require.Len(t, tm.Traces[a.ID()], 1)
	assert.Equal(t, "tx", tm.Traces[a.ID()][0].Op)
	require.Len(t, tm.Traces[b.ID()], 1)
	assert.Equal(t, "rx", tm.Traces[b.ID()][0].Op)
	assert.Equal(t, "a", tm.NameByID[a.ID()].Name)

	filename := t.TempDir() + "/packets.json"
	require.NoError(t, tm.WriteToFile(filename))
	assert.FileExists(t, filename)
	assert.Error(t, tm.WriteToFile(t.TempDir()+"/packets.txt"))
}
