package harness

//go:generate mockgen -destination "mock_harness_test.go" -package $GOPACKAGE -write_package_comment=false github.com/judinizz/ns3-network-simulations/harness Clock,WindowSource

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/judinizz/ns3-network-simulations/netsim"
)

func TestParseNodeID(t *testing.T) {
	id, err := ParseNodeID("/NodeList/3/$ns3::TcpL4Protocol/SocketList/0/CongestionWindow")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	id, err = ParseNodeID("/NodeList/12")
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	for _, bad := range []string{"", "/", "/NodeList", "/NodeList/x/SocketList", "/NodeList//"} {
		_, err := ParseNodeID(bad)
		assert.ErrorIs(t, err, ErrBadTracePath, bad)
	}
}

func TestConnectPathValidatesPattern(t *testing.T) {
	tr := NewTracer(netsim.NewSimulator(), NewTraceContext())
	assert.NoError(t, tr.ConnectPath(CwndPath("*", "*")))
	assert.NoError(t, tr.ConnectPath(CwndPath("0", "1")))
	assert.ErrorIs(t, tr.ConnectPath("/NodeList/0/CongestionWindow"), ErrBadTracePath)
	assert.ErrorIs(t, tr.ConnectPath(CwndPath("-1", "*")), ErrBadTracePath)
}

func TestFirstNotificationRecordsWindowBeforeTracing(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)
	src := NewMockWindowSource(ctrl)

	var notify func(old, new uint32)
	src.EXPECT().NodeID().Return(0).AnyTimes()
	src.EXPECT().SocketID().Return(2).AnyTimes()
	src.EXPECT().ContextPath().Return(CwndPath("0", "2")).AnyTimes()
	src.EXPECT().SubscribeCwnd(gomock.Any()).Do(func(fn func(uint32, uint32)) {
		notify = fn
	}).Times(1)

	gomock.InOrder(
		clock.EXPECT().Now().Return(1.5),
		clock.EXPECT().Now().Return(1.5),
		clock.EXPECT().Now().Return(2.25),
	)

	ctx := NewTraceContext()
	tr := NewTracer(clock, ctx)
	key := tr.Attach(src)
	assert.Equal(t, TraceKey{NodeID: 0, SocketID: 2}, key)
	assert.Equal(t, key, tr.Attach(src), "second attach is a no-op")
	require.NotNil(t, notify)

	notify(5360, 5896)
	notify(5896, 6432)
	notify(6432, 3216)

	recs := ctx.Records(key)
	require.Len(t, recs, 4)
	assert.Equal(t, TraceRecord{Time: 0.0, Window: 5360}, recs[0])
	assert.Equal(t, TraceRecord{Time: 1.5, Window: 5896}, recs[1])
	assert.Equal(t, TraceRecord{Time: 2.25, Window: 3216}, recs[3])
	for idx := 1; idx < len(recs); idx++ {
		assert.GreaterOrEqual(t, recs[idx].Time, recs[idx-1].Time)
	}
}

func TestTraceFilesStartAtZero(t *testing.T) {
	ctx := NewTraceContext()
	ctx.Record(TraceKey{NodeID: 1, SocketID: 0}, 1.25, 100, 200)
	ctx.Record(TraceKey{NodeID: 0, SocketID: 0}, 2.0, 300, 400)
	ctx.Record(TraceKey{NodeID: 0, SocketID: 0}, 2.5, 400, 500)

	dir := t.TempDir()
	files, err := ctx.WriteFiles(dir, "lab")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "lab-node0-sock0-cwnd.data"), files[0])

	bytes, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "0.0 300\n2.0 400\n2.5 500\n", string(bytes))
}

func TestRecordRejectsTimeGoingBackwards(t *testing.T) {
	ctx := NewTraceContext()
	key := TraceKey{}
	ctx.Record(key, 3.0, 1, 2)
	assert.Panics(t, func() { ctx.Record(key, 2.0, 2, 3) })
}

func TestDeferredStartCanBeCancelled(t *testing.T) {
	sim := netsim.NewSimulator()
	tr := NewTracer(sim, NewTraceContext())
	tr.StartAt(sim, 1.0)
	assert.True(t, tr.Cancel())
	assert.False(t, tr.Cancel())

	sim.StopAt(2.0)
	require.NoError(t, sim.Run())
	assert.False(t, tr.Started())
}

func TestTracerFollowsSocketsCreatedAfterStart(t *testing.T) {
	topo, addr := buildShape(t, DefaultShapeConfig(Dumbbell))
	sim := topo.Sim()
	orch := NewOrchestrator(topo, addr)
	_, err := orch.AddBulkFlows(topo.Source(), topo.Destinations(), DefaultBulkParams(6.0))
	require.NoError(t, err)
	require.NoError(t, orch.Schedule())

	tr := NewTracer(sim, NewTraceContext())
	require.NoError(t, tr.ConnectPath(CwndPath(strconv.Itoa(topo.Source().Node.ID()), "*")))
	// before the sender's socket exists
	tr.StartAt(sim, 0.5)
	sim.StopAt(6.0)
	require.NoError(t, sim.Run())

	assert.True(t, tr.Started())
	keys := tr.Context().Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, topo.Source().Node.ID(), keys[0].NodeID)

	recs := tr.Context().Records(keys[0])
	require.Greater(t, len(recs), 2)
	assert.Equal(t, 0.0, recs[0].Time)
	assert.Greater(t, recs[1].Time, 1.0)
	assert.Empty(t, tr.Mismatched())
}

func TestAttachFlagsContextPathOfAnotherNode(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockWindowSource(ctrl)
	src.EXPECT().NodeID().Return(4).AnyTimes()
	src.EXPECT().SocketID().Return(0).AnyTimes()
	src.EXPECT().ContextPath().Return(CwndPath("3", "0")).Times(1)
	src.EXPECT().SubscribeCwnd(gomock.Any()).Times(1)

	tr := NewTracer(NewMockClock(ctrl), NewTraceContext())
	key := tr.Attach(src)
	assert.Equal(t, []TraceKey{key}, tr.Mismatched())
}
