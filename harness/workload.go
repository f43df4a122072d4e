package harness

// workload.go turns flow descriptions into installed simulator applications.
// Flows are collected first and validated, and only Schedule installs them,
// so a bad flow is reported before anything reaches the event list.

import (
	"errors"
	"fmt"
	"math"

	"github.com/iti/rngstream"
	"github.com/sirupsen/logrus"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
	"github.com/judinizz/ns3-network-simulations/netsim"
)

var (
	// ErrInvalidSchedule is returned for a flow that would stop before it starts
	ErrInvalidSchedule = errors.New("flow stop time is not after its start time")

	// ErrStrategyLocked is returned when the strategy is changed after sockets may exist
	ErrStrategyLocked = errors.New("congestion control strategy is fixed once flows are scheduled")
)

// FlowKind is the base type for the kinds of traffic a flow carries
type FlowKind int

const (
	FlowEcho FlowKind = iota
	FlowBulk
)

func (kind FlowKind) String() string {
	if kind == FlowEcho {
		return "echo"
	}
	return "bulk"
}

// Flow is one traffic instance.  The applications behind it are created by
// Schedule; until then Sink, Sender and Client are nil.
type Flow struct {
	ID      int
	Kind    FlowKind
	Src     *TopoNode
	Dst     *TopoNode
	DstAddr netsim.Ipv4Address
	Port    uint16
	Start   float64
	Stop    float64

	// bulk
	MaxBytes  uint64
	SendSize  uint32
	SinkStart float64
	Sink      *netsim.PacketSink
	Sender    *netsim.BulkSend

	// echo
	Packets  int
	Interval float64
	Size     uint32
	Client   *netsim.EchoClient
}

// ActiveDuration is the length of the flow's configured active window
func (flow *Flow) ActiveDuration() float64 {
	return flow.Stop - flow.Start
}

// Name identifies the flow in logs and reports
func (flow *Flow) Name() string {
	return fmt.Sprintf("%s-flow%d(%s->%s:%d)", flow.Kind, flow.ID, flow.Src.Name, flow.DstAddr, flow.Port)
}

func (flow *Flow) validate() error {
	if flow.Stop <= flow.Start {
		return fmt.Errorf("%w: %s start %g stop %g", ErrInvalidSchedule, flow.Name(), flow.Start, flow.Stop)
	}
	return nil
}

// BulkParams describes a set of bulk flows from one source
type BulkParams struct {
	// BasePort is the sink port of the first destination; destination i listens on BasePort+i
	BasePort  uint16
	Start     float64
	Stop      float64
	SinkStart float64
	MaxBytes  uint64 // 0 means unbounded
	SendSize  uint32
}

// DefaultBulkParams returns the bulk settings the experiments use, ending at stop
func DefaultBulkParams(stop float64) BulkParams {
	return BulkParams{BasePort: 50000, Start: 1.0, Stop: stop, SinkStart: 0.0, SendSize: 400}
}

// EchoParams describes the clients of an echo workload
type EchoParams struct {
	Port     uint16
	Packets  int
	Ceiling  int // packet counts above this are clamped; 0 means no ceiling
	Interval float64
	Size     uint32
	Start    float64
	Stop     float64

	// when JitterHi > JitterLo each client starts at a uniform draw from [JitterLo, JitterHi)
	JitterLo float64
	JitterHi float64
}

// EchoServerSpec is an echo server waiting to be installed
type EchoServerSpec struct {
	Node   *TopoNode
	Port   uint16
	Start  float64
	Stop   float64
	Server *netsim.EchoServer
}

// Orchestrator collects the workloads of one run and installs them
type Orchestrator struct {
	topo      *Topology
	addr      *Addressing
	strategy  netsim.CongestionStrategy
	scheduled bool
	flows     []*Flow
	servers   []*EchoServerSpec
	jitter    *rngstream.RngStream
}

// NewOrchestrator creates an orchestrator for the topology.  addr may be nil;
// Schedule refuses to run until addressing is ready.
func NewOrchestrator(topo *Topology, addr *Addressing) *Orchestrator {
	return &Orchestrator{topo: topo, addr: addr, strategy: netsim.NewReno,
		jitter: topo.sim.NewRngStream("echo-start-jitter")}
}

// SelectStrategy resolves the strategy name.  It is applied to every socket
// once Schedule runs; afterwards it cannot change.
func (orch *Orchestrator) SelectStrategy(name string) (netsim.CongestionStrategy, error) {
	if orch.scheduled {
		return orch.strategy, ErrStrategyLocked
	}
	cs, err := netsim.LookupStrategy(name)
	if err != nil {
		return orch.strategy, err
	}
	orch.strategy = cs
	return cs, nil
}

// Strategy returns the strategy flows will run
func (orch *Orchestrator) Strategy() netsim.CongestionStrategy {
	return orch.strategy
}

// Flows lists every flow added so far, in the order added
func (orch *Orchestrator) Flows() []*Flow {
	return orch.flows
}

// FlowsOfKind lists the flows of one kind
func (orch *Orchestrator) FlowsOfKind(kind FlowKind) []*Flow {
	flows := []*Flow{}
	for _, flow := range orch.flows {
		if flow.Kind == kind {
			flows = append(flows, flow)
		}
	}
	return flows
}

// Servers lists the echo servers added
func (orch *Orchestrator) Servers() []*EchoServerSpec {
	return orch.servers
}

func (orch *Orchestrator) destAddress(dst *TopoNode) (netsim.Ipv4Address, error) {
	if orch.addr == nil {
		return 0, ErrRoutesNotReady
	}
	addr, ok := orch.addr.PrimaryAddress(dst)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no address", ErrRoutesNotReady, dst.Name)
	}
	return addr, nil
}

// AddBulkFlows adds one sink per destination and one bulk sender per
// destination on src.  Destination i gets port BasePort+i.
func (orch *Orchestrator) AddBulkFlows(src *TopoNode, dsts []*TopoNode, bp BulkParams) ([]*Flow, error) {
	if bp.SendSize == 0 {
		return nil, fmt.Errorf("bulk send size must be positive")
	}
	if int(bp.BasePort)+len(dsts)-1 > math.MaxUint16 {
		return nil, fmt.Errorf("%d bulk flows from port %d run past port %d", len(dsts), bp.BasePort,
			math.MaxUint16)
	}
	flows := []*Flow{}
	for idx, dst := range dsts {
		dstAddr, err := orch.destAddress(dst)
		if err != nil {
			return nil, err
		}
		flow := &Flow{ID: len(orch.flows) + len(flows), Kind: FlowBulk, Src: src, Dst: dst,
			DstAddr: dstAddr, Port: bp.BasePort + uint16(idx), Start: bp.Start, Stop: bp.Stop,
			MaxBytes: bp.MaxBytes, SendSize: bp.SendSize, SinkStart: bp.SinkStart}
		if err := flow.validate(); err != nil {
			return nil, err
		}
		if bp.Stop <= bp.SinkStart {
			return nil, fmt.Errorf("%w: sink of %s", ErrInvalidSchedule, flow.Name())
		}
		flows = append(flows, flow)
	}
	orch.flows = append(orch.flows, flows...)
	return flows, nil
}

// AddEchoServer adds a server answering on port between start and stop
func (orch *Orchestrator) AddEchoServer(tn *TopoNode, port uint16, start, stop float64) (*EchoServerSpec, error) {
	if stop <= start {
		return nil, fmt.Errorf("%w: echo server on %s start %g stop %g", ErrInvalidSchedule, tn.Name, start, stop)
	}
	srv := &EchoServerSpec{Node: tn, Port: port, Start: start, Stop: stop}
	orch.servers = append(orch.servers, srv)
	return srv, nil
}

// AddEchoClient adds a client on tn sending to serverAddr.  With a jitter
// window the start time is drawn when the client is added.
func (orch *Orchestrator) AddEchoClient(tn *TopoNode, serverAddr netsim.Ipv4Address, ep EchoParams) (*Flow, error) {
	packets := ep.Packets
	if ep.Ceiling > 0 && packets > ep.Ceiling {
		logger.WorkLog.WithFields(logrus.Fields{"requested": packets, "used": ep.Ceiling}).
			Debug("echo packet count clamped")
		packets = ep.Ceiling
	}
	if packets < 1 {
		packets = 1
	}
	start := ep.Start
	if ep.JitterHi > ep.JitterLo {
		start = ep.JitterLo + (ep.JitterHi-ep.JitterLo)*orch.jitter.RandU01()
	}
	flow := &Flow{ID: len(orch.flows), Kind: FlowEcho, Src: tn, DstAddr: serverAddr,
		Port: ep.Port, Start: start, Stop: ep.Stop, Packets: packets, Interval: ep.Interval, Size: ep.Size}
	if orch.addr != nil {
		flow.Dst = orch.addr.OwnerOf(serverAddr)
	}
	if err := flow.validate(); err != nil {
		return nil, err
	}
	orch.flows = append(orch.flows, flow)
	return flow, nil
}

// Schedule applies the strategy and installs every server and flow.  It fails
// with ErrRoutesNotReady unless addressing completed and every flow's source
// has a route to its destination.
func (orch *Orchestrator) Schedule() error {
	if orch.scheduled {
		return fmt.Errorf("workload already scheduled")
	}
	if !orch.addr.Ready() {
		return ErrRoutesNotReady
	}
	errs := []error{}
	for _, flow := range orch.flows {
		errs = append(errs, flow.validate(), orch.addr.CheckReachable(flow.Src, flow.DstAddr))
	}
	if err := ReportErrs(errs); err != nil {
		return err
	}

	// sockets copy the default when created, so it is set before any can exist
	sim := orch.topo.sim
	sim.SetDefaultStrategy(orch.strategy)
	orch.scheduled = true

	for _, srv := range orch.servers {
		srv.Server = netsim.NewEchoServer(srv.Node.Node, srv.Port)
		if err := netsim.InstallApp(srv.Server, srv.Start, srv.Stop); err != nil {
			return err
		}
	}
	for _, flow := range orch.flows {
		if err := orch.install(flow); err != nil {
			return err
		}
		logger.WorkLog.WithFields(logrus.Fields{"flow": flow.Name(), "start": flow.Start,
			"stop": flow.Stop, "strategy": orch.strategy.String()}).Debug("flow scheduled")
	}
	return nil
}

func (orch *Orchestrator) install(flow *Flow) error {
	switch flow.Kind {
	case FlowBulk:
		flow.Sink = netsim.NewPacketSink(flow.Dst.Node, flow.Port)
		if err := netsim.InstallApp(flow.Sink, flow.SinkStart, flow.Stop); err != nil {
			return err
		}
		flow.Sender = netsim.NewBulkSend(flow.Src.Node, flow.DstAddr, flow.Port, flow.MaxBytes, flow.SendSize)
		return netsim.InstallApp(flow.Sender, flow.Start, flow.Stop)
	case FlowEcho:
		flow.Client = netsim.NewEchoClient(flow.Src.Node, flow.DstAddr, flow.Port, flow.Packets,
			flow.Interval, flow.Size)
		return netsim.InstallApp(flow.Client, flow.Start, flow.Stop)
	}
	return fmt.Errorf("flow %d has unknown kind %d", flow.ID, flow.Kind)
}
