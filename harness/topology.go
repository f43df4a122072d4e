package harness

// topology.go builds the node and link graph of one experiment.  Every shape
// creates its nodes and links in a fixed order, and the order links are
// created in is the order AssignAddresses hands out subnets.

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
	"github.com/judinizz/ns3-network-simulations/netsim"
)

// ErrUnknownShape is returned for a shape name BuildTopology does not know
var ErrUnknownShape = errors.New("unknown topology shape")

// Role is the base type for the part a node plays in a topology
type Role int

const (
	RoleSource Role = iota
	RoleRouter
	RoleDestination
	RoleAccessPoint
	RoleStation
)

// String returns the role's name
func (role Role) String() string {
	switch role {
	case RoleSource:
		return "source"
	case RoleRouter:
		return "router"
	case RoleDestination:
		return "destination"
	case RoleAccessPoint:
		return "access-point"
	case RoleStation:
		return "station"
	}
	return "unknown"
}

// Shape is the base type for the topology families BuildTopology can create
type Shape int

const (
	// LinearChain is src, r1 .. rK, dst with the bottleneck between r1 and r2
	LinearChain Shape = iota

	// Dumbbell is one source, two routers and N destination leaves behind the second router
	Dumbbell

	// FanOut is N clients each with its own point-to-point link to one server
	FanOut

	// DualAccess is two access points joined point-to-point, each serving N stations
	DualAccess

	// DualDestination is a source, two routers and two destinations with their own access delays
	DualDestination

	// CsmaChain is a point-to-point hop into a shared segment of N hosts followed by a point-to-point tail
	CsmaChain
	UnknownShape
)

// ShapeFromStr returns the Shape named by the string, UnknownShape if none
func ShapeFromStr(shape string) Shape {
	switch shape {
	case "linear", "LinearChain", "chain":
		return LinearChain
	case "dumbbell", "Dumbbell":
		return Dumbbell
	case "fanout", "FanOut":
		return FanOut
	case "dual-access", "DualAccess", "wifi":
		return DualAccess
	case "dual-destination", "DualDestination":
		return DualDestination
	case "csma", "CsmaChain":
		return CsmaChain
	}
	return UnknownShape
}

// String returns the name ShapeFromStr accepts first
func (shape Shape) String() string {
	switch shape {
	case LinearChain:
		return "linear"
	case Dumbbell:
		return "dumbbell"
	case FanOut:
		return "fanout"
	case DualAccess:
		return "dual-access"
	case DualDestination:
		return "dual-destination"
	case CsmaChain:
		return "csma"
	}
	return "unknown"
}

// leaf ceilings; counts above them are clamped
const (
	maxDumbbellLeaves = 16
	maxFanOutClients  = 5
	maxStations       = 9
	maxCsmaHosts      = 8
	maxChainRouters   = 8

	// bulk flows of one run, on any shape; flow i listens on BasePort+i
	maxBulkFlows = maxDumbbellLeaves
)

// LeafCeiling is the largest leaf count the shape accepts
func (shape Shape) LeafCeiling() int {
	switch shape {
	case Dumbbell:
		return maxDumbbellLeaves
	case FanOut:
		return maxFanOutClients
	case DualAccess:
		return maxStations
	case CsmaChain:
		return maxCsmaHosts
	}
	return 1
}

// LinkParams gives a link's data rate in bits per second and its propagation delay in seconds
type LinkParams struct {
	Rate  float64
	Delay float64
}

// ShapeConfig selects a shape and its parameters.  Which fields matter depends on the shape.
type ShapeConfig struct {
	Shape Shape

	// Leaves counts destinations (Dumbbell), clients (FanOut), stations per access point
	// (DualAccess) or shared-segment hosts (CsmaChain)
	Leaves int

	// Routers is the length of the router chain of a LinearChain
	Routers int

	Bottleneck LinkParams
	Access     LinkParams

	// Branch holds the two router-to-destination links of DualDestination
	Branch [2]LinkParams
}

// DefaultShapeConfig returns the parameters the experiments use unless told otherwise
func DefaultShapeConfig(shape Shape) ShapeConfig {
	cfg := ShapeConfig{Shape: shape, Leaves: 1, Routers: 2,
		Bottleneck: LinkParams{Rate: 1e6, Delay: 0.02},
		Access:     LinkParams{Rate: 100e6, Delay: 0.00001}}

	switch shape {
	case Dumbbell:
		cfg.Bottleneck.Delay = 0.05
	case FanOut:
		cfg.Access = LinkParams{Rate: 5e6, Delay: 0.002}
	case DualAccess:
		cfg.Leaves = 4
		cfg.Bottleneck = LinkParams{Rate: 5e6, Delay: 0.002}
		cfg.Access = LinkParams{Rate: 54e6, Delay: 0.000001}
	case DualDestination:
		cfg.Bottleneck = LinkParams{Rate: 2e6, Delay: 0.02}
		cfg.Branch = [2]LinkParams{{Rate: 10e6, Delay: 0.01}, {Rate: 10e6, Delay: 0.05}}
	case CsmaChain:
		cfg.Leaves = 4
		cfg.Bottleneck = LinkParams{Rate: 5e6, Delay: 0.002}
		cfg.Access = LinkParams{Rate: 100e6, Delay: 6560e-9}
	}
	return cfg
}

// Normalize clamps the counts into the range the shape supports
func (cfg ShapeConfig) Normalize() ShapeConfig {
	ceiling := cfg.Shape.LeafCeiling()
	if cfg.Leaves > ceiling {
		logger.TopoLog.WithFields(logrus.Fields{"shape": cfg.Shape, "requested": cfg.Leaves,
			"used": ceiling}).Debug("leaf count clamped")
		cfg.Leaves = ceiling
	}
	if cfg.Leaves < 1 {
		cfg.Leaves = 1
	}
	if cfg.Routers > maxChainRouters {
		logger.TopoLog.WithFields(logrus.Fields{"shape": cfg.Shape, "requested": cfg.Routers,
			"used": maxChainRouters}).Debug("router count clamped")
		cfg.Routers = maxChainRouters
	}
	if cfg.Routers < 2 {
		cfg.Routers = 2
	}
	return cfg
}

// TopoNode is a simulator node together with its role
type TopoNode struct {
	ID   int
	Name string
	Role Role
	Node *netsim.Node
}

// Link joins two topology nodes through one simulator channel.  Endpoint A
// receives the first address of the link's subnet.
type Link struct {
	ID         int
	A          *TopoNode
	B          *TopoNode
	Params     LinkParams
	Kind       netsim.DeviceKind
	Bottleneck bool
	Channel    *netsim.Channel
}

// Endpoint returns the node at end 0 (A) or 1 (B)
func (link *Link) Endpoint(idx int) *TopoNode {
	if idx == 0 {
		return link.A
	}
	return link.B
}

// Topology is the built graph.  Nodes are listed in id order and links in creation order.
type Topology struct {
	Config ShapeConfig
	Nodes  []*TopoNode
	Links  []*Link
	sim    *netsim.Simulator
}

// Sim returns the simulator the topology was built in
func (topo *Topology) Sim() *netsim.Simulator {
	return topo.sim
}

// Shape returns the shape that was built
func (topo *Topology) Shape() Shape {
	return topo.Config.Shape
}

// NodesWithRole lists the nodes with the role, in id order
func (topo *Topology) NodesWithRole(role Role) []*TopoNode {
	nodes := []*TopoNode{}
	for _, tn := range topo.Nodes {
		if tn.Role == role {
			nodes = append(nodes, tn)
		}
	}
	return nodes
}

// Source returns the first source node
func (topo *Topology) Source() *TopoNode {
	if srcs := topo.NodesWithRole(RoleSource); len(srcs) > 0 {
		return srcs[0]
	}
	return nil
}

// Destinations lists the destination nodes in id order
func (topo *Topology) Destinations() []*TopoNode {
	return topo.NodesWithRole(RoleDestination)
}

// Bottleneck returns the first link flagged as the bottleneck, nil if the shape has none
func (topo *Topology) Bottleneck() *Link {
	for _, link := range topo.Links {
		if link.Bottleneck {
			return link
		}
	}
	return nil
}

// LinksOf lists the links with the node at either end, in creation order
func (topo *Topology) LinksOf(tn *TopoNode) []*Link {
	links := []*Link{}
	for _, link := range topo.Links {
		if link.A == tn || link.B == tn {
			links = append(links, link)
		}
	}
	return links
}

// topoBuilder carries the partially built topology while a shape is laid out
type topoBuilder struct {
	topo *Topology
	err  error
}

func (tb *topoBuilder) node(name string, role Role) *TopoNode {
	simNode := tb.topo.sim.CreateNode(name)
	tn := &TopoNode{ID: simNode.ID(), Name: name, Role: role, Node: simNode}
	tb.topo.Nodes = append(tb.topo.Nodes, tn)
	return tn
}

func (tb *topoBuilder) link(a, b *TopoNode, kind netsim.DeviceKind, params LinkParams, bottleneck bool) *Link {
	if tb.err != nil {
		return nil
	}
	ch, err := tb.topo.sim.Connect(a.Node, b.Node, kind, params.Rate, params.Delay)
	if err != nil {
		tb.err = fmt.Errorf("link %s-%s: %w", a.Name, b.Name, err)
		return nil
	}
	link := &Link{ID: len(tb.topo.Links), A: a, B: b, Params: params, Kind: kind,
		Bottleneck: bottleneck, Channel: ch}
	tb.topo.Links = append(tb.topo.Links, link)
	return link
}

// BuildTopology creates the nodes and links of the configured shape in sim.
// Counts above the shape's ceiling are clamped rather than rejected.
func BuildTopology(sim *netsim.Simulator, cfg ShapeConfig) (*Topology, error) {
	cfg = cfg.Normalize()
	tb := &topoBuilder{topo: &Topology{Config: cfg, sim: sim}}
	p2p := netsim.PointToPoint

	switch cfg.Shape {
	case LinearChain:
		src := tb.node("src", RoleSource)
		routers := make([]*TopoNode, cfg.Routers)
		for idx := range routers {
			routers[idx] = tb.node(fmt.Sprintf("r%d", idx+1), RoleRouter)
		}
		dst := tb.node("dst", RoleDestination)
		tb.link(src, routers[0], p2p, cfg.Access, false)
		for idx := 1; idx < len(routers); idx++ {
			tb.link(routers[idx-1], routers[idx], p2p, cfg.Bottleneck, idx == 1)
		}
		tb.link(routers[len(routers)-1], dst, p2p, cfg.Access, false)

	case Dumbbell:
		src := tb.node("src", RoleSource)
		r1 := tb.node("r1", RoleRouter)
		r2 := tb.node("r2", RoleRouter)
		dsts := make([]*TopoNode, cfg.Leaves)
		for idx := range dsts {
			dsts[idx] = tb.node(fmt.Sprintf("dst%d", idx), RoleDestination)
		}
		tb.link(src, r1, p2p, cfg.Access, false)
		tb.link(r1, r2, p2p, cfg.Bottleneck, true)
		for _, dst := range dsts {
			tb.link(r2, dst, p2p, cfg.Access, false)
		}

	case FanOut:
		// the server exists before its clients so it gets node id 0
		server := tb.node("server", RoleDestination)
		clients := make([]*TopoNode, cfg.Leaves)
		for idx := range clients {
			clients[idx] = tb.node(fmt.Sprintf("client%d", idx), RoleSource)
		}
		for _, client := range clients {
			tb.link(client, server, p2p, cfg.Access, false)
		}

	case DualAccess:
		ap1 := tb.node("ap1", RoleAccessPoint)
		ap2 := tb.node("ap2", RoleAccessPoint)
		tb.link(ap1, ap2, p2p, cfg.Bottleneck, true)
		for net, ap := range []*TopoNode{ap1, ap2} {
			stations := make([]*TopoNode, cfg.Leaves)
			for idx := range stations {
				stations[idx] = tb.node(fmt.Sprintf("sta%d-%d", net+1, idx), RoleStation)
			}
			for _, sta := range stations {
				tb.link(sta, ap, netsim.WirelessAccess, cfg.Access, false)
			}
		}

	case DualDestination:
		src := tb.node("src", RoleSource)
		r1 := tb.node("r1", RoleRouter)
		r2 := tb.node("r2", RoleRouter)
		d1 := tb.node("dst1", RoleDestination)
		d2 := tb.node("dst2", RoleDestination)
		tb.link(src, r1, p2p, cfg.Bottleneck, false)
		tb.link(r1, r2, p2p, cfg.Bottleneck, true)
		tb.link(r2, d1, p2p, cfg.Branch[0], false)
		tb.link(r2, d2, p2p, cfg.Branch[1], false)

	case CsmaChain:
		n0 := tb.node("n0", RoleSource)
		n1 := tb.node("n1", RoleRouter)
		hosts := make([]*TopoNode, cfg.Leaves)
		for idx := range hosts {
			hosts[idx] = tb.node(fmt.Sprintf("csma%d", idx+1), RoleStation)
		}
		tail := tb.node("tail", RoleDestination)
		tb.link(n0, n1, p2p, cfg.Bottleneck, true)
		for _, host := range hosts {
			tb.link(n1, host, netsim.SharedAccess, cfg.Access, false)
		}
		tb.link(hosts[len(hosts)-1], tail, p2p, cfg.Bottleneck, false)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownShape, cfg.Shape)
	}

	if tb.err != nil {
		return nil, tb.err
	}
	logger.TopoLog.WithFields(logrus.Fields{"shape": cfg.Shape, "nodes": len(tb.topo.Nodes),
		"links": len(tb.topo.Links)}).Debug("topology built")
	return tb.topo, nil
}
