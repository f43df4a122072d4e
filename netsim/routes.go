package netsim

// routes.go computes the static shortest-path forwarding tables of a simulation.
//
// The approach is to convert the node/channel representation into the data
// structures of the gonum graph package, which has the path discovery algorithms
// built in.  Weighting each edge by 1, a shortest path minimizes the number of hops,
// which is what global routing over an uncongested network settles on.
//   A Dijkstra call computes a tree of shortest paths from one node.  For a path from
// src to dst we either compute the tree rooted in src, or reuse a cached tree rooted in
// src, or failing that one rooted in dst whose path is the reverse of what we want.

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// routingState is the per-simulation graph and the cache of shortest-path trees
type routingState struct {
	gNodes    map[int]simple.Node
	connGraph graph.Graph
	cachedSP  map[int]path.Shortest
}

// buildConnGraph returns the graph with one vertex per node and a unit-weight
// edge per channel
func buildConnGraph(sim *Simulator) *routingState {
	rs := &routingState{gNodes: make(map[int]simple.Node), cachedSP: make(map[int]path.Shortest)}
	connGraph := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, node := range sim.nodes {
		rs.gNodes[node.id] = simple.Node(node.id)
		connGraph.AddNode(rs.gNodes[node.id])
	}
	for _, ch := range sim.channels {
		nodeA := ch.devices[0].node.id
		nodeB := ch.devices[1].node.id
		weightedEdge := simple.WeightedEdge{F: rs.gNodes[nodeA], T: rs.gNodes[nodeB], W: 1.0}
		connGraph.SetWeightedEdge(weightedEdge)
	}
	rs.connGraph = connGraph
	return rs
}

// getSPTree returns the shortest path tree rooted in 'from', computing and caching it when needed
func (rs *routingState) getSPTree(from int) path.Shortest {
	spTree, present := rs.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(rs.gNodes[from], rs.connGraph)
	rs.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts the node ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// routeFrom returns the sequence of node ids on a shortest path from srcID to dstID,
// inclusive of both.  It is empty when dstID cannot be reached.
func (rs *routingState) routeFrom(srcID, dstID int) []int {
	if spTree, present := rs.cachedSP[srcID]; present {
		nodeSeq, _ := spTree.To(int64(dstID))
		return convertNodeSeq(nodeSeq)
	}

	// by symmetry a tree rooted in the destination holds the reversed path
	if spTree, present := rs.cachedSP[dstID]; present {
		revNodeSeq, _ := spTree.To(int64(srcID))
		route := convertNodeSeq(revNodeSeq)
		slices.Reverse(route)
		return route
	}

	spTree := rs.getSPTree(srcID)
	nodeSeq, _ := spTree.To(int64(dstID))
	return convertNodeSeq(nodeSeq)
}

// deviceToward returns the device of 'from' whose channel reaches node 'to'
func deviceToward(from *Node, to int) *Device {
	for _, dev := range from.devices {
		if dev.Peer().node.id == to {
			return dev
		}
	}
	return nil
}

// PopulateRoutingTables fills every node's forwarding table with a next-hop
// device for every address assigned anywhere in the network.  A destination on
// a channel the node itself is attached to is always reached over that channel.
func (sim *Simulator) PopulateRoutingTables() error {
	rs := buildConnGraph(sim)
	unaddressed := []string{}
	for _, ch := range sim.channels {
		for _, dev := range ch.devices {
			if !dev.addressed {
				unaddressed = append(unaddressed, dev.String())
			}
		}
	}

	for _, src := range sim.nodes {
		src.routes = make(map[Ipv4Address]*Device)
		for _, dst := range sim.nodes {
			if dst == src {
				continue
			}
			var route []int
			for _, dstDev := range dst.devices {
				if !dstDev.addressed {
					continue
				}
				// directly attached
				if dstDev.Peer().node == src {
					src.routes[dstDev.addr] = dstDev.Peer()
					continue
				}
				if route == nil {
					route = rs.routeFrom(src.id, dst.id)
				}
				if len(route) < 2 {
					continue
				}
				out := deviceToward(src, route[1])
				if out == nil {
					panic(fmt.Errorf("path from node %d to %d leaves over a missing channel", src.id, dst.id))
				}
				src.routes[dstDev.addr] = out
			}
		}
	}
	if len(unaddressed) > 0 {
		return fmt.Errorf("devices without address: %s", strings.Join(unaddressed, ","))
	}
	sim.routing = rs
	return nil
}

// RoutesReady is true once PopulateRoutingTables ran after the last channel was created
func (sim *Simulator) RoutesReady() bool {
	return sim.routing != nil
}

// Route returns the node ids on the path packets from src to dst will follow
func (sim *Simulator) Route(srcID, dstID int) []int {
	if sim.routing == nil {
		return nil
	}
	return sim.routing.routeFrom(srcID, dstID)
}

// ShowPath returns the comma separated names of the nodes on the path from src to dst
func (sim *Simulator) ShowPath(srcID, dstID int) string {
	names := []string{}
	for _, id := range sim.Route(srcID, dstID) {
		names = append(names, sim.nodes[id].name)
	}
	return strings.Join(names, ",")
}
