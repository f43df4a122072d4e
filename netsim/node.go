package netsim

import (
	"errors"
	"fmt"
)

// ErrNoRoute is raised when a packet is sent toward an address no route covers
var ErrNoRoute = errors.New("no route to destination")

// Node is a host or router.  Every node runs the UDP and TCP layers; whether it
// forwards depends only on the destination of the packets it receives.
type Node struct {
	sim     *Simulator
	id      int
	name    string
	devices []*Device
	routes  map[Ipv4Address]*Device
	udp     *UdpL4
	tcp     *TcpL4
	apps    []Application

	forwarded int
	ttlDrops  int
}

// CreateNode adds a node to the simulation.  Ids count from zero in creation order.
func (sim *Simulator) CreateNode(name string) *Node {
	node := &Node{sim: sim, id: sim.nodeID, name: name}
	sim.nodeID++
	if node.name == "" {
		node.name = fmt.Sprintf("node%d", node.id)
	}
	node.routes = make(map[Ipv4Address]*Device)
	node.udp = createUdpL4(node)
	node.tcp = createTcpL4(node)
	sim.nodes = append(sim.nodes, node)
	sim.trace.AddName(node.id, node.name, "node")
	return node
}

// Nodes lists all nodes in creation order
func (sim *Simulator) Nodes() []*Node {
	return sim.nodes
}

// NodeByID returns the node with the given id, or nil
func (sim *Simulator) NodeByID(id int) *Node {
	if id < 0 || id >= len(sim.nodes) {
		return nil
	}
	return sim.nodes[id]
}

// ID returns the node id
func (node *Node) ID() int {
	return node.id
}

// Name returns the node's name
func (node *Node) Name() string {
	return node.name
}

// Devices lists the node's interfaces in creation order
func (node *Node) Devices() []*Device {
	return node.devices
}

// Addresses lists the addresses of every addressed interface
func (node *Node) Addresses() []Ipv4Address {
	addrs := make([]Ipv4Address, 0, len(node.devices))
	for _, dev := range node.devices {
		if dev.addressed {
			addrs = append(addrs, dev.addr)
		}
	}
	return addrs
}

// Udp returns the node's UDP layer
func (node *Node) Udp() *UdpL4 {
	return node.udp
}

// Tcp returns the node's TCP layer
func (node *Node) Tcp() *TcpL4 {
	return node.tcp
}

// Simulator returns the simulation the node belongs to
func (node *Node) Simulator() *Simulator {
	return node.sim
}

// Forwarded counts packets this node relayed for others
func (node *Node) Forwarded() int {
	return node.forwarded
}

func (node *Node) addDevice(kind DeviceKind, rate float64, ch *Channel) *Device {
	dev := &Device{node: node, index: len(node.devices), kind: kind, channel: ch,
		bndwdth: rate, queueLimit: DefaultQueueSize}
	node.devices = append(node.devices, dev)
	return dev
}

func (node *Node) owns(addr Ipv4Address) bool {
	for _, dev := range node.devices {
		if dev.addressed && dev.addr == addr {
			return true
		}
	}
	return false
}

// HasRoute reports whether packets for the address can leave this node
func (node *Node) HasRoute(addr Ipv4Address) bool {
	if node.owns(addr) {
		return true
	}
	_, present := node.routes[addr]
	return present
}

// SourceAddressFor picks the address of the interface a packet toward dst leaves from
func (node *Node) SourceAddressFor(dst Ipv4Address) (Ipv4Address, error) {
	if node.owns(dst) {
		return dst, nil
	}
	dev, present := node.routes[dst]
	if !present {
		return 0, fmt.Errorf("%w: %s from node %d", ErrNoRoute, dst, node.id)
	}
	return dev.addr, nil
}

// send hands a packet to the interface on the route toward its destination
func (node *Node) send(pckt *Packet) error {
	if pckt.ID == 0 {
		pckt.ID = node.sim.nxtPacketID()
	}
	if pckt.TTL == 0 {
		pckt.TTL = defaultTTL
	}
	if node.owns(pckt.Dst) {
		// loopback; delivered at the current time after the present callback
		node.sim.ScheduleIn(0.0, loopback, node, pckt)
		return nil
	}
	dev, present := node.routes[pckt.Dst]
	if !present {
		return fmt.Errorf("%w: %s from node %d", ErrNoRoute, pckt.Dst, node.id)
	}
	dev.enqueue(pckt)
	return nil
}

func loopback(sim *Simulator, context any, data any) {
	node := context.(*Node)
	node.deliver(data.(*Packet))
}

// receive is called by an interface for every packet that survived the trip
func (node *Node) receive(dev *Device, pckt *Packet) {
	if node.owns(pckt.Dst) {
		node.deliver(pckt)
		return
	}
	pckt.TTL--
	if pckt.TTL <= 0 {
		node.ttlDrops++
		return
	}
	out, present := node.routes[pckt.Dst]
	if !present {
		node.sim.Fail(fmt.Errorf("%w: %s at router node %d", ErrNoRoute, pckt.Dst, node.id))
		return
	}
	node.forwarded++
	out.enqueue(pckt)
}

func (node *Node) deliver(pckt *Packet) {
	switch pckt.Proto {
	case ProtoUDP:
		node.udp.receive(pckt)
	case ProtoTCP:
		node.tcp.receive(pckt)
	}
}
