package netsim

// device.go holds the network interfaces and the channels joining them.
// A packet handed to a device waits in a FIFO drop-tail queue, is serialized
// at the device's data rate, crosses the channel after its propagation delay
// and is offered to the receive error model of the peer before the peer's node
// sees it.

import (
	"fmt"
)

// DeviceKind is the base type for the enumerated kinds of network device
type DeviceKind int

const (
	PointToPoint DeviceKind = iota
	SharedAccess
	WirelessAccess
	UnknownKind
)

// DeviceKindFromStr returns the DeviceKind named by the string
func DeviceKindFromStr(kind string) DeviceKind {
	switch kind {
	case "PointToPoint", "pointtopoint", "p2p":
		return PointToPoint
	case "SharedAccess", "sharedaccess", "csma":
		return SharedAccess
	case "WirelessAccess", "wirelessaccess", "wifi":
		return WirelessAccess
	default:
		return UnknownKind
	}
}

// String returns the name DeviceKindFromStr accepts
func (kind DeviceKind) String() string {
	switch kind {
	case PointToPoint:
		return "PointToPoint"
	case SharedAccess:
		return "SharedAccess"
	case WirelessAccess:
		return "WirelessAccess"
	}
	return "Unknown"
}

// DefaultQueueSize is the capacity, in packets, of a device transmit queue
const DefaultQueueSize = 100

// DeviceStats counts what happened at a device over a run
type DeviceStats struct {
	TxPackets  int
	RxPackets  int
	QueueDrops int
	ErrorDrops int
	TxBytes    uint64
}

// Device is a network interface of a node
type Device struct {
	node    *Node
	index   int
	kind    DeviceKind
	channel *Channel

	bndwdth    float64 // bits per second
	addr       Ipv4Address
	mask       Ipv4Mask
	addressed  bool
	queue      []*Packet
	queueLimit int
	busy       bool
	rxErr      ErrorModel
	stats      DeviceStats
}

// Node returns the node holding the device
func (dev *Device) Node() *Node {
	return dev.node
}

// Index is the position of the device in its node's device list
func (dev *Device) Index() int {
	return dev.index
}

// Kind returns the device's tag
func (dev *Device) Kind() DeviceKind {
	return dev.kind
}

// Channel returns the channel the device is attached to
func (dev *Device) Channel() *Channel {
	return dev.channel
}

// DataRate is the serialization rate in bits per second
func (dev *Device) DataRate() float64 {
	return dev.bndwdth
}

// Address returns the IPv4 address given to the device, and whether one was given
func (dev *Device) Address() (Ipv4Address, bool) {
	return dev.addr, dev.addressed
}

// Subnet returns the network the device's address belongs to
func (dev *Device) Subnet() Subnet {
	return Subnet{Network: dev.addr.CombineMask(dev.mask), Mask: dev.mask}
}

// SetAddress gives the device an IPv4 address
func (dev *Device) SetAddress(addr Ipv4Address, mask Ipv4Mask) {
	dev.addr = addr
	dev.mask = mask
	dev.addressed = true
}

// SetQueueSize changes the transmit queue capacity, in packets
func (dev *Device) SetQueueSize(packets int) {
	if packets < 1 {
		packets = 1
	}
	dev.queueLimit = packets
}

// SetReceiveErrorModel attaches a model that may discard packets on arrival.
// Passing nil removes the model.
func (dev *Device) SetReceiveErrorModel(em ErrorModel) {
	dev.rxErr = em
}

// ReceiveErrorModel returns the attached model, nil when there is none
func (dev *Device) ReceiveErrorModel() ErrorModel {
	return dev.rxErr
}

// Stats returns a copy of the device counters
func (dev *Device) Stats() DeviceStats {
	return dev.stats
}

// QueueLen is the number of packets waiting behind the one being transmitted
func (dev *Device) QueueLen() int {
	return len(dev.queue)
}

// Peer returns the device at the other end of the channel
func (dev *Device) Peer() *Device {
	return dev.channel.peer(dev)
}

func (dev *Device) String() string {
	return fmt.Sprintf("node%d/dev%d(%s)", dev.node.id, dev.index, dev.kind)
}

// enqueue offers a packet for transmission.  It returns false when the queue was full
// and the packet was dropped.
func (dev *Device) enqueue(pckt *Packet) bool {
	sim := dev.node.sim
	if !dev.busy {
		dev.startTransmit(pckt)
		return true
	}
	if len(dev.queue) >= dev.queueLimit {
		dev.stats.QueueDrops++
		sim.trace.AddPacketEvent(sim.now, dev, pckt, "drop-queue")
		return false
	}
	dev.queue = append(dev.queue, pckt)
	sim.trace.AddPacketEvent(sim.now, dev, pckt, "enqueue")
	return true
}

func (dev *Device) startTransmit(pckt *Packet) {
	sim := dev.node.sim
	dev.busy = true
	frameBits := float64(pckt.Size()+pppHeaderSize) * 8.0
	delay := frameBits / dev.bndwdth
	sim.trace.AddPacketEvent(sim.now, dev, pckt, "tx")
	sim.ScheduleIn(delay, exitEgressDevice, dev, pckt)
}

// exitEgressDevice is the handler for the moment the last bit of a packet
// leaves the device.  The next queued packet starts serializing immediately.
func exitEgressDevice(sim *Simulator, context any, data any) {
	dev := context.(*Device)
	pckt := data.(*Packet)

	dev.stats.TxPackets++
	dev.stats.TxBytes += uint64(pckt.Size())
	sim.ScheduleIn(dev.channel.delay, enterIngressDevice, dev.Peer(), pckt)

	dev.busy = false
	if len(dev.queue) > 0 {
		nxt := dev.queue[0]
		dev.queue[0] = nil
		dev.queue = dev.queue[1:]
		dev.startTransmit(nxt)
	}
}

// enterIngressDevice is the handler for the arrival of a packet's last bit
// at the receiving device
func enterIngressDevice(sim *Simulator, context any, data any) {
	dev := context.(*Device)
	pckt := data.(*Packet)

	if dev.rxErr != nil && dev.rxErr.IsCorrupt(pckt) {
		dev.stats.ErrorDrops++
		sim.trace.AddPacketEvent(sim.now, dev, pckt, "drop-error")
		return
	}
	dev.stats.RxPackets++
	sim.trace.AddPacketEvent(sim.now, dev, pckt, "rx")
	dev.node.receive(dev, pckt)
}

// Channel joins exactly two devices
type Channel struct {
	id      int
	kind    DeviceKind
	delay   float64
	devices [2]*Device
}

// ID is the creation index of the channel
func (ch *Channel) ID() int {
	return ch.id
}

// Kind returns the kind shared by both devices
func (ch *Channel) Kind() DeviceKind {
	return ch.kind
}

// Delay is the propagation delay in seconds
func (ch *Channel) Delay() float64 {
	return ch.delay
}

// Devices returns the two devices in attachment order
func (ch *Channel) Devices() [2]*Device {
	return ch.devices
}

func (ch *Channel) peer(dev *Device) *Device {
	if ch.devices[0] == dev {
		return ch.devices[1]
	}
	if ch.devices[1] == dev {
		return ch.devices[0]
	}
	panic(fmt.Errorf("device %s is not on channel %d", dev, ch.id))
}

// Connect creates a device of the given kind on each node and joins them
// with a channel.  Rate is in bits per second and delay in seconds.
func (sim *Simulator) Connect(nodeA, nodeB *Node, kind DeviceKind, rate, delay float64) (*Channel, error) {
	if nodeA == nil || nodeB == nil || nodeA == nodeB {
		return nil, fmt.Errorf("channel needs two distinct nodes")
	}
	if rate <= 0.0 {
		return nil, fmt.Errorf("channel data rate %g must be positive", rate)
	}
	if delay < 0.0 {
		return nil, fmt.Errorf("channel delay %g must not be negative", delay)
	}
	if kind == UnknownKind {
		return nil, fmt.Errorf("channel kind is unknown")
	}
	ch := &Channel{id: sim.channelID, kind: kind, delay: delay}
	sim.channelID++
	ch.devices[0] = nodeA.addDevice(kind, rate, ch)
	ch.devices[1] = nodeB.addDevice(kind, rate, ch)
	sim.channels = append(sim.channels, ch)

	// existing routes no longer describe the graph
	sim.routing = nil
	return ch, nil
}

// Channels lists all channels in creation order
func (sim *Simulator) Channels() []*Channel {
	return sim.channels
}
