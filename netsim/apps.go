package netsim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
)

// Application is traffic-generating or -consuming code installed on a node.
// It is started and stopped by scheduled events.
type Application interface {
	Name() string
	Node() *Node
	StartApplication() error
	StopApplication()
}

// appHandle remembers the start and stop events of an installed application
type appHandle struct {
	app      Application
	start    float64
	stop     float64
	startEvt *EventToken
	stopEvt  *EventToken
	started  bool
}

// InstallApp schedules app to start and stop at the given times.  A stop time
// not after the start time is rejected.
func InstallApp(app Application, start, stop float64) error {
	if stop <= start {
		return fmt.Errorf("application %s: stop %g is not after start %g", app.Name(), stop, start)
	}
	node := app.Node()
	sim := node.sim
	ah := &appHandle{app: app, start: start, stop: stop}
	ah.startEvt = sim.ScheduleAt(start, startApp, ah, nil)
	ah.stopEvt = sim.ScheduleAt(stop, stopApp, ah, nil)
	node.apps = append(node.apps, app)
	return nil
}

func startApp(sim *Simulator, context any, data any) {
	ah := context.(*appHandle)
	if err := ah.app.StartApplication(); err != nil {
		sim.Fail(fmt.Errorf("starting %s: %w", ah.app.Name(), err))
		return
	}
	ah.started = true
}

func stopApp(sim *Simulator, context any, data any) {
	ah := context.(*appHandle)
	if ah.started {
		ah.app.StopApplication()
	}
}

// Applications lists what was installed on the node
func (node *Node) Applications() []Application {
	return node.apps
}

// EchoServer returns every UDP datagram to its sender
type EchoServer struct {
	node     *Node
	port     uint16
	sock     *UdpSocket
	received int
}

// NewEchoServer creates a server for the port
func NewEchoServer(node *Node, port uint16) *EchoServer {
	return &EchoServer{node: node, port: port}
}

func (es *EchoServer) Name() string {
	return fmt.Sprintf("echo-server(node%d:%d)", es.node.id, es.port)
}

func (es *EchoServer) Node() *Node {
	return es.node
}

// Received counts the datagrams the server echoed
func (es *EchoServer) Received() int {
	return es.received
}

func (es *EchoServer) StartApplication() error {
	sock, err := es.node.udp.Bind(es.port, es.handleRead)
	if err != nil {
		return err
	}
	es.sock = sock
	return nil
}

func (es *EchoServer) StopApplication() {
	if es.sock != nil {
		es.sock.Close()
		es.sock = nil
	}
}

func (es *EchoServer) handleRead(sock *UdpSocket, pckt *Packet) {
	es.received++
	now := es.node.sim.now
	logger.EchoLog.WithFields(logrus.Fields{"time": now, "node": es.node.id}).
		Infof("server received %d bytes from %s port %d", pckt.Payload, pckt.Src, pckt.SrcPort)
	if err := sock.SendTo(pckt.Src, pckt.SrcPort, pckt.Payload); err != nil {
		es.node.sim.Fail(err)
		return
	}
	logger.EchoLog.WithFields(logrus.Fields{"time": now, "node": es.node.id}).
		Infof("server sent %d bytes to %s port %d", pckt.Payload, pckt.Src, pckt.SrcPort)
}

// EchoClient sends a fixed number of datagrams at a fixed interval and counts the echoes
type EchoClient struct {
	node       *Node
	remote     Ipv4Address
	remotePort uint16
	maxPackets int
	interval   float64
	size       uint32

	sock     *UdpSocket
	sendEvt  *EventToken
	sent     int
	received int
}

// NewEchoClient creates a client that sends maxPackets datagrams of size bytes every interval seconds
func NewEchoClient(node *Node, remote Ipv4Address, port uint16, maxPackets int, interval float64, size uint32) *EchoClient {
	return &EchoClient{node: node, remote: remote, remotePort: port, maxPackets: maxPackets,
		interval: interval, size: size}
}

func (ec *EchoClient) Name() string {
	return fmt.Sprintf("echo-client(node%d->%s:%d)", ec.node.id, ec.remote, ec.remotePort)
}

func (ec *EchoClient) Node() *Node {
	return ec.node
}

// Sent counts datagrams sent
func (ec *EchoClient) Sent() int {
	return ec.sent
}

// Received counts echoes that came back
func (ec *EchoClient) Received() int {
	return ec.received
}

func (ec *EchoClient) StartApplication() error {
	sock, err := ec.node.udp.Bind(0, ec.handleRead)
	if err != nil {
		return err
	}
	ec.sock = sock
	ec.send()
	return nil
}

func (ec *EchoClient) StopApplication() {
	ec.sendEvt.Cancel()
	if ec.sock != nil {
		ec.sock.Close()
		ec.sock = nil
	}
}

func (ec *EchoClient) send() {
	if ec.sent >= ec.maxPackets || ec.sock == nil {
		return
	}
	if err := ec.sock.SendTo(ec.remote, ec.remotePort, ec.size); err != nil {
		ec.node.sim.Fail(err)
		return
	}
	ec.sent++
	logger.EchoLog.WithFields(logrus.Fields{"time": ec.node.sim.now, "node": ec.node.id}).
		Infof("client sent %d bytes to %s port %d", ec.size, ec.remote, ec.remotePort)
	if ec.sent < ec.maxPackets {
		ec.sendEvt = ec.node.sim.ScheduleIn(ec.interval, echoClientSend, ec, nil)
	}
}

func echoClientSend(sim *Simulator, context any, data any) {
	context.(*EchoClient).send()
}

func (ec *EchoClient) handleRead(sock *UdpSocket, pckt *Packet) {
	ec.received++
	logger.EchoLog.WithFields(logrus.Fields{"time": ec.node.sim.now, "node": ec.node.id}).
		Infof("client received %d bytes from %s port %d", pckt.Payload, pckt.Src, pckt.SrcPort)
}

// PacketSink accepts TCP connections on a port and counts the bytes they deliver
type PacketSink struct {
	node     *Node
	port     uint16
	listener *TcpSocket
	accepted []*TcpSocket
	totalRx  uint64
}

// NewPacketSink creates a sink for the port
func NewPacketSink(node *Node, port uint16) *PacketSink {
	return &PacketSink{node: node, port: port}
}

func (ps *PacketSink) Name() string {
	return fmt.Sprintf("packet-sink(node%d:%d)", ps.node.id, ps.port)
}

func (ps *PacketSink) Node() *Node {
	return ps.node
}

// Port is the listening port
func (ps *PacketSink) Port() uint16 {
	return ps.port
}

// TotalRx is the number of bytes received over all accepted connections
func (ps *PacketSink) TotalRx() uint64 {
	return ps.totalRx
}

// Accepted lists the connections the sink accepted
func (ps *PacketSink) Accepted() []*TcpSocket {
	return ps.accepted
}

func (ps *PacketSink) StartApplication() error {
	ps.listener = ps.node.tcp.CreateSocket()
	return ps.listener.Listen(ps.port, ps.accept)
}

func (ps *PacketSink) accept(sock *TcpSocket) {
	ps.accepted = append(ps.accepted, sock)
	sock.SetRecvCallback(ps.handleRead)
}

func (ps *PacketSink) handleRead(sock *TcpSocket, n uint32) {
	ps.totalRx += uint64(n)
}

func (ps *PacketSink) StopApplication() {
	for _, sock := range ps.accepted {
		sock.SetRecvCallback(nil)
		sock.Close()
	}
	if ps.listener != nil {
		ps.listener.Close()
	}
}

// BulkSend pushes data into a TCP connection as fast as the send buffer accepts it
type BulkSend struct {
	node       *Node
	remote     Ipv4Address
	remotePort uint16
	maxBytes   uint64 // 0 means no limit
	sendSize   uint32

	sock      *TcpSocket
	totalSent uint64
}

// NewBulkSend creates a sender toward remote:port writing sendSize bytes at a time
func NewBulkSend(node *Node, remote Ipv4Address, port uint16, maxBytes uint64, sendSize uint32) *BulkSend {
	return &BulkSend{node: node, remote: remote, remotePort: port, maxBytes: maxBytes, sendSize: sendSize}
}

func (bs *BulkSend) Name() string {
	return fmt.Sprintf("bulk-send(node%d->%s:%d)", bs.node.id, bs.remote, bs.remotePort)
}

func (bs *BulkSend) Node() *Node {
	return bs.node
}

// Socket returns the connection, nil before the application started
func (bs *BulkSend) Socket() *TcpSocket {
	return bs.sock
}

// TotalSent counts bytes handed to the socket
func (bs *BulkSend) TotalSent() uint64 {
	return bs.totalSent
}

func (bs *BulkSend) StartApplication() error {
	if bs.sendSize == 0 {
		return fmt.Errorf("bulk send size must be positive")
	}
	bs.sock = bs.node.tcp.CreateSocket()
	bs.sock.SetConnectedCallback(func(*TcpSocket) { bs.sendData() })
	bs.sock.SetSendCallback(func(*TcpSocket, uint32) { bs.sendData() })
	return bs.sock.Connect(bs.remote, bs.remotePort)
}

func (bs *BulkSend) StopApplication() {
	if bs.sock != nil {
		bs.sock.Close()
	}
}

func (bs *BulkSend) sendData() {
	for bs.maxBytes == 0 || bs.totalSent < bs.maxBytes {
		toSend := bs.sendSize
		if bs.maxBytes > 0 && bs.maxBytes-bs.totalSent < uint64(toSend) {
			toSend = uint32(bs.maxBytes - bs.totalSent)
		}
		if bs.sock.Send(toSend) == 0 {
			return
		}
		bs.totalSent += uint64(toSend)
	}
}
