package netsim

import (
	"errors"
	"fmt"
)

// ErrPortInUse is returned when binding a port another socket holds
var ErrPortInUse = errors.New("port already bound")

const firstEphemeralPort = 49153

// UdpL4 demultiplexes datagrams to the sockets of one node
type UdpL4 struct {
	node    *Node
	sockets map[uint16]*UdpSocket
	nxtPort uint16
}

func createUdpL4(node *Node) *UdpL4 {
	return &UdpL4{node: node, sockets: make(map[uint16]*UdpSocket), nxtPort: firstEphemeralPort}
}

// UdpRecvFunc is called for every datagram a socket receives
type UdpRecvFunc func(sock *UdpSocket, pckt *Packet)

// UdpSocket is a connectionless endpoint bound to one port
type UdpSocket struct {
	l4     *UdpL4
	port   uint16
	recv   UdpRecvFunc
	closed bool
}

// Bind creates a socket on the port; port 0 picks an unused ephemeral port
func (l4 *UdpL4) Bind(port uint16, recv UdpRecvFunc) (*UdpSocket, error) {
	if port == 0 {
		for {
			port = l4.nxtPort
			l4.nxtPort++
			if l4.nxtPort == 0 {
				l4.nxtPort = firstEphemeralPort
			}
			if _, present := l4.sockets[port]; !present {
				break
			}
		}
	}
	if _, present := l4.sockets[port]; present {
		return nil, fmt.Errorf("%w: udp %d on node %d", ErrPortInUse, port, l4.node.id)
	}
	sock := &UdpSocket{l4: l4, port: port, recv: recv}
	l4.sockets[port] = sock
	return sock, nil
}

func (l4 *UdpL4) receive(pckt *Packet) {
	sock, present := l4.sockets[pckt.DstPort]
	if !present || sock.closed {
		return
	}
	if sock.recv != nil {
		sock.recv(sock, pckt)
	}
}

// Port returns the bound port
func (sock *UdpSocket) Port() uint16 {
	return sock.port
}

// Node returns the node holding the socket
func (sock *UdpSocket) Node() *Node {
	return sock.l4.node
}

// SendTo emits one datagram carrying size bytes of payload
func (sock *UdpSocket) SendTo(dst Ipv4Address, port uint16, size uint32) error {
	if sock.closed {
		return fmt.Errorf("udp socket %d on node %d is closed", sock.port, sock.l4.node.id)
	}
	node := sock.l4.node
	src, err := node.SourceAddressFor(dst)
	if err != nil {
		return err
	}
	pckt := &Packet{Src: src, Dst: dst, SrcPort: sock.port, DstPort: port, Proto: ProtoUDP, Payload: size}
	return node.send(pckt)
}

// Close releases the port; later datagrams for it are discarded
func (sock *UdpSocket) Close() {
	if sock.closed {
		return
	}
	sock.closed = true
	delete(sock.l4.sockets, sock.port)
}
