package netsim

import "fmt"

// Protocol is the transport carried by a packet, numbered as in the IPv4 header
type Protocol uint8

const (
	ProtoTCP Protocol = 6
	ProtoUDP Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	}
	return fmt.Sprintf("proto%d", uint8(p))
}

// TcpFlags holds the control bits of a segment
type TcpFlags uint8

const (
	FlagSYN TcpFlags = 1 << iota
	FlagACK
	FlagFIN
)

func (f TcpFlags) String() string {
	s := ""
	if f&FlagSYN != 0 {
		s += "S"
	}
	if f&FlagFIN != 0 {
		s += "F"
	}
	if f&FlagACK != 0 {
		s += "A"
	}
	if s == "" {
		s = "-"
	}
	return s
}

// header sizes, in bytes
const (
	ipv4HeaderSize = 20
	udpHeaderSize  = 8
	tcpHeaderSize  = 20
	pppHeaderSize  = 2
	defaultTTL     = 64
)

// Packet is the unit moved between devices.  Only the size of the payload is
// modeled, not its content.
type Packet struct {
	ID      uint64
	Src     Ipv4Address
	Dst     Ipv4Address
	SrcPort uint16
	DstPort uint16
	Proto   Protocol
	TTL     int

	// application bytes carried
	Payload uint32

	// TCP fields; sequence numbers count bytes of the stream and do not wrap
	Seq    uint64
	Ack    uint64
	Flags  TcpFlags
	Window uint32
	Sack   []SackBlock
}

// Size is the length of the IP datagram
func (pckt *Packet) Size() uint32 {
	size := uint32(ipv4HeaderSize) + pckt.Payload
	switch pckt.Proto {
	case ProtoTCP:
		size += tcpHeaderSize
		if n := len(pckt.Sack); n > 0 {
			// kind, length and two bytes of padding ahead of the blocks
			size += 4 + 8*uint32(n)
		}
	case ProtoUDP:
		size += udpHeaderSize
	}
	return size
}

func (pckt *Packet) String() string {
	if pckt.Proto == ProtoTCP {
		return fmt.Sprintf("#%d %s:%d > %s:%d tcp [%s] seq=%d ack=%d len=%d", pckt.ID,
			pckt.Src, pckt.SrcPort, pckt.Dst, pckt.DstPort, pckt.Flags, pckt.Seq, pckt.Ack, pckt.Payload)
	}
	return fmt.Sprintf("#%d %s:%d > %s:%d %s len=%d", pckt.ID,
		pckt.Src, pckt.SrcPort, pckt.Dst, pckt.DstPort, pckt.Proto, pckt.Payload)
}
