package netsim

// tcp.go is a byte-stream transport with a three-way handshake, cumulative
// acknowledgements with SACK blocks, out-of-order reassembly at the receiver,
// SACK based loss recovery limited by a pipe estimate, and an RFC 6298
// retransmission timer.  Sequence numbers count bytes from zero and never wrap;
// the SYN takes sequence number 0 and data starts at 1.

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
)

// TcpConfig holds the per-socket constants copied into every new socket
type TcpConfig struct {
	SegmentSize     uint32  `json:"segmentsize" yaml:"segmentsize"`
	InitialCwnd     uint32  `json:"initialcwnd" yaml:"initialcwnd"` // in segments
	SndBufSize      uint32  `json:"sndbufsize" yaml:"sndbufsize"`
	RcvBufSize      uint32  `json:"rcvbufsize" yaml:"rcvbufsize"`
	MinRto          float64 `json:"minrto" yaml:"minrto"`
	InitialRto      float64 `json:"initialrto" yaml:"initialrto"`
	MaxRto          float64 `json:"maxrto" yaml:"maxrto"`
	ConnTimeout     float64 `json:"conntimeout" yaml:"conntimeout"`
	SynRetries      int     `json:"synretries" yaml:"synretries"`
	DupAckThreshold int     `json:"dupackthreshold" yaml:"dupackthreshold"`
}

// DefaultTcpConfig returns the values sockets use unless told otherwise
func DefaultTcpConfig() TcpConfig {
	return TcpConfig{
		SegmentSize:     536,
		InitialCwnd:     10,
		SndBufSize:      131072,
		RcvBufSize:      131072,
		MinRto:          1.0,
		InitialRto:      1.0,
		MaxRto:          60.0,
		ConnTimeout:     3.0,
		SynRetries:      6,
		DupAckThreshold: 3,
	}
}

// Validate reports the first unusable value
func (cfg TcpConfig) Validate() error {
	switch {
	case cfg.SegmentSize == 0:
		return errors.New("tcp segment size must be positive")
	case cfg.InitialCwnd == 0:
		return errors.New("tcp initial window must be at least one segment")
	case cfg.SndBufSize < cfg.SegmentSize || cfg.RcvBufSize < cfg.SegmentSize:
		return errors.New("tcp buffers must hold at least one segment")
	case cfg.MinRto <= 0.0 || cfg.InitialRto <= 0.0 || cfg.MaxRto < cfg.MinRto:
		return errors.New("tcp retransmission timeouts are inconsistent")
	case cfg.DupAckThreshold < 1:
		return errors.New("tcp duplicate ACK threshold must be positive")
	}
	return nil
}

// SetTcpDefaults replaces the configuration copied into sockets created from now on
func (sim *Simulator) SetTcpDefaults(cfg TcpConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sim.tcpDefaults = cfg
	return nil
}

// TcpDefaults returns the configuration new sockets receive
func (sim *Simulator) TcpDefaults() TcpConfig {
	return sim.tcpDefaults
}

// SetDefaultStrategy selects the congestion control every socket created afterwards runs.
// Sockets already open keep the strategy they were created with.
func (sim *Simulator) SetDefaultStrategy(cs CongestionStrategy) {
	sim.strategy = cs
}

// DefaultStrategy returns the strategy new sockets receive
func (sim *Simulator) DefaultStrategy() CongestionStrategy {
	return sim.strategy
}

type tcpState int

const (
	tcpClosed tcpState = iota
	tcpListen
	tcpSynSent
	tcpSynRcvd
	tcpEstablished
	tcpFinWait
)

type recoveryMode int

const (
	recoveryNone recoveryMode = iota
	recoveryFast
	recoveryTimeout
)

func (st tcpState) String() string {
	switch st {
	case tcpClosed:
		return "CLOSED"
	case tcpListen:
		return "LISTEN"
	case tcpSynSent:
		return "SYN_SENT"
	case tcpSynRcvd:
		return "SYN_RCVD"
	case tcpEstablished:
		return "ESTABLISHED"
	case tcpFinWait:
		return "FIN_WAIT"
	}
	return "UNKNOWN"
}

type connKey struct {
	localPort  uint16
	remote     Ipv4Address
	remotePort uint16
}

// TcpL4 is the TCP layer of one node.  It owns the node's socket list, whose
// indices are the socket ids used in context paths.
type TcpL4 struct {
	node      *Node
	sockets   []*TcpSocket
	listeners map[uint16]*TcpSocket
	conns     map[connKey]*TcpSocket
	nxtPort   uint16
	created   []func(*TcpSocket)
}

func createTcpL4(node *Node) *TcpL4 {
	return &TcpL4{node: node, listeners: make(map[uint16]*TcpSocket),
		conns: make(map[connKey]*TcpSocket), nxtPort: firstEphemeralPort}
}

// Sockets lists every socket ever created on the node, in id order
func (l4 *TcpL4) Sockets() []*TcpSocket {
	return l4.sockets
}

// OnSocketCreated registers a function called for every socket created from now on
func (l4 *TcpL4) OnSocketCreated(hook func(*TcpSocket)) {
	l4.created = append(l4.created, hook)
}

// CreateSocket makes a closed socket running the simulation's default strategy
func (l4 *TcpL4) CreateSocket() *TcpSocket {
	sim := l4.node.sim
	cfg := sim.tcpDefaults
	sock := &TcpSocket{l4: l4, id: len(l4.sockets), strategy: sim.strategy, cfg: cfg}
	sock.cong = sim.strategy.newOps()
	sock.tcb = congState{cwnd: cfg.InitialCwnd * cfg.SegmentSize, ssthresh: math.MaxUint32,
		segSize: cfg.SegmentSize}
	sock.rto = cfg.InitialRto
	sock.peerRwnd = cfg.RcvBufSize
	l4.sockets = append(l4.sockets, sock)
	for _, hook := range l4.created {
		hook(sock)
	}
	return sock
}

func (l4 *TcpL4) allocPort() uint16 {
	for {
		port := l4.nxtPort
		l4.nxtPort++
		if l4.nxtPort == 0 {
			l4.nxtPort = firstEphemeralPort
		}
		_, listening := l4.listeners[port]
		if !listening && !l4.portInUse(port) {
			return port
		}
	}
}

func (l4 *TcpL4) portInUse(port uint16) bool {
	for key := range l4.conns {
		if key.localPort == port {
			return true
		}
	}
	return false
}

func (l4 *TcpL4) receive(pckt *Packet) {
	key := connKey{localPort: pckt.DstPort, remote: pckt.Src, remotePort: pckt.SrcPort}
	if sock, present := l4.conns[key]; present {
		sock.receive(pckt)
		return
	}
	if pckt.Flags&FlagSYN != 0 && pckt.Flags&FlagACK == 0 {
		if lstn, present := l4.listeners[pckt.DstPort]; present {
			lstn.fork(pckt)
		}
	}
	// anything else has no socket and is discarded
}

// TcpSocket is one end of a connection, or a listener
type TcpSocket struct {
	l4       *TcpL4
	id       int
	state    tcpState
	strategy CongestionStrategy
	cfg      TcpConfig
	cong     congestionOps
	tcb      congState

	localAddr  Ipv4Address
	localPort  uint16
	peerAddr   Ipv4Address
	peerPort   uint16
	listener   *TcpSocket
	synRetries int

	// sender; sndNxt is always the highest sequence number sent so far
	appWritten uint64 // bytes the application handed over
	sndUna     uint64
	sndNxt     uint64
	peerRwnd   uint32
	dupAcks    int
	recovery   recoveryMode
	recover    uint64
	lossBound  uint64   // unsacked bytes below this are taken as lost
	sacked     rangeSet // scoreboard of what the peer holds above sndUna
	rtxed      rangeSet // resent during the current recovery
	rtxTimer   *EventToken
	retrans    int

	// round trip estimation
	timing   bool
	timedSeq uint64
	timedAt  float64
	srtt     float64
	rttvar   float64
	rto      float64
	rttValid bool

	// receiver
	rcvNxt   uint64
	ooo      rangeSet
	lastRcvd seqRange
	totalRx  uint64

	onAccept    func(*TcpSocket)
	onConnected func(*TcpSocket)
	onRecv      func(*TcpSocket, uint32)
	onSendSpace func(*TcpSocket, uint32)
	cwndSubs    []func(old, new uint32)
}

// ID is the socket's index on its node
func (sock *TcpSocket) ID() int {
	return sock.id
}

// Node returns the node holding the socket
func (sock *TcpSocket) Node() *Node {
	return sock.l4.node
}

// NodeID is the id of the node holding the socket
func (sock *TcpSocket) NodeID() int {
	return sock.l4.node.id
}

// SocketID is the same as ID; it lets a socket serve as a window source for tracing
func (sock *TcpSocket) SocketID() int {
	return sock.id
}

// ContextPath names the socket's congestion window the way trace configuration refers to it
func (sock *TcpSocket) ContextPath() string {
	return fmt.Sprintf("/NodeList/%d/$ns3::TcpL4Protocol/SocketList/%d/CongestionWindow",
		sock.l4.node.id, sock.id)
}

// Strategy returns the congestion control the socket runs
func (sock *TcpSocket) Strategy() CongestionStrategy {
	return sock.strategy
}

// Cwnd is the congestion window in bytes
func (sock *TcpSocket) Cwnd() uint32 {
	return sock.tcb.cwnd
}

// SsThresh is the slow-start threshold in bytes
func (sock *TcpSocket) SsThresh() uint32 {
	return sock.tcb.ssthresh
}

// TotalRx counts the bytes delivered in order to the application
func (sock *TcpSocket) TotalRx() uint64 {
	return sock.totalRx
}

// BytesAcked counts the application bytes the peer acknowledged
func (sock *TcpSocket) BytesAcked() uint64 {
	if sock.sndUna == 0 {
		return 0
	}
	return sock.sndUna - 1
}

// Retransmissions counts segments sent more than once
func (sock *TcpSocket) Retransmissions() int {
	return sock.retrans
}

// Established is true while the connection can carry data
func (sock *TcpSocket) Established() bool {
	return sock.state == tcpEstablished
}

// SubscribeCwnd registers fn to be told of every congestion window change
func (sock *TcpSocket) SubscribeCwnd(fn func(old, new uint32)) {
	sock.cwndSubs = append(sock.cwndSubs, fn)
}

// SetRecvCallback registers fn to be told how many bytes arrived in order
func (sock *TcpSocket) SetRecvCallback(fn func(*TcpSocket, uint32)) {
	sock.onRecv = fn
}

// SetConnectedCallback registers fn to run once the handshake completes
func (sock *TcpSocket) SetConnectedCallback(fn func(*TcpSocket)) {
	sock.onConnected = fn
}

// SetSendCallback registers fn to run whenever buffer space frees up
func (sock *TcpSocket) SetSendCallback(fn func(*TcpSocket, uint32)) {
	sock.onSendSpace = fn
}

func (sock *TcpSocket) setCwnd(cwnd uint32) {
	old := sock.tcb.cwnd
	sock.tcb.cwnd = cwnd
	sock.cwndChanged(old)
}

func (sock *TcpSocket) cwndChanged(old uint32) {
	if old == sock.tcb.cwnd {
		return
	}
	for _, fn := range sock.cwndSubs {
		fn(old, sock.tcb.cwnd)
	}
}

// Listen makes the socket accept connections on port.  onAccept is called with
// each new connected socket.
func (sock *TcpSocket) Listen(port uint16, onAccept func(*TcpSocket)) error {
	if sock.state != tcpClosed {
		return fmt.Errorf("tcp socket %s cannot listen in state %s", sock.ContextPath(), sock.state)
	}
	if _, present := sock.l4.listeners[port]; present {
		return fmt.Errorf("%w: tcp %d on node %d", ErrPortInUse, port, sock.l4.node.id)
	}
	sock.localPort = port
	sock.state = tcpListen
	sock.onAccept = onAccept
	sock.l4.listeners[port] = sock
	return nil
}

// Connect starts the handshake with a listener at addr:port
func (sock *TcpSocket) Connect(addr Ipv4Address, port uint16) error {
	if sock.state != tcpClosed {
		return fmt.Errorf("tcp socket %s cannot connect in state %s", sock.ContextPath(), sock.state)
	}
	node := sock.l4.node
	src, err := node.SourceAddressFor(addr)
	if err != nil {
		return err
	}
	sock.localAddr = src
	sock.localPort = sock.l4.allocPort()
	sock.peerAddr = addr
	sock.peerPort = port
	sock.l4.conns[sock.key()] = sock
	sock.state = tcpSynSent
	sock.rto = sock.cfg.ConnTimeout
	sock.sendControl(FlagSYN, 0)
	sock.armTimer()
	return nil
}

func (sock *TcpSocket) key() connKey {
	return connKey{localPort: sock.localPort, remote: sock.peerAddr, remotePort: sock.peerPort}
}

// fork creates the server side socket for an arriving SYN
func (sock *TcpSocket) fork(syn *Packet) {
	child := sock.l4.CreateSocket()
	child.listener = sock
	child.localAddr = syn.Dst
	child.localPort = sock.localPort
	child.peerAddr = syn.Src
	child.peerPort = syn.SrcPort
	child.state = tcpSynRcvd
	child.rcvNxt = syn.Seq + 1
	child.peerRwnd = syn.Window
	child.rto = child.cfg.ConnTimeout
	sock.l4.conns[child.key()] = child
	child.sendControl(FlagSYN|FlagACK, 0)
	child.armTimer()
}

// TxAvailable is the free space in the send buffer
func (sock *TcpSocket) TxAvailable() uint32 {
	unacked := sock.appWritten
	if sock.sndUna > 0 {
		unacked = sock.appWritten + 1 - sock.sndUna
	}
	if unacked >= uint64(sock.cfg.SndBufSize) {
		return 0
	}
	return sock.cfg.SndBufSize - uint32(unacked)
}

// Send queues n application bytes.  It accepts nothing when they do not all fit.
func (sock *TcpSocket) Send(n uint32) uint32 {
	if sock.state != tcpEstablished && sock.state != tcpSynSent && sock.state != tcpSynRcvd {
		return 0
	}
	if n == 0 || n > sock.TxAvailable() {
		return 0
	}
	sock.appWritten += uint64(n)
	sock.sendPending()
	return n
}

// Close stops the socket.  Unsent data is abandoned and a FIN is sent to an established peer.
func (sock *TcpSocket) Close() {
	switch sock.state {
	case tcpClosed:
		return
	case tcpListen:
		delete(sock.l4.listeners, sock.localPort)
	case tcpEstablished:
		sock.sendControl(FlagFIN|FlagACK, sock.sndNxt)
		delete(sock.l4.conns, sock.key())
	default:
		delete(sock.l4.conns, sock.key())
	}
	sock.cancelTimer()
	sock.state = tcpClosed
}

func (sock *TcpSocket) newPacket(flags TcpFlags, seq uint64, payload uint32) *Packet {
	window := sock.cfg.RcvBufSize - sock.oooBytes()
	return &Packet{Src: sock.localAddr, Dst: sock.peerAddr, SrcPort: sock.localPort,
		DstPort: sock.peerPort, Proto: ProtoTCP, Payload: payload, Seq: seq,
		Ack: sock.rcvNxt, Flags: flags, Window: window, Sack: sock.sackBlocks()}
}

func (sock *TcpSocket) oooBytes() uint32 {
	return uint32(sock.ooo.bytes())
}

// sackBlocks reports the block holding the latest arrival first, then the
// highest remaining ones
func (sock *TcpSocket) sackBlocks() []SackBlock {
	if len(sock.ooo) == 0 {
		return nil
	}
	blocks := []SackBlock{}
	latest, found := sock.ooo.containing(sock.lastRcvd.start)
	if found {
		blocks = append(blocks, SackBlock{Start: latest.start, End: latest.end})
	}
	for idx := len(sock.ooo) - 1; idx >= 0 && len(blocks) < maxSackBlocks; idx-- {
		r := sock.ooo[idx]
		if found && r == latest {
			continue
		}
		blocks = append(blocks, SackBlock{Start: r.start, End: r.end})
	}
	return blocks
}

func (sock *TcpSocket) transmit(pckt *Packet) {
	if err := sock.l4.node.send(pckt); err != nil {
		sock.l4.node.sim.Fail(err)
	}
}

func (sock *TcpSocket) sendControl(flags TcpFlags, seq uint64) {
	sock.transmit(sock.newPacket(flags, seq, 0))
}

func (sock *TcpSocket) sendAck() {
	sock.sendControl(FlagACK, sock.sndNxt)
}

// streamEnd is one past the last sequence number the application has supplied
func (sock *TcpSocket) streamEnd() uint64 {
	return 1 + sock.appWritten
}

// pipe estimates the bytes still travelling between the two ends
func (sock *TcpSocket) pipe() uint64 {
	outstanding := sock.sndNxt - sock.sndUna
	sacked := sock.sacked.bytesIn(sock.sndUna, sock.sndNxt)
	var lost uint64
	if sock.lossBound > sock.sndUna {
		from, to := sock.sndUna, sock.lossBound
		covered := sock.sacked.bytesIn(from, to) + sock.rtxed.bytesIn(from, to) -
			sock.sacked.overlapIn(sock.rtxed, from, to)
		lost = to - from - covered
	}
	if sacked+lost >= outstanding {
		return 0
	}
	return outstanding - sacked - lost
}

// nextHole finds the first lost range not yet resent, at most one segment long
func (sock *TcpSocket) nextHole() (uint64, uint64, bool) {
	cur := sock.sndUna
	for cur < sock.lossBound {
		if r, in := sock.sacked.containing(cur); in {
			cur = r.end
			continue
		}
		if r, in := sock.rtxed.containing(cur); in {
			cur = r.end
			continue
		}
		end := cur + uint64(sock.cfg.SegmentSize)
		if end > sock.lossBound {
			end = sock.lossBound
		}
		if nxt, ok := sock.sacked.nextStart(cur); ok && nxt < end {
			end = nxt
		}
		if nxt, ok := sock.rtxed.nextStart(cur); ok && nxt < end {
			end = nxt
		}
		return cur, end, true
	}
	return 0, 0, false
}

// sendPending fills the congestion window, lost data first and new data after
func (sock *TcpSocket) sendPending() {
	if sock.state != tcpEstablished {
		return
	}
	segSize := uint64(sock.cfg.SegmentSize)
	for {
		pipe := sock.pipe()
		if pipe > 0 && pipe+segSize > uint64(sock.tcb.cwnd) {
			return
		}
		if start, end, ok := sock.nextHole(); ok {
			sock.resend(start, end)
			continue
		}
		if sock.streamEnd() <= sock.sndNxt {
			return
		}
		segLen := sock.streamEnd() - sock.sndNxt
		if segLen > segSize {
			segLen = segSize
		}
		if sock.sndNxt > sock.sndUna && sock.sndNxt+segLen > sock.sndUna+uint64(sock.peerRwnd) {
			return
		}
		sock.sendData(sock.sndNxt, uint32(segLen))
		sock.sndNxt += segLen
	}
}

func (sock *TcpSocket) resend(start, end uint64) {
	sock.rtxed = sock.rtxed.add(start, end)
	sock.sendData(start, uint32(end-start))
}

func (sock *TcpSocket) sendData(seq uint64, length uint32) {
	isRetrans := seq < sock.sndNxt
	if isRetrans {
		sock.retrans++
		// Karn: a retransmitted segment gives no RTT sample
		if sock.timing && sock.timedSeq > seq {
			sock.timing = false
		}
	} else if !sock.timing {
		sock.timing = true
		sock.timedSeq = seq + uint64(length)
		sock.timedAt = sock.l4.node.sim.now
	}
	sock.transmit(sock.newPacket(FlagACK, seq, length))
	sock.armTimer()
}

func (sock *TcpSocket) armTimer() {
	if sock.rtxTimer.Pending() {
		return
	}
	sock.rtxTimer = sock.l4.node.sim.ScheduleIn(sock.rto, rtoExpired, sock, nil)
}

func (sock *TcpSocket) cancelTimer() {
	sock.rtxTimer.Cancel()
	sock.rtxTimer = nil
}

func (sock *TcpSocket) restartTimer() {
	sock.cancelTimer()
	sock.armTimer()
}

func (sock *TcpSocket) updateRtt(sample float64) {
	if !sock.rttValid {
		sock.srtt = sample
		sock.rttvar = sample / 2.0
		sock.rttValid = true
	} else {
		sock.rttvar = 0.75*sock.rttvar + 0.25*math.Abs(sock.srtt-sample)
		sock.srtt = 0.875*sock.srtt + 0.125*sample
	}
	rto := sock.srtt + math.Max(0.001, 4.0*sock.rttvar)
	sock.rto = math.Min(math.Max(rto, sock.cfg.MinRto), sock.cfg.MaxRto)
}

// rtoExpired is the handler for the retransmission timer
func rtoExpired(sim *Simulator, context any, data any) {
	sock := context.(*TcpSocket)
	sock.rtxTimer = nil

	switch sock.state {
	case tcpSynSent, tcpSynRcvd:
		sock.synRetries++
		if sock.synRetries > sock.cfg.SynRetries {
			logger.TcpLog.WithField("socket", sock.ContextPath()).Warn("handshake abandoned")
			sock.Close()
			return
		}
		sock.rto = math.Min(2.0*sock.rto, sock.cfg.MaxRto)
		flags := FlagSYN
		if sock.state == tcpSynRcvd {
			flags |= FlagACK
		}
		sock.sendControl(flags, 0)
		sock.armTimer()
		return
	case tcpEstablished:
	default:
		return
	}
	if sock.sndNxt <= sock.sndUna {
		return
	}

	sock.tcb.now = sim.now
	old := sock.tcb.cwnd
	sock.tcb.ssthresh = sock.cong.getSsThresh(&sock.tcb, uint32(sock.sndNxt-sock.sndUna))
	sock.cong.timeout(&sock.tcb)
	sock.tcb.cwnd = sock.cfg.SegmentSize
	sock.cwndChanged(old)

	// everything outstanding that the peer has not reported is presumed lost
	sock.recovery = recoveryTimeout
	sock.recover = sock.sndNxt
	sock.lossBound = sock.sndNxt
	sock.rtxed = nil
	sock.dupAcks = 0
	sock.timing = false
	sock.rto = math.Min(2.0*sock.rto, sock.cfg.MaxRto)
	logger.TcpLog.WithFields(logrus.Fields{"socket": sock.ContextPath(), "time": sim.now,
		"rto": sock.rto}).Debug("retransmission timeout")
	sock.sendPending()
}

func (sock *TcpSocket) establish() {
	sock.state = tcpEstablished
	sock.sndUna = 1
	sock.sndNxt = 1
	sock.cancelTimer()
	sock.rto = sock.cfg.InitialRto
	sock.synRetries = 0
}

func (sock *TcpSocket) receive(pckt *Packet) {
	switch sock.state {
	case tcpSynSent:
		if pckt.Flags&(FlagSYN|FlagACK) == FlagSYN|FlagACK && pckt.Ack == 1 {
			sock.rcvNxt = pckt.Seq + 1
			sock.peerRwnd = pckt.Window
			sock.establish()
			sock.sendAck()
			if sock.onConnected != nil {
				sock.onConnected(sock)
			}
			sock.sendPending()
		}
		return

	case tcpSynRcvd:
		if pckt.Flags&FlagSYN != 0 {
			// the peer did not get our SYN-ACK
			sock.sendControl(FlagSYN|FlagACK, 0)
			return
		}
		if pckt.Flags&FlagACK == 0 || pckt.Ack < 1 {
			return
		}
		sock.establish()
		if sock.listener != nil && sock.listener.onAccept != nil {
			sock.listener.onAccept(sock)
		}

	case tcpEstablished:
		if pckt.Flags&FlagSYN != 0 {
			// our handshake ACK was lost
			sock.sendAck()
			return
		}

	default:
		return
	}

	if pckt.Flags&FlagACK != 0 {
		sock.processAck(pckt)
	}
	if pckt.Payload > 0 {
		sock.processData(pckt)
	}
	if pckt.Flags&FlagFIN != 0 && sock.state == tcpEstablished {
		sock.cancelTimer()
		sock.state = tcpFinWait
	}
}

func (sock *TcpSocket) processAck(pckt *Packet) {
	sock.peerRwnd = pckt.Window
	ack := pckt.Ack
	if ack > sock.sndNxt {
		return
	}
	for _, blk := range pckt.Sack {
		lo, hi := blk.Start, blk.End
		if lo < ack {
			lo = ack
		}
		if hi > sock.sndNxt {
			hi = sock.sndNxt
		}
		sock.sacked = sock.sacked.add(lo, hi)
	}
	if ack > sock.sndUna {
		sock.newAck(ack)
		return
	}
	if ack == sock.sndUna && pckt.Payload == 0 && pckt.Flags&FlagFIN == 0 && sock.sndNxt > sock.sndUna {
		sock.dupAck()
	}
}

func (sock *TcpSocket) newAck(ack uint64) {
	sim := sock.l4.node.sim
	bytesAcked := ack - sock.sndUna
	segSize := uint64(sock.cfg.SegmentSize)

	rtt := -1.0
	if sock.timing && ack >= sock.timedSeq {
		rtt = sim.now - sock.timedAt
		sock.timing = false
		sock.updateRtt(rtt)
	}

	sock.sndUna = ack
	sock.sacked = sock.sacked.trimBelow(ack)
	sock.rtxed = sock.rtxed.trimBelow(ack)
	sock.tcb.now = sim.now

	grow := func() {
		segsAcked := uint32((bytesAcked + segSize - 1) / segSize)
		sock.cong.pktsAcked(&sock.tcb, segsAcked, rtt)
		old := sock.tcb.cwnd
		sock.cong.increaseWindow(&sock.tcb, segsAcked)
		sock.cwndChanged(old)
	}

	switch sock.recovery {
	case recoveryFast:
		if ack >= sock.recover {
			sock.endRecovery()
			sock.setCwnd(sock.tcb.ssthresh)
		} else {
			sock.extendLossBound()
		}
	case recoveryTimeout:
		grow()
		if ack >= sock.recover {
			sock.endRecovery()
		}
	default:
		sock.dupAcks = 0
		grow()
	}

	if sock.sndNxt > sock.sndUna {
		sock.restartTimer()
	} else {
		sock.cancelTimer()
	}
	sock.notifySendSpace()
	sock.sendPending()
}

func (sock *TcpSocket) endRecovery() {
	sock.recovery = recoveryNone
	sock.lossBound = 0
	sock.rtxed = nil
	sock.dupAcks = 0
}

// extendLossBound marks every hole below the highest SACKed byte as lost
func (sock *TcpSocket) extendLossBound() {
	if hb := sock.sacked.highest(); hb > sock.lossBound {
		sock.lossBound = hb
	}
	if sock.lossBound > sock.sndNxt {
		sock.lossBound = sock.sndNxt
	}
}

func (sock *TcpSocket) dupAck() {
	sock.dupAcks++
	switch sock.recovery {
	case recoveryFast:
		sock.extendLossBound()
		sock.sendPending()
		return
	case recoveryTimeout:
		sock.sendPending()
		return
	}

	threshold := uint64(sock.cfg.DupAckThreshold)
	if uint64(sock.dupAcks) < threshold &&
		sock.sacked.bytesIn(sock.sndUna, sock.sndNxt) < threshold*uint64(sock.cfg.SegmentSize) {
		// SACKed bytes leave the pipe, which may let new data out
		sock.sendPending()
		return
	}

	sock.tcb.now = sock.l4.node.sim.now
	old := sock.tcb.cwnd
	sock.tcb.ssthresh = sock.cong.getSsThresh(&sock.tcb, uint32(sock.sndNxt-sock.sndUna))
	sock.tcb.cwnd = sock.tcb.ssthresh
	sock.cwndChanged(old)

	sock.recovery = recoveryFast
	sock.recover = sock.sndNxt
	sock.rtxed = nil
	sock.lossBound = sock.sndUna + uint64(sock.cfg.SegmentSize)
	sock.extendLossBound()
	logger.TcpLog.WithFields(logrus.Fields{"socket": sock.ContextPath(), "time": sock.tcb.now,
		"ssthresh": sock.tcb.ssthresh}).Debug("fast retransmit")

	// the first hole goes out at once whatever the pipe says
	if start, end, ok := sock.nextHole(); ok {
		sock.resend(start, end)
	}
	sock.restartTimer()
	sock.sendPending()
}

func (sock *TcpSocket) notifySendSpace() {
	if sock.onSendSpace == nil {
		return
	}
	if avail := sock.TxAvailable(); avail > 0 {
		sock.onSendSpace(sock, avail)
	}
}

// processData accepts a data segment into the receive stream and acknowledges it
func (sock *TcpSocket) processData(pckt *Packet) {
	seq := pckt.Seq
	end := seq + uint64(pckt.Payload)

	switch {
	case seq <= sock.rcvNxt && end > sock.rcvNxt:
		sock.deliver(end - sock.rcvNxt)
		sock.rcvNxt = end
		sock.drainReassembly()
	case seq > sock.rcvNxt:
		fresh := uint64(pckt.Payload) - sock.ooo.bytesIn(seq, end)
		if fresh > 0 && uint64(sock.oooBytes())+fresh <= uint64(sock.cfg.RcvBufSize) {
			sock.ooo = sock.ooo.add(seq, end)
			sock.lastRcvd = seqRange{start: seq, end: end}
		}
	}
	sock.sendAck()
}

// drainReassembly moves buffered data that became contiguous into the stream
func (sock *TcpSocket) drainReassembly() {
	for len(sock.ooo) > 0 && sock.ooo[0].start <= sock.rcvNxt {
		if end := sock.ooo[0].end; end > sock.rcvNxt {
			sock.deliver(end - sock.rcvNxt)
			sock.rcvNxt = end
		}
		sock.ooo = sock.ooo[1:]
	}
	sock.ooo = sock.ooo.trimBelow(sock.rcvNxt)
}

func (sock *TcpSocket) deliver(n uint64) {
	sock.totalRx += n
	if sock.onRecv != nil {
		sock.onRecv(sock, uint32(n))
	}
}
