package netsim

// congestion.go holds the closed set of congestion-control strategies a TCP
// socket can run.  A strategy only ever moves the window (cwnd) and the
// slow-start threshold; loss detection and recovery belong to the socket.

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// CongestionStrategy names one of the supported congestion-control algorithms
type CongestionStrategy int

const (
	NewReno CongestionStrategy = iota
	Cubic
	HighSpeed
	Scalable
)

// ErrUnknownStrategy is returned by LookupStrategy for a name outside the supported set
var ErrUnknownStrategy = errors.New("unknown congestion control strategy")

// StrategyPrefix is the type-namespace prefix that protocol names may carry
const StrategyPrefix = "ns3::"

var strategyNames = map[CongestionStrategy]string{
	NewReno:   "TcpNewReno",
	Cubic:     "TcpCubic",
	HighSpeed: "TcpHighSpeed",
	Scalable:  "TcpScalable",
}

// Strategies lists every supported strategy
func Strategies() []CongestionStrategy {
	return []CongestionStrategy{NewReno, Cubic, HighSpeed, Scalable}
}

// LookupStrategy resolves a protocol name such as "TcpCubic" or "ns3::TcpCubic"
func LookupStrategy(name string) (CongestionStrategy, error) {
	short := strings.TrimPrefix(strings.TrimSpace(name), StrategyPrefix)
	for cs, csName := range strategyNames {
		if csName == short {
			return cs, nil
		}
	}
	return NewReno, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// String returns the fully qualified name, e.g. "ns3::TcpCubic"
func (cs CongestionStrategy) String() string {
	return StrategyPrefix + cs.ShortName()
}

// ShortName returns the name without the namespace prefix
func (cs CongestionStrategy) ShortName() string {
	name, present := strategyNames[cs]
	if !present {
		return "TcpUnknown"
	}
	return name
}

// congState is the part of a socket's state the strategies read and write
type congState struct {
	cwnd     uint32
	ssthresh uint32
	segSize  uint32
	now      float64
}

func (tcb *congState) cwndInSegments() uint32 {
	segs := tcb.cwnd / tcb.segSize
	if segs == 0 {
		segs = 1
	}
	return segs
}

type congestionOps interface {
	// increaseWindow grows the window after new data was acknowledged outside recovery
	increaseWindow(tcb *congState, segmentsAcked uint32)

	// getSsThresh returns the slow-start threshold after a loss
	getSsThresh(tcb *congState, bytesInFlight uint32) uint32

	// pktsAcked reports a round-trip sample; rtt is negative when no valid sample exists
	pktsAcked(tcb *congState, segmentsAcked uint32, rtt float64)

	// timeout is called when the retransmission timer expires
	timeout(tcb *congState)
}

func (cs CongestionStrategy) newOps() congestionOps {
	switch cs {
	case NewReno:
		return &newRenoOps{}
	case Cubic:
		return newCubicOps()
	case HighSpeed:
		return &highSpeedOps{}
	case Scalable:
		return &scalableOps{aiFactor: 50, mdFactor: 0.125}
	}
	panic(fmt.Errorf("no congestion ops for strategy %d", int(cs)))
}

// slowStart adds one segment per acknowledged segment without passing ssthresh,
// and returns the acknowledged segments it did not use
func slowStart(tcb *congState, segmentsAcked uint32) uint32 {
	if segmentsAcked == 0 {
		return 0
	}
	grown := uint64(tcb.cwnd) + uint64(segmentsAcked)*uint64(tcb.segSize)
	if grown > uint64(tcb.ssthresh) {
		grown = uint64(tcb.ssthresh)
	}
	used := (uint32(grown) - tcb.cwnd) / tcb.segSize
	tcb.cwnd = uint32(grown)
	if used >= segmentsAcked {
		return 0
	}
	return segmentsAcked - used
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// NewReno: additive increase of about one segment per window, halving on loss

type newRenoOps struct{}

func (ops *newRenoOps) increaseWindow(tcb *congState, segmentsAcked uint32) {
	if tcb.cwnd < tcb.ssthresh {
		segmentsAcked = slowStart(tcb, segmentsAcked)
	}
	if tcb.cwnd >= tcb.ssthresh && segmentsAcked > 0 {
		adder := float64(tcb.segSize) * float64(tcb.segSize) / float64(tcb.cwnd)
		tcb.cwnd += uint32(math.Max(1.0, adder))
	}
}

func (ops *newRenoOps) getSsThresh(tcb *congState, bytesInFlight uint32) uint32 {
	return maxUint32(2*tcb.segSize, bytesInFlight/2)
}

func (ops *newRenoOps) pktsAcked(tcb *congState, segmentsAcked uint32, rtt float64) {}

func (ops *newRenoOps) timeout(tcb *congState) {}

// Cubic: the window follows a cubic function of the time since the last loss

type cubicOps struct {
	c               float64
	beta            float64
	fastConvergence bool
	tcpFriendliness bool
	cWndCnt         uint32
	lastMaxCwnd     uint32
	bicOriginPoint  uint32
	bicK            float64
	delayMin        float64
	epochStart      float64
	epochStarted    bool
	ackCnt          uint32
	tcpCwnd         uint32
}

func newCubicOps() *cubicOps {
	return &cubicOps{c: 0.4, beta: 0.7, fastConvergence: true, tcpFriendliness: true}
}

func (ops *cubicOps) increaseWindow(tcb *congState, segmentsAcked uint32) {
	if tcb.cwnd < tcb.ssthresh {
		segmentsAcked = slowStart(tcb, segmentsAcked)
	}
	if tcb.cwnd >= tcb.ssthresh && segmentsAcked > 0 {
		ops.cWndCnt += segmentsAcked
		cnt := ops.update(tcb, segmentsAcked)
		if ops.cWndCnt > cnt {
			tcb.cwnd += tcb.segSize
			ops.cWndCnt = 0
		}
	}
}

// update returns the number of acknowledged segments that should earn one more segment of window
func (ops *cubicOps) update(tcb *congState, segmentsAcked uint32) uint32 {
	segCwnd := tcb.cwndInSegments()
	ops.ackCnt += segmentsAcked

	if !ops.epochStarted {
		ops.epochStarted = true
		ops.epochStart = tcb.now
		ops.ackCnt = segmentsAcked
		ops.tcpCwnd = segCwnd
		if ops.lastMaxCwnd <= segCwnd {
			ops.bicK = 0.0
			ops.bicOriginPoint = segCwnd
		} else {
			ops.bicK = math.Cbrt(float64(ops.lastMaxCwnd-segCwnd) / ops.c)
			ops.bicOriginPoint = ops.lastMaxCwnd
		}
	}

	t := tcb.now + ops.delayMin - ops.epochStart
	offs := math.Abs(t - ops.bicK)
	delta := ops.c * offs * offs * offs
	bicTarget := float64(ops.bicOriginPoint) + delta
	if t < ops.bicK {
		bicTarget = float64(ops.bicOriginPoint) - delta
	}

	var cnt uint32
	if bicTarget > float64(segCwnd) {
		cnt = uint32(float64(segCwnd) / (bicTarget - float64(segCwnd)))
	} else {
		cnt = 100 * segCwnd
	}
	if ops.lastMaxCwnd == 0 && cnt > 20 {
		cnt = 20
	}

	if ops.tcpFriendliness {
		scale := uint32(8 * (1024 + ops.beta*1024) / 3 / (1024 - ops.beta*1024))
		step := (segCwnd * scale) >> 3
		if step == 0 {
			step = 1
		}
		for ops.ackCnt > step {
			ops.ackCnt -= step
			ops.tcpCwnd++
		}
		if ops.tcpCwnd > segCwnd {
			maxCnt := segCwnd / (ops.tcpCwnd - segCwnd)
			if cnt > maxCnt {
				cnt = maxCnt
			}
		}
	}
	if cnt < 2 {
		cnt = 2
	}
	return cnt
}

func (ops *cubicOps) getSsThresh(tcb *congState, bytesInFlight uint32) uint32 {
	segCwnd := tcb.cwndInSegments()
	ops.epochStarted = false
	if segCwnd < ops.lastMaxCwnd && ops.fastConvergence {
		ops.lastMaxCwnd = uint32(float64(segCwnd) * (1.0 + ops.beta) / 2.0)
	} else {
		ops.lastMaxCwnd = segCwnd
	}
	segThresh := uint32(float64(segCwnd) * ops.beta)
	return maxUint32(segThresh, 2) * tcb.segSize
}

func (ops *cubicOps) pktsAcked(tcb *congState, segmentsAcked uint32, rtt float64) {
	if rtt <= 0.0 {
		return
	}
	if ops.delayMin == 0.0 || rtt < ops.delayMin {
		ops.delayMin = rtt
	}
}

func (ops *cubicOps) timeout(tcb *congState) {
	ops.lastMaxCwnd = 0
	ops.bicOriginPoint = 0
	ops.bicK = 0.0
	ops.ackCnt = 0
	ops.tcpCwnd = 0
	ops.delayMin = 0.0
	ops.epochStarted = false
	ops.cWndCnt = 0
}

// HighSpeed: RFC 3649 response function, Reno-like below 38 segments

const (
	hsLowWindow    = 38.0
	hsHighWindow   = 83000.0
	hsHighDecrease = 0.1
)

func hsDecrease(w float64) float64 {
	if w <= hsLowWindow {
		return 0.5
	}
	return (hsHighDecrease-0.5)*(math.Log(w)-math.Log(hsLowWindow))/
		(math.Log(hsHighWindow)-math.Log(hsLowWindow)) + 0.5
}

func hsIncrease(w float64) float64 {
	if w <= hsLowWindow {
		return 1.0
	}
	p := 0.078 / math.Pow(w, 1.2)
	b := hsDecrease(w)
	return w * w * p * 2.0 * b / (2.0 - b)
}

type highSpeedOps struct {
	ackCnt float64
}

func (ops *highSpeedOps) increaseWindow(tcb *congState, segmentsAcked uint32) {
	if tcb.cwnd < tcb.ssthresh {
		segmentsAcked = slowStart(tcb, segmentsAcked)
	}
	if tcb.cwnd < tcb.ssthresh || segmentsAcked == 0 {
		return
	}
	segCwnd := tcb.cwndInSegments()
	oldCwnd := segCwnd
	ops.ackCnt += float64(segmentsAcked) * hsIncrease(float64(segCwnd))
	for ops.ackCnt >= float64(segCwnd) {
		ops.ackCnt -= float64(segCwnd)
		segCwnd++
	}
	if segCwnd != oldCwnd {
		tcb.cwnd = segCwnd * tcb.segSize
	}
}

func (ops *highSpeedOps) getSsThresh(tcb *congState, bytesInFlight uint32) uint32 {
	segCwnd := float64(tcb.cwndInSegments())
	ops.ackCnt = 0.0
	segThresh := uint32(segCwnd * (1.0 - hsDecrease(segCwnd)))
	return maxUint32(segThresh, 2) * tcb.segSize
}

func (ops *highSpeedOps) pktsAcked(tcb *congState, segmentsAcked uint32, rtt float64) {}

func (ops *highSpeedOps) timeout(tcb *congState) {
	ops.ackCnt = 0.0
}

// Scalable: one segment per min(cwnd, aiFactor) acknowledged segments, 1/8 decrease

type scalableOps struct {
	aiFactor uint32
	mdFactor float64
	ackCnt   uint32
}

func (ops *scalableOps) increaseWindow(tcb *congState, segmentsAcked uint32) {
	if tcb.cwnd < tcb.ssthresh {
		segmentsAcked = slowStart(tcb, segmentsAcked)
	}
	if tcb.cwnd < tcb.ssthresh || segmentsAcked == 0 {
		return
	}
	segCwnd := tcb.cwndInSegments()
	oldCwnd := segCwnd
	w := segCwnd
	if w > ops.aiFactor {
		w = ops.aiFactor
	}
	if ops.ackCnt >= w {
		ops.ackCnt = 0
		segCwnd++
	}
	ops.ackCnt += segmentsAcked
	if ops.ackCnt >= w {
		delta := ops.ackCnt / w
		ops.ackCnt -= delta * w
		segCwnd += delta
	}
	if segCwnd != oldCwnd {
		tcb.cwnd = segCwnd * tcb.segSize
	}
}

func (ops *scalableOps) getSsThresh(tcb *congState, bytesInFlight uint32) uint32 {
	segCwnd := float64(tcb.cwndInSegments())
	segThresh := uint32(segCwnd * (1.0 - ops.mdFactor))
	return maxUint32(segThresh, 2) * tcb.segSize
}

func (ops *scalableOps) pktsAcked(tcb *congState, segmentsAcked uint32, rtt float64) {}

func (ops *scalableOps) timeout(tcb *congState) {
	ops.ackCnt = 0
}
