package harness

// tracer.go records congestion window time series, one per (node, socket).
// All state lives in a TraceContext created for the run, so two runs in one
// process never see each other's records.

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
	"github.com/judinizz/ns3-network-simulations/netsim"
)

// ErrBadTracePath is returned for a context path the tracer cannot parse
var ErrBadTracePath = errors.New("malformed trace path")

// Clock tells the tracer the virtual time of a notification
type Clock interface {
	Now() float64
}

// WindowSource is anything that reports congestion window changes; TCP sockets are the usual one
type WindowSource interface {
	NodeID() int
	SocketID() int
	ContextPath() string
	SubscribeCwnd(fn func(old, new uint32))
}

// TraceKey identifies one traced socket
type TraceKey struct {
	NodeID   int
	SocketID int
}

func (key TraceKey) String() string {
	return fmt.Sprintf("node%d-sock%d", key.NodeID, key.SocketID)
}

// TraceRecord is one (time, window) sample
type TraceRecord struct {
	Time   float64
	Window uint32
}

// TraceContext holds every trace of one run
type TraceContext struct {
	streams map[TraceKey][]TraceRecord
}

// NewTraceContext creates an empty context
func NewTraceContext() *TraceContext {
	return &TraceContext{streams: make(map[TraceKey][]TraceRecord)}
}

// Record appends a window change.  The first change seen for a key also
// records the old value at time 0, the window before tracing began.
func (tc *TraceContext) Record(key TraceKey, now float64, old, new uint32) {
	recs, present := tc.streams[key]
	if !present {
		recs = []TraceRecord{{Time: 0.0, Window: old}}
	}
	if last := recs[len(recs)-1].Time; now < last {
		// a clock running backwards would break the file ordering
		panic(fmt.Errorf("trace %s: time %g before %g", key, now, last))
	}
	tc.streams[key] = append(recs, TraceRecord{Time: now, Window: new})
}

// Keys lists the traced sockets ordered by node then socket
func (tc *TraceContext) Keys() []TraceKey {
	keys := make([]TraceKey, 0, len(tc.streams))
	for key := range tc.streams {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].NodeID != keys[j].NodeID {
			return keys[i].NodeID < keys[j].NodeID
		}
		return keys[i].SocketID < keys[j].SocketID
	})
	return keys
}

// Records returns the samples of one socket
func (tc *TraceContext) Records(key TraceKey) []TraceRecord {
	return tc.streams[key]
}

// TraceFileName is the file a key's samples are written to
func TraceFileName(prefix string, key TraceKey) string {
	return fmt.Sprintf("%s-node%d-sock%d-cwnd.data", prefix, key.NodeID, key.SocketID)
}

// formatTraceTime writes whole seconds with one decimal so the first line reads "0.0"
func formatTraceTime(t float64) string {
	if t == float64(int64(t)) {
		return strconv.FormatFloat(t, 'f', 1, 64)
	}
	return strconv.FormatFloat(t, 'g', -1, 64)
}

// WriteFiles writes one ASCII file per key into dir, one "time window" line
// per sample, and returns the names written
func (tc *TraceContext) WriteFiles(dir, prefix string) ([]string, error) {
	written := []string{}
	for _, key := range tc.Keys() {
		filename := filepath.Join(dir, TraceFileName(prefix, key))
		if err := writeTrace(filename, tc.streams[key]); err != nil {
			return written, err
		}
		written = append(written, filename)
	}
	return written, nil
}

func writeTrace(filename string, recs []TraceRecord) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, rec := range recs {
		fmt.Fprintf(w, "%s %d\n", formatTraceTime(rec.Time), rec.Window)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseNodeID returns the number in the second '/' separated segment of a
// context path such as /NodeList/3/$ns3::TcpL4Protocol/SocketList/0/CongestionWindow
func ParseNodeID(path string) (int, error) {
	first := strings.IndexByte(path[min(1, len(path)):], '/')
	if first < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadTracePath, path)
	}
	first++
	rest := path[first+1:]
	segment := rest
	if second := strings.IndexByte(rest, '/'); second >= 0 {
		segment = rest[:second]
	}
	id, err := strconv.Atoi(segment)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: node segment %q of %q", ErrBadTracePath, segment, path)
	}
	return id, nil
}

// pathSelector matches sockets by node and socket id; -1 matches any
type pathSelector struct {
	node   int
	socket int
}

func (ps pathSelector) matches(nodeID, socketID int) bool {
	return (ps.node < 0 || ps.node == nodeID) && (ps.socket < 0 || ps.socket == socketID)
}

const cwndPathFormat = "/NodeList/%s/$ns3::TcpL4Protocol/SocketList/%s/CongestionWindow"

func parseSelector(pattern string) (pathSelector, error) {
	parts := strings.Split(pattern, "/")
	if len(parts) != 7 || parts[0] != "" || parts[1] != "NodeList" || parts[4] != "SocketList" ||
		parts[6] != "CongestionWindow" || !strings.HasSuffix(parts[3], "TcpL4Protocol") {
		return pathSelector{}, fmt.Errorf("%w: %q", ErrBadTracePath, pattern)
	}
	ps := pathSelector{node: -1, socket: -1}
	for idx, field := range []*int{&ps.node, &ps.socket} {
		text := parts[2+2*idx]
		if text == "*" {
			continue
		}
		val, err := strconv.Atoi(text)
		if err != nil || val < 0 {
			return pathSelector{}, fmt.Errorf("%w: %q in %q", ErrBadTracePath, text, pattern)
		}
		*field = val
	}
	return ps, nil
}

// CwndPath builds the context path selecting node and socket; "*" selects all
func CwndPath(node, socket string) string {
	return fmt.Sprintf(cwndPathFormat, node, socket)
}

// Tracer subscribes to window sources and feeds a TraceContext
type Tracer struct {
	clock    Clock
	ctx      *TraceContext
	selector pathSelector
	attached map[TraceKey]bool
	startEvt *netsim.EventToken
	started  bool

	// keys whose source reported a context path naming another node
	mismatched []TraceKey
}

// NewTracer creates a tracer selecting every socket of every node
func NewTracer(clock Clock, ctx *TraceContext) *Tracer {
	return &Tracer{clock: clock, ctx: ctx, selector: pathSelector{node: -1, socket: -1},
		attached: make(map[TraceKey]bool)}
}

// Context returns the context samples are recorded into
func (tr *Tracer) Context() *TraceContext {
	return tr.ctx
}

// ConnectPath restricts the sockets StartAt attaches to the ones the pattern
// names.  A "*" node or socket segment matches all.
func (tr *Tracer) ConnectPath(pattern string) error {
	ps, err := parseSelector(pattern)
	if err != nil {
		return err
	}
	tr.selector = ps
	return nil
}

// Attach subscribes to src and returns the key its samples are recorded
// under.  Attaching the same socket twice records it once.
func (tr *Tracer) Attach(src WindowSource) TraceKey {
	key := TraceKey{NodeID: src.NodeID(), SocketID: src.SocketID()}
	if tr.attached[key] {
		return key
	}
	tr.attached[key] = true
	src.SubscribeCwnd(func(old, new uint32) {
		tr.ctx.Record(key, tr.clock.Now(), old, new)
	})
	path := src.ContextPath()
	if id, err := ParseNodeID(path); err != nil || id != key.NodeID {
		logger.TraceLog.WithFields(logrus.Fields{"path": path, "node": key.NodeID}).
			Warn("context path does not name the traced node")
		tr.mismatched = append(tr.mismatched, key)
	} else {
		logger.TraceLog.WithField("path", path).Debug("congestion window traced")
	}
	return key
}

func (tr *Tracer) attachMatching(sock *netsim.TcpSocket) {
	if tr.selector.matches(sock.NodeID(), sock.SocketID()) {
		tr.Attach(sock)
	}
}

// StartAt attaches, at time t, every selected socket that exists by then and
// every selected socket created afterwards.  The start can be cancelled until it fires.
func (tr *Tracer) StartAt(sim *netsim.Simulator, t float64) {
	tr.startEvt = sim.ScheduleAt(t, startTracing, tr, nil)
}

func startTracing(sim *netsim.Simulator, context any, data any) {
	tr := context.(*Tracer)
	tr.started = true
	for _, node := range sim.Nodes() {
		if tr.selector.node >= 0 && tr.selector.node != node.ID() {
			continue
		}
		for _, sock := range node.Tcp().Sockets() {
			tr.attachMatching(sock)
		}
		node.Tcp().OnSocketCreated(tr.attachMatching)
	}
}

// Cancel withdraws a start that has not fired yet
func (tr *Tracer) Cancel() bool {
	return tr.startEvt.Cancel()
}

// Mismatched lists the attached keys whose context path disagreed with the source's node id
func (tr *Tracer) Mismatched() []TraceKey {
	return tr.mismatched
}

// Started is true once the start event fired
func (tr *Tracer) Started() bool {
	return tr.started
}
