package netsim

// sim.go wraps the evt event manager with the narrow clock contract the
// experiment harness needs: absolute and relative scheduling, a stop time,
// and cancellation of events that have not fired yet.

import (
	"errors"
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
)

// HandlerFunc is the signature of every callback dispatched by the Simulator.
// The context and data arguments are whatever was handed to the scheduling call.
type HandlerFunc func(sim *Simulator, context any, data any)

// EventToken identifies one scheduled callback.
type EventToken struct {
	time      float64
	cancelled bool
	fired     bool
}

// Cancel prevents the callback from running.  It reports false when the
// callback already ran or was cancelled before.
func (et *EventToken) Cancel() bool {
	if et == nil || et.fired || et.cancelled {
		return false
	}
	et.cancelled = true
	return true
}

// Pending is true while the callback is still waiting to run
func (et *EventToken) Pending() bool {
	return et != nil && !et.fired && !et.cancelled
}

// Time returns the virtual time the callback was scheduled for
func (et *EventToken) Time() float64 {
	return et.time
}

type pendingEvent struct {
	token   *EventToken
	handler HandlerFunc
	context any
	data    any
}

// a timeBucket gathers every callback scheduled for the same instant.  The
// event manager sees one event per bucket, and the bucket is drained in the order
// callbacks were added, which fixes the order of ties.
type timeBucket struct {
	time   float64
	events []pendingEvent
}

// Simulator is a single-threaded discrete-event clock plus the network
// objects (nodes, channels, routes) of one experiment run.  Nothing in it is
// shared between runs.
type Simulator struct {
	evtMgr   *evtm.EventManager
	now      float64
	stopTime float64
	stopped  bool
	buckets  map[float64]*timeBucket

	// counters used to hand out ids for nodes, channels and packets
	nodeID    int
	channelID int
	packetID  uint64

	nodes    []*Node
	channels []*Channel
	routing  *routingState

	tcpDefaults TcpConfig
	strategy    CongestionStrategy

	trace *TraceManager

	// streams are derived from seed in creation order
	seed     uint64
	rngCount int

	// first fatal condition raised by a callback; Run returns it
	fault error

	dispatched int
}

// ErrNotStopped is returned by Run when no stop time was set and so the run would not end
var ErrNotStopped = errors.New("simulator has no stop time")

// NewSimulator creates an empty simulation at virtual time zero
func NewSimulator() *Simulator {
	sim := new(Simulator)
	sim.evtMgr = evtm.New()
	sim.buckets = make(map[float64]*timeBucket)
	sim.stopTime = math.Inf(1)
	sim.tcpDefaults = DefaultTcpConfig()
	sim.strategy = NewReno
	sim.seed = DefaultSeed
	sim.trace = CreateTraceManager("", false)
	return sim
}

// Now returns the current virtual time, in seconds
func (sim *Simulator) Now() float64 {
	return sim.now
}

// ScheduleAt arranges for handler to run at absolute virtual time t.  A time in the
// past is moved up to the present.
func (sim *Simulator) ScheduleAt(t float64, handler HandlerFunc, context, data any) *EventToken {
	if t < sim.now {
		t = sim.now
	}
	token := &EventToken{time: t}
	bucket, present := sim.buckets[t]
	if !present {
		bucket = &timeBucket{time: t, events: make([]pendingEvent, 0, 2)}
		sim.buckets[t] = bucket

		offset := t - sim.evtMgr.CurrentSeconds()
		if offset < 0.0 {
			offset = 0.0
		}
		sim.evtMgr.Schedule(sim, bucket, dispatchBucket, vrtime.SecondsToTime(offset))
	}
	bucket.events = append(bucket.events, pendingEvent{token: token, handler: handler, context: context, data: data})
	return token
}

// ScheduleIn arranges for handler to run dt seconds from now
func (sim *Simulator) ScheduleIn(dt float64, handler HandlerFunc, context, data any) *EventToken {
	if dt < 0.0 {
		dt = 0.0
	}
	return sim.ScheduleAt(sim.now+dt, handler, context, data)
}

// dispatchBucket is the one evtm event handler in the package.  It runs all
// the callbacks for an instant, including those added while it runs.
func dispatchBucket(evtMgr *evtm.EventManager, context any, data any) any {
	sim := context.(*Simulator)
	bucket := data.(*timeBucket)
	defer delete(sim.buckets, bucket.time)

	if sim.stopped {
		return nil
	}
	if bucket.time > sim.now {
		sim.now = bucket.time
	}

	for idx := 0; idx < len(bucket.events); idx++ {
		ev := bucket.events[idx]
		if ev.token.cancelled {
			continue
		}
		ev.token.fired = true
		sim.dispatched++
		ev.handler(sim, ev.context, ev.data)
		if sim.stopped {
			break
		}
	}
	return nil
}

// StopAt fixes the time at which Run returns.  Callbacks scheduled for the
// same instant before StopAt was called still run.
func (sim *Simulator) StopAt(t float64) {
	sim.stopTime = t
	sim.ScheduleAt(t, stopSimulation, nil, nil)
}

func stopSimulation(sim *Simulator, context any, data any) {
	sim.stopped = true
}

// Fail records a fatal condition found inside a callback and halts the run
func (sim *Simulator) Fail(err error) {
	if sim.fault == nil {
		sim.fault = err
		logger.SimLog.WithField("time", sim.now).Errorf("simulation halted: %v", err)
	}
	sim.stopped = true
}

// Run processes events until the stop time.  It returns the first fatal
// error raised by a callback, if any.
func (sim *Simulator) Run() error {
	if math.IsInf(sim.stopTime, 1) {
		return ErrNotStopped
	}
	// the extra second lets the stop bucket itself be dispatched
	sim.evtMgr.Run(sim.stopTime + 1.0)
	if sim.now < sim.stopTime && sim.fault == nil {
		sim.now = sim.stopTime
	}
	logger.SimLog.WithField("events", sim.dispatched).Debugf("run finished at %g s", sim.now)
	return sim.fault
}

// Stopped is true once the stop time has been reached or a fatal error was raised
func (sim *Simulator) Stopped() bool {
	return sim.stopped
}

// StopTime returns the value given to StopAt, or +Inf
func (sim *Simulator) StopTime() float64 {
	return sim.stopTime
}

// DefaultSeed is the seed a Simulator starts with
const DefaultSeed uint64 = 12345

// largest seed component rngstream accepts in all six positions
const maxSeed uint64 = 4294944442

// ErrBadSeed is returned for a seed rngstream cannot use
var ErrBadSeed = errors.New("random seed out of range")

// CheckSeed reports whether seed can drive the simulator's streams
func CheckSeed(seed uint64) error {
	if seed == 0 || seed > maxSeed {
		return fmt.Errorf("%w: %d not in [1,%d]", ErrBadSeed, seed, maxSeed)
	}
	return nil
}

// SetSeed fixes the seed streams are derived from.  It must be called before
// the first NewRngStream to take effect on every stream.
func (sim *Simulator) SetSeed(seed uint64) error {
	if err := CheckSeed(seed); err != nil {
		return err
	}
	sim.seed = seed
	return nil
}

// Seed returns the seed streams are derived from
func (sim *Simulator) Seed() uint64 {
	return sim.seed
}

// NewRngStream returns an independent stream of uniform random numbers.
// Stream k of a simulation starts at substream k of the simulation's seed,
// so the same seed and creation order give the same draws in every run.
func (sim *Simulator) NewRngStream(name string) *rngstream.RngStream {
	rng := rngstream.New(name)
	rng.SetSeed([]uint64{sim.seed, sim.seed, sim.seed, sim.seed, sim.seed, sim.seed})
	for idx := 0; idx < sim.rngCount; idx++ {
		rng.ResetNextSubstream()
	}
	sim.rngCount++
	return rng
}

// SetPacketTrace installs the manager that devices report packet events to
func (sim *Simulator) SetPacketTrace(tm *TraceManager) {
	sim.trace = tm
}

// PacketTrace returns the packet event trace manager (never nil)
func (sim *Simulator) PacketTrace() *TraceManager {
	return sim.trace
}

func (sim *Simulator) nxtPacketID() uint64 {
	sim.packetID++
	return sim.packetID
}
